// Package config handles configuration loading for fdc3-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Anything a file leaves out keeps the value from Default, so a
// gateway can start with no file at all.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	directory:
//	  url: "${FDC3_DIRECTORY_URL}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to "". LoadEnvFile reads a
// .env file into the environment first; existing variables win.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  reply_dedupe_ttl: "5m"
//	  handler_timeout: "30s"
//	client:
//	  call_timeout: "30s"
//
// # Configuration Sections
//
// Listeners:
//
//	server:
//	  http_addr: "127.0.0.1:8080"   # WebSocket, HTTP API, metrics
//	  grpc_addr: "127.0.0.1:50051"  # gRPC transport; empty disables it
//	  allowed_origins: []           # WebSocket origins; empty allows all
//	  max_message_bytes: 1048576
//	  shutdown_timeout: "10s"
//
// App Directory (at most one of url and file):
//
//	directory:
//	  url: "https://appd.example.com"
//	  file: "./apps.json"
//	  timeout: "5s"
//
// Broker behaviour:
//
//	agent:
//	  intent_resolution: "first"   # first, round_robin
//	  outbound_buffer: 64
//	  reply_dedupe_ttl: "5m"
//	  reply_dedupe_max: 10000
//	  handler_timeout: "30s"
//	  system_channels: [red, orange, yellow, green, blue, purple]
//
// Per-connection rate limit (0 disables):
//
//	limits:
//	  messages_per_second: 100
//	  burst: 200
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Load validates struct tags with go-playground/validator plus a few
// cross-field checks: unique system channel ids and non-negative durations.
package config

// ABOUTME: FDC3 error taxonomy shared between the agent and client library.
// ABOUTME: Error kinds are string types so they survive the JSON wire unchanged.

package fdc3

import "errors"

// OpenError is returned by the open operation.
type OpenError string

const (
	AppNotFound             OpenError = "AppNotFound"
	ErrorOnLaunch           OpenError = "ErrorOnLaunch"
	AppTimeout              OpenError = "AppTimeout"
	OpenResolverUnavailable OpenError = "ResolverUnavailable"
)

func (e OpenError) Error() string { return string(e) }

// ResolveError is returned when an intent cannot be resolved.
type ResolveError string

const (
	NoAppsFound         ResolveError = "NoAppsFound"
	ResolverUnavailable ResolveError = "ResolverUnavailable"
	ResolverTimeout     ResolveError = "ResolverTimeout"
)

func (e ResolveError) Error() string { return string(e) }

// ChannelError is returned by channel operations.
type ChannelError string

const (
	NoChannelFound ChannelError = "NoChannelFound"
	AccessDenied   ChannelError = "AccessDenied"
	CreationFailed ChannelError = "CreationFailed"
)

func (e ChannelError) Error() string { return string(e) }

// Kind returns the wire name of an FDC3 error found anywhere in err's chain.
// The boolean is false when err carries no FDC3 kind.
func Kind(err error) (string, bool) {
	var oe OpenError
	if errors.As(err, &oe) {
		return string(oe), true
	}
	var re ResolveError
	if errors.As(err, &re) {
		return string(re), true
	}
	var ce ChannelError
	if errors.As(err, &ce) {
		return string(ce), true
	}
	return "", false
}

// ParseError converts a wire error string back into a typed error.
// "ResolverUnavailable" is shared by OpenError and ResolveError; method
// selects the family ("open" yields OpenError). Unknown strings become a
// plain error.
func ParseError(method, s string) error {
	if s == "" {
		return errors.New("request rejected")
	}
	if method == "open" {
		switch OpenError(s) {
		case AppNotFound, ErrorOnLaunch, AppTimeout, OpenResolverUnavailable:
			return OpenError(s)
		}
	}
	switch ResolveError(s) {
	case NoAppsFound, ResolverUnavailable, ResolverTimeout:
		return ResolveError(s)
	}
	switch ChannelError(s) {
	case NoChannelFound, AccessDenied, CreationFailed:
		return ChannelError(s)
	}
	switch OpenError(s) {
	case AppNotFound, ErrorOnLaunch, AppTimeout:
		return OpenError(s)
	}
	return errors.New(s)
}

// Package protocol defines the JSON envelopes exchanged between apps and the
// desktop agent over any transport.
//
// Every frame is a Message:
//
//	{"topic": "joinChannel", "data": {"method": "joinChannel", "eventId": "joinChannel_1718", "ts": 1718, "channel": "red"}}
//
// Requests carry their correlation fields (method, eventId, ts) flattened
// into data next to the method payload. Void calls omit eventId and never
// receive a reply. Replies travel on ReplyTopic(eventId):
//
//	{"topic": "return_joinChannel_1718", "data": {"result": true, "data": {...}}}
//	{"topic": "return_joinChannel_1718", "data": {"result": false, "error": "NoChannelFound"}}
package protocol

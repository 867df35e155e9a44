// Package channels routes context between apps that share a channel.
//
// # Overview
//
// The Router owns every channel, each app's membership and context
// listeners, and the last context seen on each channel per context type.
// Apps are attached when they connect and detached when they leave; all
// other operations address them by connection id.
//
// # Channels
//
// System channels are created with the Router and never removed. App
// channels are created on demand by GetOrCreate. An app is a member of at
// most one channel at a time.
//
// # Broadcast
//
// Broadcast delivers a context to every other member of the sender's
// channel that has a context listener accepting the context's type. The
// sender never receives its own broadcast. Delivery happens under the
// router lock, so membership cannot change while a broadcast fans out.
//
// # Tab Assignment
//
// A channel can be assigned to a tab from outside the app. If no app is
// attached for the tab yet, the assignment is queued and applied when the
// app attaches.
package channels

// Package intents tracks intent listeners and routes raised intents.
//
// # Overview
//
// Apps register listeners for named intents. Several apps may listen for
// the same intent and one app may listen for many. The Registry combines
// these live listeners with the apps the App Directory declares for an
// intent to answer findIntent and findIntentsByContext, and picks a
// provider when an intent is raised.
//
// # Resolution
//
// raiseIntent resolves as follows:
//
//   - one live candidate: the intent is delivered to it
//   - several live candidates: the configured Policy picks one, unless the
//     caller named a target app
//   - no live candidate but directory candidates, or an unreachable
//     directory: ResolverUnavailable, since the agent does not launch apps
//   - no candidates at all: NoAppsFound
//
// A live app with a directory entry is only a candidate for a context type
// its entry declares for the intent. Apps without a declaration accept any
// context.
package intents

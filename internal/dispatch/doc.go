// Package dispatch runs the per-connection request loop.
//
// # Overview
//
// The Dispatcher reads frames from a connection in order, finds the
// handler registered for each frame's topic and turns the handler's outcome
// into a reply:
//
//   - success: {result: true, data}
//   - failure: {result: false, error}; FDC3 error kinds are sent by name
//
// Requests without an eventId are void: the handler runs and nothing is
// sent back. A request whose (connection, eventId) is still being handled
// is dropped, so each request gets one reply; an id may be reused once its
// reply is queued.
//
// Unknown topics are logged and dropped. Malformed frames and handler
// panics never end the loop; when an eventId can be recovered the caller
// receives a rejection.
//
// # Handlers
//
//	d := dispatch.New(dispatch.Options{Guard: guard}, logger)
//	d.Register(protocol.MethodJoinChannel, dispatch.HandlerFunc(func(ctx context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
//	    var p protocol.JoinChannelRequest
//	    if err := req.Bind(&p); err != nil {
//	        return nil, err
//	    }
//	    return router.Join(conn.ID, p.Channel)
//	}))
package dispatch

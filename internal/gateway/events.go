// ABOUTME: Ledger event recording for routed operations
// ABOUTME: Attributes each event to the acting connection and its directory app name

package gateway

import (
	"context"

	"github.com/2389/fdc3-gateway/internal/agent"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/store"
)

// recordEvent saves a ledger event attributed to conn. An error outcome is
// stored as the event detail, by FDC3 kind when it has one.
func (g *Gateway) recordEvent(ctx context.Context, conn *agent.Connection, event *store.LedgerEvent, outcome error) {
	event.ClientID = conn.ID
	if event.AppName == "" {
		event.AppName = conn.AppName()
	}
	if outcome != nil {
		detail := outcome.Error()
		if kind, ok := fdc3.Kind(outcome); ok {
			detail = kind
		}
		event.Detail = &detail
	}
	g.ledger.Record(ctx, event)
}

func (g *Gateway) recordConnection(ctx context.Context, kind store.EventKind, conn *agent.Connection) {
	g.recordEvent(ctx, conn, &store.LedgerEvent{Kind: kind, Target: conn.Origin}, nil)
}

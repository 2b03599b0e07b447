// Package channels implements the channel registry and the
// transport-specific adapters that sit between the message bus and each
// chat platform's wire protocol. Adapters are thin glue: they translate
// platform events into bus.InboundMessage and bus.OutboundMessage values
// into platform send calls, nothing more.
package channels

import (
	"context"

	"github.com/nanobot-run/nanobot/pkg/bus"
)

// Channel is the contract every adapter implements. Send must never let a
// transport error escape past the registry: failures are logged and
// dropped, never retried.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

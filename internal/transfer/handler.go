// Package transfer defines the collaborator contract a Connection calls
// out to at its two protocol inflection points, and a fleet-backed
// implementation of it grounded on the idempotent-dispatch pattern
// gosuda-portal's relay-server manager uses for its own cloud-adjacent
// control plane calls.
package transfer

import (
	"context"

	"github.com/coregx/receptionist/internal/protocol"
)

// Login is the identity a Connection has established by the time it
// calls OnJoin: the username and offline-mode UUID from LoginStart.
type Login struct {
	Username string
	UUID     [16]byte
}

// Handler is the receptionist's only outward call. A single Handler
// value is shared (not owned) across every Connection; implementations
// must be safe for concurrent use and must make both methods
// idempotent, since overlapping connections for the same backend
// instance will invoke them concurrently.
type Handler interface {
	// OnJoin is called once per connection, immediately after encryption
	// is established and before LoginSuccess is enqueued. A nil Transfer
	// means no target is ready yet; the implementation is expected to
	// have kicked off provisioning asynchronously.
	OnJoin(ctx context.Context, login Login) (*protocol.Transfer, error)

	// OnTransferReady is called when LoginAcknowledged arrives and OnJoin
	// returned nil. A nil Transfer leaves the client in Configuration
	// phase; a non-nil Transfer is emitted and the connection closes.
	OnTransferReady(ctx context.Context) (*protocol.Transfer, error)
}

package realtime

import (
	"github.com/google/uuid"
)

// Connection is one live client session. The writer is owned exclusively by
// the connection; no other component writes to the socket. householdID and
// subscriptions are guarded by the registry's lock.
type Connection struct {
	id          uuid.UUID
	userID      string
	householdID string // "" means no household
	writer      *clientWriter

	// subscriptions holds free-form topics the client opted into.
	// Advisory only: the core does not filter deliveries by them.
	subscriptions map[string]struct{}
}

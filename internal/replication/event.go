// Package replication implements the outbound replication queue (C8) and
// the inbound applier (C9): asynchronous, at-least-once write fan-out with
// idempotent apply on the receiving side.
package replication

import "time"

// Event is the idempotent record of a local mutation to be applied by
// peers (spec section 3).
type Event struct {
	Type            string                 `json:"eventType"`
	EntityID        string                 `json:"entityId"`
	OriginTimestamp time.Time              `json:"timestamp"`
	Payload         map[string]interface{} `json:"data"`
}

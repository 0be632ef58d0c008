// Package agency defines the mediator/agency boundary (C9): the only
// external system this module talks to over the network. spec.md §1 keeps
// the agency REST client out of scope; this is the interface that
// boundary satisfies, plus the transport-vs-protocol error distinction
// spec.md §4.2/§7 rely on for retry policy. agency/grpcagency is the
// concrete, wired implementation.
package agency

import (
	"context"
	"errors"
)

// Client is everything C2 (AgentInfo) needs from the mediator: agent
// provisioning, key-for-DID registration, message upload/download, and
// message-status update.
type Client interface {
	// ProvisionAgent creates a fresh agent on the mediator and returns its
	// DID and verkey.
	ProvisionAgent(ctx context.Context) (agentDID, agentVerkey string, err error)
	// RegisterKeys associates a pairwise DID/verkey with agentDID so the
	// mediator can route inbound traffic for it.
	RegisterKeys(ctx context.Context, agentDID, pairwiseDID, pairwiseVerkey string) error
	// Upload posts an already-encrypted wire message for delivery.
	Upload(ctx context.Context, agentDID string, wire []byte) error
	// Download returns every message currently in "Received" status,
	// keyed by agency message UID.
	Download(ctx context.Context, agentDID string) (map[string][]byte, error)
	// UpdateMessageStatus transitions uid from "Received" to "Reviewed".
	// Idempotent: marking an already-reviewed uid is not an error.
	UpdateMessageStatus(ctx context.Context, agentDID, uid string) error
	// Deprovision tears down an agent agency-side. Used by Connection's
	// delete(), which ignores per-step failure here (spec.md §7).
	Deprovision(ctx context.Context, agentDID string) error
}

// ErrTransport marks a failure of the channel to the agency (dial
// refused, timeout, connection reset) — spec.md §4.2's "retries only
// transport-level failures".
var ErrTransport = errors.New("agency: transport failure")

// ErrRejected marks the agency understanding and refusing a request
// (bad auth, unknown agent, malformed upload) — never retried.
var ErrRejected = errors.New("agency: request rejected")

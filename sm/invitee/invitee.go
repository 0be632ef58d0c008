// Package invitee implements the Invitee connection state machine (C5):
// ingest invitation, emit request, verify signed response, emit ack.
package invitee

import (
	"context"

	"github.com/findy-network/findy-agent-conn/agency"
	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/findy-network/findy-agent-conn/crypto"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/findy-network/findy-agent-conn/pushnotify"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Kind tags which variant of the Invitee state machine a State holds.
type Kind int

const (
	Null Kind = iota
	Invited
	Requested
	Completed
)

// StateCode maps a Kind onto the stable wire state-code contract
// (spec.md §4.6): Null is 1, Invited and Requested are both 2, and
// Completed is 4; no Invitee state maps to 3.
func (k Kind) StateCode() uint32 {
	switch k {
	case Null:
		return 1
	case Invited, Requested:
		return 2
	case Completed:
		return 4
	default:
		return 0
	}
}

// State is the Invitee's connection state.
type State struct {
	Kind Kind

	SourceID string

	Invitation *message.Invitation
	AgentInfo  *agentinfo.AgentInfo

	// RequestID is our Request's @id; a SignedResponse must echo it as
	// ~thread.thid to advance Requested -> Completed.
	RequestID string

	TheirDID    string
	TheirDidDoc *diddoc.DidDoc
}

// New returns a fresh Null-state Invitee SM for sourceID.
func New(sourceID string) State {
	return State{Kind: Null, SourceID: sourceID}
}

// Deps bundles the external collaborators Invitee transitions need.
type Deps struct {
	Client      agency.Client
	Signer      crypto.Signer
	Box         crypto.Box
	Push        pushnotify.Hook
	RoutingKeys []string
	OwnLabel    string
	OwnDidDoc   func(ai *agentinfo.AgentInfo) diddoc.DidDoc
}

// Accept drives Null -> Invited, stashing inv.
func Accept(s State, inv *message.Invitation) (State, error) {
	if s.Kind != Null {
		return s, connerr.New(connerr.InvalidState, "accept requires Null state")
	}
	return State{Kind: Invited, SourceID: s.SourceID, Invitation: inv}, nil
}

// Connect drives Invited -> Requested: provisions an agent, builds a
// Request carrying our own DidDoc, and sends it to the Invitation's
// endpoint/keys.
func Connect(ctx context.Context, s State, deps Deps) (next State, out *message.Request, err error) {
	if s.Kind != Invited {
		return s, nil, connerr.New(connerr.InvalidState, "connect requires Invited state")
	}

	ai, createErr := agentinfo.CreateAgent(ctx, deps.Client, deps.Signer, deps.Box, deps.Push,
		agentinfo.NewPairwiseDID(), deps.RoutingKeys)
	if createErr != nil {
		return s, nil, connerr.Wrap(connerr.CreateConnection, createErr)
	}

	ownDoc := deps.OwnDidDoc(ai)
	req := message.NewRequest(uuid.NewString(), deps.OwnLabel, ai.PwDID, ownDoc)

	invitationDoc := &diddoc.DidDoc{
		ID: s.Invitation.AtID,
		Service: []diddoc.Service{{
			ID:              s.Invitation.AtID + "#service",
			Type:            "IndyAgent",
			Priority:        0,
			RecipientKeys:   s.Invitation.RecipientKeys,
			RoutingKeys:     s.Invitation.RoutingKeys,
			ServiceEndpoint: s.Invitation.ServiceEndpoint,
		}},
	}

	next = State{
		Kind:       Requested,
		SourceID:   s.SourceID,
		Invitation: s.Invitation,
		AgentInfo:  ai,
		RequestID:  req.AtID,
	}

	sendErr := ai.SendMessage(ctx, req, invitationDoc)
	return next, req, sendErr
}

// HandleResponse drives Requested -> Completed if sr verifies against the
// invitation's recipient key and echoes our Request's id; otherwise Null
// with an outbound ProblemReport. Verification is cryptographic and
// precedes any state mutation (spec.md §4.5): a forged response never
// advances state.
func HandleResponse(ctx context.Context, s State, sr *message.SignedResponse, deps Deps) (next State, out message.Message, err error) {
	if s.Kind != Requested {
		return s, nil, connerr.New(connerr.InvalidState, "response only valid in Requested")
	}

	thid, hasThread := sr.ThreadID()
	expectedSigner := s.Invitation.RecipientKeys[0]

	resp, verifyErr := message.VerifyConnection(deps.Signer, sr, expectedSigner)
	if verifyErr != nil || !hasThread || thid != s.RequestID {
		if verifyErr != nil {
			glog.Warningf("invitee: rejecting forged response: %v", verifyErr)
		} else {
			glog.Warningf("invitee: rejecting response with thread mismatch (got %q want %q)", thid, s.RequestID)
		}
		pr := message.NewProblemReport(uuid.NewString(), s.RequestID, "response-invalid", "signature or thread mismatch")
		return State{Kind: Null, SourceID: s.SourceID}, pr, nil
	}

	theirDoc := resp.DIDDoc
	next = State{
		Kind:       Completed,
		SourceID:   s.SourceID,
		Invitation: s.Invitation,
		AgentInfo:  s.AgentInfo,
		RequestID:  s.RequestID,
		TheirDID:   resp.DID,
		TheirDidDoc: &theirDoc,
	}

	ack := message.NewAck(uuid.NewString(), s.RequestID, message.AckOK)
	sendErr := s.AgentInfo.SendMessage(ctx, ack, &theirDoc)
	return next, ack, sendErr
}

// HandleProblemReport drives any state -> Null unconditionally.
func HandleProblemReport(s State) State {
	return State{Kind: Null, SourceID: s.SourceID}
}

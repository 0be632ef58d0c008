// Package inviter implements the Inviter connection state machine (C4):
// mint invitation, accept request (with the bootstrap/rotate key dance),
// emit signed response, confirm ack. Transitions are total functions over
// one tagged State value, concentrated in this one dispatch per spec.md
// §9's "state sum types over inheritance" design note.
package inviter

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
	"github.com/lainio/err2"
)

// Kind tags which variant of the Inviter state machine a State holds.
type Kind int

const (
	Null Kind = iota
	Invited
	Responded
	Completed
)

// StateCode maps a Kind onto the stable wire state-code contract
// (spec.md §4.6).
func (k Kind) StateCode() uint32 {
	switch k {
	case Null:
		return 1
	case Invited:
		return 2
	case Responded:
		return 3
	case Completed:
		return 4
	default:
		return 0
	}
}

// State is the Inviter's connection state, as one tagged variant holding
// only the fields its Kind can legally have populated.
type State struct {
	Kind Kind

	SourceID string

	AgentInfo          *agentinfo.AgentInfo // current/active agent
	BootstrapAgentInfo *agentinfo.AgentInfo // set Invited..Responded only

	Invitation *message.Invitation

	TheirDID    string
	TheirDidDoc *diddoc.DidDoc

	// ResponseThreadID is our Response's ~thread.thid, which echoes the
	// Request's @id; an inbound Ack must carry the same thid to advance.
	ResponseThreadID string
}

// New returns a fresh Null-state Inviter SM for sourceID.
func New(sourceID string) State {
	return State{Kind: Null, SourceID: sourceID}
}

// Deps bundles the external collaborators the Inviter SM's side effects
// need (agency client, crypto, push hook, routing keys, and a DID-Doc
// validator), so the transitions stay testable against connectiontest
// fakes.
type Deps struct {
	Client      agency.Client
	Signer      crypto.Signer
	Box         crypto.Box
	Push        pushnotify.Hook
	RoutingKeys []string
	OwnLabel    string
	OwnDidDoc   func(ai *agentinfo.AgentInfo) diddoc.DidDoc
	Validate    func(*diddoc.DidDoc) error
}

// Connect drives Null -> Invited: provisions a disposable bootstrap agent
// (the Invitation's recipient key is necessarily public, see spec.md §4.4
// rationale) and mints the Invitation.
func Connect(ctx context.Context, s State, deps Deps) (next State, inv *message.Invitation, err error) {
	defer err2.Handle(&err)

	if s.Kind != Null {
		return s, nil, connerr.New(connerr.InvalidState, "connect requires Null state")
	}

	bootstrap, createErr := agentinfo.CreateAgent(ctx, deps.Client, deps.Signer, deps.Box, deps.Push,
		agentinfo.NewPairwiseDID(), deps.RoutingKeys)
	err2.Check(createErr)

	inv = message.NewInvitation(uuid.NewString())
	inv.Label = deps.OwnLabel
	inv.RecipientKeys = bootstrap.RecipientKeys()
	inv.RoutingKeys = bootstrap.RoutingKeys()
	inv.ServiceEndpoint = bootstrap.AgencyEndpoint()

	next = State{
		Kind:               Invited,
		SourceID:           s.SourceID,
		AgentInfo:          bootstrap,
		BootstrapAgentInfo: bootstrap,
		Invitation:         inv,
	}
	return next, inv, nil
}

// HandleRequest drives Invited -> Responded (or Invited -> Null on a
// DidDoc that fails validation). State mutation is committed before the
// outbound send (spec.md §7): a send failure is returned to the caller,
// but next already reflects Responded.
func HandleRequest(ctx context.Context, s State, req *message.Request, deps Deps) (next State, out message.Message, err error) {
	if s.Kind != Invited {
		return s, nil, connerr.New(connerr.InvalidState, "request only valid in Invited")
	}

	counterpartyDoc := req.Connection.DIDDoc
	if valErr := deps.Validate(&counterpartyDoc); valErr != nil {
		glog.Warningf("inviter: rejecting request %s: %v", req.AtID, valErr)
		pr := message.NewProblemReport(uuid.NewString(), "", "diddoc-invalid", valErr.Error())
		return State{Kind: Null, SourceID: s.SourceID}, pr, nil
	}

	newAI, createErr := agentinfo.CreateAgent(ctx, deps.Client, deps.Signer, deps.Box, deps.Push,
		agentinfo.NewPairwiseDID(), deps.RoutingKeys)
	if createErr != nil {
		return s, nil, connerr.Wrap(connerr.CreateConnection, createErr)
	}

	ownDoc := deps.OwnDidDoc(newAI)
	signed, signErr := message.SignConnection(
		deps.Signer,
		s.BootstrapAgentInfo.PwVK,
		uuid.NewString(),
		req.AtID,
		message.Response{DID: newAI.PwDID, DIDDoc: ownDoc},
	)
	if signErr != nil {
		return s, nil, connerr.Wrap(connerr.CryptoFailure, signErr)
	}

	next = State{
		Kind:               Responded,
		SourceID:           s.SourceID,
		AgentInfo:          newAI,
		BootstrapAgentInfo: s.BootstrapAgentInfo,
		Invitation:         s.Invitation,
		TheirDID:           req.Connection.DID,
		TheirDidDoc:        &counterpartyDoc,
		ResponseThreadID:   signed.Thread.ThID,
	}

	sendErr := newAI.SendMessage(ctx, signed, &counterpartyDoc)
	return next, signed, sendErr
}

// HandleAck drives Responded -> Completed when ack's thread id matches our
// Response's; clears the bootstrap agent once it is no longer needed.
func HandleAck(s State, ack *message.Ack) (State, error) {
	if s.Kind != Responded {
		return s, connerr.New(connerr.InvalidState, "ack only valid in Responded")
	}
	thid, ok := ack.ThreadID()
	if !ok || thid != s.ResponseThreadID {
		return s, nil // ignore, per spec.md §4.4 "Responded | any other | Responded | ignore"
	}
	return State{
		Kind:             Completed,
		SourceID:         s.SourceID,
		AgentInfo:        s.AgentInfo,
		Invitation:       s.Invitation,
		TheirDID:         s.TheirDID,
		TheirDidDoc:      s.TheirDidDoc,
		ResponseThreadID: s.ResponseThreadID,
	}, nil
}

// HandleProblemReport drives Invited/Responded -> Null unconditionally.
func HandleProblemReport(s State) State {
	return State{Kind: Null, SourceID: s.SourceID}
}

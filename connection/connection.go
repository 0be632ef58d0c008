// Package connection implements the Connection façade (C6): it unifies
// the Inviter (sm/inviter) and Invitee (sm/invitee) state machines behind
// one surface — state query, message routing, serialization, connect() —
// the way findy-agent's own protocol processors sit behind one comm.Handler
// (protocol/issuecredential/processor.go, protocol/presentproof/processor.go).
package connection

import (
	"context"

	"github.com/findy-network/findy-agent-conn/agency"
	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/findy-network/findy-agent-conn/crypto"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/findy-network/findy-agent-conn/pushnotify"
	"github.com/findy-network/findy-agent-conn/sm/invitee"
	"github.com/findy-network/findy-agent-conn/sm/inviter"
	"github.com/google/uuid"
)

// Role names which state machine a Connection drives.
type Role int

const (
	RoleInviter Role = iota
	RoleInvitee
)

func (r Role) String() string {
	if r == RoleInviter {
		return "inviter"
	}
	return "invitee"
}

// Config bundles the external collaborators both state machines' side
// effects need. It is not part of any snapshot; FromString requires it to
// rehydrate a deserialized Connection.
type Config struct {
	Client      agency.Client
	Signer      crypto.Signer
	Box         crypto.Box
	Push        pushnotify.Hook
	RoutingKeys []string
	OwnLabel    string
	OwnDidDoc   func(ai *agentinfo.AgentInfo) diddoc.DidDoc
}

func (c Config) inviterDeps() inviter.Deps {
	return inviter.Deps{
		Client:      c.Client,
		Signer:      c.Signer,
		Box:         c.Box,
		Push:        c.Push,
		RoutingKeys: c.RoutingKeys,
		OwnLabel:    c.OwnLabel,
		OwnDidDoc:   c.OwnDidDoc,
		Validate:    diddoc.Validate,
	}
}

func (c Config) inviteeDeps() invitee.Deps {
	return invitee.Deps{
		Client:      c.Client,
		Signer:      c.Signer,
		Box:         c.Box,
		Push:        c.Push,
		RoutingKeys: c.RoutingKeys,
		OwnLabel:    c.OwnLabel,
		OwnDidDoc:   c.OwnDidDoc,
	}
}

// Connection is the role-unified façade the handle cache (C7) stores one
// of per live handshake.
type Connection struct {
	cfg  Config
	role Role

	inv inviter.State
	ive invitee.State
}

// New creates a fresh Null-state Connection for sourceID in role.
func New(sourceID string, role Role, cfg Config) *Connection {
	c := &Connection{cfg: cfg, role: role}
	if role == RoleInviter {
		c.inv = inviter.New(sourceID)
	} else {
		c.ive = invitee.New(sourceID)
	}
	return c
}

// CreateWithInvite creates an Invitee Connection already in the Invited
// state, having accepted inv.
func CreateWithInvite(sourceID string, inv *message.Invitation, cfg Config) (*Connection, error) {
	c := &Connection{cfg: cfg, role: RoleInvitee, ive: invitee.New(sourceID)}
	next, err := invitee.Accept(c.ive, inv)
	if err != nil {
		return nil, err
	}
	c.ive = next
	return c, nil
}

// SourceID returns the caller-chosen, immutable identifier for this
// Connection.
func (c *Connection) SourceID() string {
	if c.role == RoleInviter {
		return c.inv.SourceID
	}
	return c.ive.SourceID
}

// Role reports which state machine this Connection drives.
func (c *Connection) Role() Role { return c.role }

// State returns the stable wire state code (spec.md §4.6).
func (c *Connection) State() uint32 {
	if c.role == RoleInviter {
		return c.inv.Kind.StateCode()
	}
	return c.ive.Kind.StateCode()
}

// AgentInfo returns the Connection's current, active agent info, or nil
// before any connect()/accept() has produced one.
func (c *Connection) AgentInfo() *agentinfo.AgentInfo {
	if c.role == RoleInviter {
		return c.inv.AgentInfo
	}
	return c.ive.AgentInfo
}

// BootstrapAgentInfo returns the Inviter's bootstrap agent, set only
// between Null->Invited and cleared at Completed; nil for the Invitee
// role, or whenever no bootstrap agent is held.
func (c *Connection) BootstrapAgentInfo() *agentinfo.AgentInfo {
	if c.role != RoleInviter {
		return nil
	}
	return c.inv.BootstrapAgentInfo
}

// RemoteVK returns the counterparty's pairwise verkey, used by the
// update-state driver's bootstrap fallback (spec.md §4.8) to filter
// authenticated downloads. ok is false when no counterparty is known yet.
func (c *Connection) RemoteVK() (vk string, ok bool) {
	doc := c.theirDidDoc()
	if doc == nil {
		return "", false
	}
	keys := doc.RecipientKeys()
	if len(keys) == 0 {
		return "", false
	}
	return keys[0], true
}

func (c *Connection) theirDidDoc() *diddoc.DidDoc {
	if c.role == RoleInviter {
		return c.inv.TheirDidDoc
	}
	return c.ive.TheirDidDoc
}

// PwDID, PwVK, AgentDID, AgentVK, TheirPwDID expose the current agent
// info's identifiers (spec.md §6 accessors), empty before a connect.
func (c *Connection) PwDID() string {
	if ai := c.AgentInfo(); ai != nil {
		return ai.PwDID
	}
	return ""
}

func (c *Connection) PwVK() string {
	if ai := c.AgentInfo(); ai != nil {
		return ai.PwVK
	}
	return ""
}

func (c *Connection) AgentDID() string {
	if ai := c.AgentInfo(); ai != nil {
		return ai.AgentDID
	}
	return ""
}

func (c *Connection) AgentVK() string {
	if ai := c.AgentInfo(); ai != nil {
		return ai.AgentVK
	}
	return ""
}

func (c *Connection) TheirPwDID() string {
	if c.role == RoleInviter {
		return c.inv.TheirDID
	}
	return c.ive.TheirDID
}

func (c *Connection) TheirPwVK() string {
	vk, _ := c.RemoteVK()
	return vk
}

// GetInviteDetails returns the serialized Invitation, or ok=false if this
// Connection has not yet reached Invited.
func (c *Connection) GetInviteDetails() (inv *message.Invitation, ok bool) {
	if c.role == RoleInviter {
		return c.inv.Invitation, c.inv.Invitation != nil
	}
	return c.ive.Invitation, c.ive.Invitation != nil
}

// Connect drives Null -> Invited (Inviter) or Invited -> Requested
// (Invitee).
func (c *Connection) Connect(ctx context.Context) error {
	if c.role == RoleInviter {
		next, _, err := inviter.Connect(ctx, c.inv, c.cfg.inviterDeps())
		c.inv = next
		return err
	}
	next, _, err := invitee.Connect(ctx, c.ive, c.cfg.inviteeDeps())
	c.ive = next
	return err
}

// FindMessageToHandle returns at most one (uid, message) pair: the single
// message whose type and thread id match this Connection's next expected
// input (spec.md §4.6). Iteration order over messages is not significant;
// exactly one match is expected to exist in well-formed fixtures.
func (c *Connection) FindMessageToHandle(messages map[string]message.Message) (uid string, msg message.Message, ok bool) {
	for uid, m := range messages {
		if c.matches(m) {
			return uid, m, true
		}
	}
	return "", nil, false
}

func (c *Connection) matches(msg message.Message) bool {
	if _, isPR := msg.(*message.ProblemReport); isPR {
		return c.State() != 4
	}
	if c.role == RoleInviter {
		switch c.inv.Kind {
		case inviter.Invited:
			_, ok := msg.(*message.Request)
			return ok
		case inviter.Responded:
			ack, ok := msg.(*message.Ack)
			if !ok {
				return false
			}
			thid, hasThread := ack.ThreadID()
			return hasThread && thid == c.inv.ResponseThreadID
		}
		return false
	}
	switch c.ive.Kind {
	case invitee.Requested:
		sr, ok := msg.(*message.SignedResponse)
		if !ok {
			return false
		}
		thid, hasThread := sr.ThreadID()
		return hasThread && thid == c.ive.RequestID
	}
	return false
}

// UpdateStateWithMessage dispatches msg to the SM appropriate for this
// Connection's role and current state.
func (c *Connection) UpdateStateWithMessage(ctx context.Context, msg message.Message) error {
	if c.role == RoleInviter {
		return c.updateInviter(ctx, msg)
	}
	return c.updateInvitee(ctx, msg)
}

func (c *Connection) updateInviter(ctx context.Context, msg message.Message) error {
	switch m := msg.(type) {
	case *message.Request:
		next, _, err := inviter.HandleRequest(ctx, c.inv, m, c.cfg.inviterDeps())
		c.inv = next
		return err
	case *message.Ack:
		next, err := inviter.HandleAck(c.inv, m)
		c.inv = next
		return err
	case *message.ProblemReport:
		c.inv = inviter.HandleProblemReport(c.inv)
		return nil
	default:
		return connerr.Newf(connerr.InvalidState, "unexpected message type %T for inviter in state %d", msg, c.inv.Kind)
	}
}

func (c *Connection) updateInvitee(ctx context.Context, msg message.Message) error {
	switch m := msg.(type) {
	case *message.SignedResponse:
		next, _, err := invitee.HandleResponse(ctx, c.ive, m, c.cfg.inviteeDeps())
		c.ive = next
		return err
	case *message.ProblemReport:
		c.ive = invitee.HandleProblemReport(c.ive)
		return nil
	default:
		return connerr.Newf(connerr.InvalidState, "unexpected message type %T for invitee in state %d", msg, c.ive.Kind)
	}
}

// SendGenericMessage sends a basicmessage text, allowed only once
// Completed (spec.md §7 NotReady).
func (c *Connection) SendGenericMessage(ctx context.Context, text string) error {
	if c.State() != 4 {
		return connerr.New(connerr.NotReady, "send_generic_message requires Completed state")
	}
	msg := &message.BasicMessage{AtType: message.TypeBasicMessage, AtID: uuid.NewString(), Content: text}
	return c.AgentInfo().SendMessage(ctx, msg, c.theirDidDoc())
}

// SendPing sends a trust-ping, allowed only once Completed.
func (c *Connection) SendPing(ctx context.Context, comment string) error {
	if c.State() != 4 {
		return connerr.New(connerr.NotReady, "send_ping requires Completed state")
	}
	msg := &message.Ping{AtType: message.TypePing, AtID: uuid.NewString(), Comment: comment, ResponseRequested: true}
	return c.AgentInfo().SendMessage(ctx, msg, c.theirDidDoc())
}

// SendDiscoveryFeatures sends a discover-features query, allowed only once
// Completed.
func (c *Connection) SendDiscoveryFeatures(ctx context.Context, query string) error {
	if c.State() != 4 {
		return connerr.New(connerr.NotReady, "send_discovery_features requires Completed state")
	}
	msg := &message.DiscoverQuery{AtType: message.TypeDiscoverQuery, AtID: uuid.NewString(), Query: query}
	return c.AgentInfo().SendMessage(ctx, msg, c.theirDidDoc())
}

// Delete deprovisions both the main and (if present) bootstrap agents in
// the agency, ignoring per-step failure to guarantee local release
// (spec.md §7: "delete continues past agency-side failures").
func (c *Connection) Delete(ctx context.Context) {
	if boot := c.BootstrapAgentInfo(); boot != nil && boot.Client != nil {
		_ = boot.Client.Deprovision(ctx, boot.AgentDID)
	}
	if ai := c.AgentInfo(); ai != nil && ai.Client != nil {
		_ = ai.Client.Deprovision(ctx, ai.AgentDID)
	}
}

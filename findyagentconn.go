// Package findyagentconn is the public programmatic surface (spec.md §6):
// a handle-based API over the Connection façade (C6) and handle cache
// (C7), plus the bootstrap-vs-stable update-state driver (C8).
package findyagentconn

import (
	"context"

	"github.com/findy-network/findy-agent-conn/cache"
	"github.com/findy-network/findy-agent-conn/connection"
	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/findy-network/findy-agent-conn/message"
)

// Core is the caller's handle to a running instance of the connection
// core: one handle cache plus the collaborators every Connection it holds
// is wired to.
type Core struct {
	cache *cache.Cache
	cfg   connection.Config
}

// New builds a Core backed by a cache named cacheName, wired to cfg's
// agency/crypto/push collaborators.
func New(cacheName string, cfg connection.Config) *Core {
	return &Core{cache: cache.New(cacheName), cfg: cfg}
}

// Create provisions a fresh Inviter or Invitee Connection (Null state)
// for sourceID and returns its handle.
func (c *Core) Create(sourceID string, role connection.Role) uint32 {
	conn := connection.New(sourceID, role, c.cfg)
	return c.cache.Add(conn)
}

// CreateWithInvite provisions an Invitee Connection already in the
// Invited state, having accepted inv.
func (c *Core) CreateWithInvite(sourceID string, inv *message.Invitation) (uint32, error) {
	conn, err := connection.CreateWithInvite(sourceID, inv, c.cfg)
	if err != nil {
		return 0, err
	}
	return c.cache.Add(conn), nil
}

// Connect drives the Connection at h through its connect() transition.
func (c *Core) Connect(ctx context.Context, h uint32) error {
	return c.cache.GetMut(h, func(conn *connection.Connection) error {
		return conn.Connect(ctx)
	})
}

// UpdateStateWithMessage dispatches msg directly to the Connection at h.
func (c *Core) UpdateStateWithMessage(ctx context.Context, h uint32, msg message.Message) error {
	return c.cache.GetMut(h, func(conn *connection.Connection) error {
		return conn.UpdateStateWithMessage(ctx, msg)
	})
}

// UpdateState runs the full C8 driver for h: poll the agency, pick at
// most one routable message, apply it, and ack the agency — including
// the Inviter's bootstrap-agent fallback (spec.md §4.8).
func (c *Core) UpdateState(ctx context.Context, h uint32) error {
	return c.cache.GetMut(h, func(conn *connection.Connection) error {
		return driveUpdateState(ctx, conn)
	})
}

func driveUpdateState(ctx context.Context, conn *connection.Connection) error {
	if conn.State() == 1 {
		return nil // Null: no-op
	}

	primary := conn.AgentInfo()
	if primary == nil {
		return connerr.New(connerr.NotReady, "connection has no active agent")
	}

	messages, err := primary.GetMessagesNoAuth(ctx)
	if err != nil {
		return err
	}
	if applied, applyErr := pickAndApply(ctx, conn, primary, messages); applied || applyErr != nil {
		return applyErr
	}

	boot := conn.BootstrapAgentInfo()
	if boot == nil {
		return nil
	}
	expectedVK, ok := conn.RemoteVK()
	if !ok {
		return nil // no counterparty known yet; abort cleanly (spec.md §4.8 step 5)
	}
	bootMessages, err := boot.GetMessages(ctx, expectedVK)
	if err != nil {
		return err
	}
	_, err = pickAndApply(ctx, conn, boot, bootMessages)
	return err
}

func pickAndApply(ctx context.Context, conn *connection.Connection, ai interface {
	UpdateMessageStatus(context.Context, string) error
}, messages map[string]message.Message) (applied bool, err error) {
	uid, msg, ok := conn.FindMessageToHandle(messages)
	if !ok {
		return false, nil
	}
	if err := conn.UpdateStateWithMessage(ctx, msg); err != nil {
		return true, err
	}
	if err := ai.UpdateMessageStatus(ctx, uid); err != nil {
		return true, err
	}
	return true, nil
}

// SendGenericMessage sends a basicmessage text over h's connection.
func (c *Core) SendGenericMessage(ctx context.Context, h uint32, text string) error {
	return c.cache.Get(h, func(conn *connection.Connection) error {
		return conn.SendGenericMessage(ctx, text)
	})
}

// SendPing sends a trust-ping over h's connection.
func (c *Core) SendPing(ctx context.Context, h uint32, comment string) error {
	return c.cache.Get(h, func(conn *connection.Connection) error {
		return conn.SendPing(ctx, comment)
	})
}

// SendDiscoveryFeatures sends a discover-features query over h's
// connection.
func (c *Core) SendDiscoveryFeatures(ctx context.Context, h uint32, query string) error {
	return c.cache.Get(h, func(conn *connection.Connection) error {
		return conn.SendDiscoveryFeatures(ctx, query)
	})
}

// GetMessages downloads and decrypts h's pending inbound messages without
// applying them to the state machine.
func (c *Core) GetMessages(ctx context.Context, h uint32) (map[string]message.Message, error) {
	var out map[string]message.Message
	err := c.cache.Get(h, func(conn *connection.Connection) error {
		ai := conn.AgentInfo()
		if ai == nil {
			return connerr.New(connerr.NotReady, "connection has no active agent")
		}
		var getErr error
		out, getErr = ai.GetMessagesNoAuth(ctx)
		return getErr
	})
	return out, err
}

// GetMessageByID downloads h's pending messages and returns the one
// matching uid, if present.
func (c *Core) GetMessageByID(ctx context.Context, h uint32, uid string) (message.Message, error) {
	messages, err := c.GetMessages(ctx, h)
	if err != nil {
		return nil, err
	}
	msg, ok := messages[uid]
	if !ok {
		return nil, connerr.Newf(connerr.IOError, "no message with uid %q", uid)
	}
	return msg, nil
}

// UpdateMessageStatus marks uid Reviewed in h's active agent.
func (c *Core) UpdateMessageStatus(ctx context.Context, h uint32, uid string) error {
	return c.cache.Get(h, func(conn *connection.Connection) error {
		ai := conn.AgentInfo()
		if ai == nil {
			return connerr.New(connerr.NotReady, "connection has no active agent")
		}
		return ai.UpdateMessageStatus(ctx, uid)
	})
}

// ToString serializes h's Connection to a snapshot string.
func (c *Core) ToString(h uint32) (string, error) {
	var out string
	err := c.cache.Get(h, func(conn *connection.Connection) error {
		var strErr error
		out, strErr = conn.ToString()
		return strErr
	})
	return out, err
}

// FromString rehydrates a snapshot into a fresh handle in this Core.
func (c *Core) FromString(data string) (uint32, error) {
	conn, err := connection.FromString(data, c.cfg)
	if err != nil {
		return 0, err
	}
	return c.cache.Add(conn), nil
}

// State returns h's stable wire state code, or 0 for an unknown handle
// (accessor must not fail, spec.md §8).
func (c *Core) State(h uint32) uint32 {
	var state uint32
	_ = c.cache.Get(h, func(conn *connection.Connection) error {
		state = conn.State()
		return nil
	})
	return state
}

// SourceID returns h's caller-chosen source id.
func (c *Core) SourceID(h uint32) (string, error) {
	var id string
	err := c.cache.Get(h, func(conn *connection.Connection) error {
		id = conn.SourceID()
		return nil
	})
	return id, err
}

// InviteDetails returns h's Invitation, if any has been produced yet.
func (c *Core) InviteDetails(h uint32) (*message.Invitation, error) {
	var inv *message.Invitation
	err := c.cache.Get(h, func(conn *connection.Connection) error {
		var ok bool
		inv, ok = conn.GetInviteDetails()
		if !ok {
			return connerr.New(connerr.ActionNotSupported, "no invite details available yet")
		}
		return nil
	})
	return inv, err
}

// ConnectionInfo is a read-only snapshot of h's pairwise identifiers, for
// the `connection_info` accessor group (spec.md §6).
type ConnectionInfo struct {
	PwDID      string
	PwVK       string
	AgentDID   string
	AgentVK    string
	TheirPwDID string
	TheirPwVK  string
	State      uint32
	SourceID   string
}

// ConnectionInfo returns h's current identifiers and state in one call.
func (c *Core) ConnectionInfo(h uint32) (info ConnectionInfo, err error) {
	err = c.cache.Get(h, func(conn *connection.Connection) error {
		info = ConnectionInfo{
			PwDID:      conn.PwDID(),
			PwVK:       conn.PwVK(),
			AgentDID:   conn.AgentDID(),
			AgentVK:    conn.AgentVK(),
			TheirPwDID: conn.TheirPwDID(),
			TheirPwVK:  conn.TheirPwVK(),
			State:      conn.State(),
			SourceID:   conn.SourceID(),
		}
		return nil
	})
	return info, err
}

// Release drops h from the cache without touching the agency.
func (c *Core) Release(h uint32) error {
	return c.cache.Release(h)
}

// ReleaseAll drops every handle in this Core's cache.
func (c *Core) ReleaseAll() {
	c.cache.ReleaseAll()
}

// Delete deprovisions h's agents in the agency (best-effort) and releases
// its handle, guaranteeing local release even on agency-side failure
// (spec.md §7).
func (c *Core) Delete(ctx context.Context, h uint32) error {
	err := c.cache.Get(h, func(conn *connection.Connection) error {
		conn.Delete(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	return c.cache.Release(h)
}

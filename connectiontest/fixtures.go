package connectiontest

import (
	"context"

	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/connection"
	"github.com/findy-network/findy-agent-conn/crypto/ed25519box"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/pushnotify"
)

// NewFixtureConfig builds a connection.Config wired to a fresh
// ed25519box.Codec and a FakeClient sharing net, suitable for driving one
// side of a handshake in tests.
func NewFixtureConfig(net *Network, label string) connection.Config {
	return connection.Config{
		Client:      NewFakeClient(net),
		Signer:      ed25519box.New(),
		Box:         ed25519box.New(),
		Push:        pushnotify.NoopHook{},
		RoutingKeys: nil,
		OwnLabel:    label,
		OwnDidDoc:   buildDidDoc,
	}
}

// buildDidDoc renders ai's own identity as a minimal, valid DidDoc
// (spec.md §3 invariants).
func buildDidDoc(ai *agentinfo.AgentInfo) diddoc.DidDoc {
	return diddoc.NewMinimal(ai.PwDID, ai.PwVK, ai.RoutingKeys(), ai.AgencyEndpoint())
}

// Ed25519box note: PackAuth only works for a sender key present in that
// Codec's own key ring; agentinfo.CreateAgent imports every key it mints
// into the side's Box, and each fixture side holds its own Signer and Box
// Codecs, matching production wiring (connection.Config.Box per side).

// BuildTestConnectionInviterInvited returns an Inviter Connection in the
// Invited state (having run connect()), alongside its fake network so a
// counterparty fixture can be built against the same mediator.
func BuildTestConnectionInviterInvited(ctx context.Context, sourceID string) (*connection.Connection, *Network, connection.Config) {
	net := NewNetwork()
	cfg := NewFixtureConfig(net, "inviter-"+sourceID)
	conn := connection.New(sourceID, connection.RoleInviter, cfg)
	_ = conn.Connect(ctx)
	return conn, net, cfg
}

// BuildTestConnectionInviteeInvited returns an Invitee Connection that has
// accepted inv, in the Invited state (has not yet called connect()).
func BuildTestConnectionInviteeInvited(net *Network, sourceID string, inv *connection.Connection) (*connection.Connection, connection.Config, error) {
	cfg := NewFixtureConfig(net, "invitee-"+sourceID)
	invDetails, _ := inv.GetInviteDetails()
	conn, err := connection.CreateWithInvite(sourceID, invDetails, cfg)
	return conn, cfg, err
}

// BuildTestConnectionInviteeRequested drives an Invitee fixture from
// Invited through connect(), reaching Requested.
func BuildTestConnectionInviteeRequested(ctx context.Context, net *Network, sourceID string, inviterConn *connection.Connection) (*connection.Connection, connection.Config, error) {
	conn, cfg, err := BuildTestConnectionInviteeInvited(net, sourceID, inviterConn)
	if err != nil {
		return nil, cfg, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, cfg, err
	}
	return conn, cfg, nil
}

// BuildTestConnectionPair drives both sides of a full handshake to
// Completed using the real two-sided protocol (no state is hand-assembled):
// Inviter connect -> Invitee accept+connect -> Inviter update_state
// (consumes Request) -> Invitee update_state (consumes SignedResponse,
// sends Ack) -> Inviter update_state (consumes Ack). Returns both sides'
// Connections, both Cores' shared Config is not returned since each side
// necessarily uses its own.
func BuildTestConnectionPair(ctx context.Context, sourceIDInviter, sourceIDInvitee string) (inviterConn, inviteeConn *connection.Connection, err error) {
	net := NewNetwork()

	inviterCfg := NewFixtureConfig(net, "inviter-"+sourceIDInviter)
	inviterConn = connection.New(sourceIDInviter, connection.RoleInviter, inviterCfg)
	if err = inviterConn.Connect(ctx); err != nil {
		return nil, nil, err
	}
	inv, _ := inviterConn.GetInviteDetails()

	inviteeCfg := NewFixtureConfig(net, "invitee-"+sourceIDInvitee)
	inviteeConn, err = connection.CreateWithInvite(sourceIDInvitee, inv, inviteeCfg)
	if err != nil {
		return nil, nil, err
	}
	if err = inviteeConn.Connect(ctx); err != nil {
		return nil, nil, err
	}

	if err = driveOnce(ctx, inviterConn); err != nil {
		return nil, nil, err
	}
	if err = driveOnce(ctx, inviteeConn); err != nil {
		return nil, nil, err
	}
	if err = driveOnce(ctx, inviterConn); err != nil {
		return nil, nil, err
	}

	return inviterConn, inviteeConn, nil
}

// driveOnce polls conn's own agent (and, for an Inviter still holding one,
// its bootstrap agent) for a single routable message and applies it,
// mirroring findyagentconn's C8 driver without importing that package
// (which would create an import cycle back into connectiontest's
// consumers).
func driveOnce(ctx context.Context, conn *connection.Connection) error {
	if conn.State() == 1 {
		return nil
	}
	ai := conn.AgentInfo()
	if ai == nil {
		return nil
	}
	messages, err := ai.GetMessagesNoAuth(ctx)
	if err != nil {
		return err
	}
	if uid, msg, ok := conn.FindMessageToHandle(messages); ok {
		if err := conn.UpdateStateWithMessage(ctx, msg); err != nil {
			return err
		}
		return ai.UpdateMessageStatus(ctx, uid)
	}

	boot := conn.BootstrapAgentInfo()
	if boot == nil {
		return nil
	}
	vk, ok := conn.RemoteVK()
	if !ok {
		return nil
	}
	bootMessages, err := boot.GetMessages(ctx, vk)
	if err != nil {
		return err
	}
	if uid, msg, ok := conn.FindMessageToHandle(bootMessages); ok {
		if err := conn.UpdateStateWithMessage(ctx, msg); err != nil {
			return err
		}
		return boot.UpdateMessageStatus(ctx, uid)
	}
	return nil
}

package connection_test

import (
	"context"
	"testing"

	"github.com/findy-network/findy-agent-conn/connection"
	"github.com/findy-network/findy-agent-conn/connectiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTripInviterNullAndInvited(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()

	cfg := connectiontest.NewFixtureConfig(net, "inviter")
	conn := connection.New("conn-rt", connection.RoleInviter, cfg)
	assertRoundTrip(t, conn, cfg)

	require.NoError(t, conn.Connect(ctx))
	assertRoundTrip(t, conn, cfg)
}

func TestSnapshotRoundTripInvitee(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()

	inviterCfg := connectiontest.NewFixtureConfig(net, "inviter")
	inviterConn := connection.New("conn-rt-2", connection.RoleInviter, inviterCfg)
	require.NoError(t, inviterConn.Connect(ctx))
	inv, _ := inviterConn.GetInviteDetails()

	inviteeCfg := connectiontest.NewFixtureConfig(net, "invitee")
	inviteeConn, err := connection.CreateWithInvite("conn-rt-2", inv, inviteeCfg)
	require.NoError(t, err)
	assertRoundTrip(t, inviteeConn, inviteeCfg)

	require.NoError(t, inviteeConn.Connect(ctx))
	assertRoundTrip(t, inviteeConn, inviteeCfg)
}

// TestSnapshotRoundTripToCompletedBothRoles drives a full handshake to
// Completed, capturing the Inviter mid-handshake in Responded (where it
// holds a distinct BootstrapAgentInfo from its rotated AgentInfo, per
// sm/inviter's HandleRequest) so the round-trip law is also checked against
// every state connection/snapshot.go's BootstrapAgentInfo path can see:
// Invited, Responded, Completed for the Inviter; Requested, Completed for
// the Invitee.
func TestSnapshotRoundTripToCompletedBothRoles(t *testing.T) {
	ctx := context.Background()

	inviterConn, net, inviterCfg := connectiontest.BuildTestConnectionInviterInvited(ctx, "conn-rt-3")
	assertRoundTrip(t, inviterConn, inviterCfg)

	inviteeConn, inviteeCfg, err := connectiontest.BuildTestConnectionInviteeRequested(ctx, net, "conn-rt-3", inviterConn)
	require.NoError(t, err)
	assertRoundTrip(t, inviteeConn, inviteeCfg)

	// Inviter consumes the Request, rotates to a fresh agent, and responds:
	// Invited -> Responded.
	require.NoError(t, driveOnce(ctx, inviterConn))
	require.EqualValues(t, 3, inviterConn.State())
	assertRoundTrip(t, inviterConn, inviterCfg)

	// Invitee consumes the SignedResponse and sends its Ack: Requested -> Completed.
	require.NoError(t, driveOnce(ctx, inviteeConn))
	require.EqualValues(t, 4, inviteeConn.State())
	assertRoundTrip(t, inviteeConn, inviteeCfg)

	// Inviter consumes the Ack: Responded -> Completed.
	require.NoError(t, driveOnce(ctx, inviterConn))
	require.EqualValues(t, 4, inviterConn.State())
	assertRoundTrip(t, inviterConn, inviterCfg)
}

// driveOnce polls conn's own agent (and, for an Inviter still holding one,
// its bootstrap agent) for a single routable message and applies it,
// mirroring connectiontest's own fixture driver and findyagentconn's C8
// driver, rewritten locally since connectiontest's copy is unexported.
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

// assertRoundTrip checks spec.md's core snapshot law: from_string(to_string(h)) == h,
// compared field by field since *Connection holds unexported state.
func assertRoundTrip(t *testing.T, conn *connection.Connection, cfg connection.Config) {
	t.Helper()
	snap, err := conn.ToString()
	require.NoError(t, err)

	restored, err := connection.FromString(snap, cfg)
	require.NoError(t, err)

	assert.Equal(t, conn.SourceID(), restored.SourceID())
	assert.Equal(t, conn.Role(), restored.Role())
	assert.Equal(t, conn.State(), restored.State())
	assert.Equal(t, conn.PwDID(), restored.PwDID())
	assert.Equal(t, conn.PwVK(), restored.PwVK())
	assert.Equal(t, conn.AgentDID(), restored.AgentDID())
	assert.Equal(t, conn.TheirPwDID(), restored.TheirPwDID())

	restoredSnap, err := restored.ToString()
	require.NoError(t, err)
	assert.JSONEq(t, snap, restoredSnap)
}

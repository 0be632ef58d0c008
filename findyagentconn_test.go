package findyagentconn

import (
	"context"
	"testing"

	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/connection"
	"github.com/findy-network/findy-agent-conn/connectiontest"
	"github.com/findy-network/findy-agent-conn/crypto/ed25519box"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driveToCompleted runs inviter/invitee Cores through the full handshake
// using their own update-state driver (this package's C8), mirroring how a
// real caller would poll both sides rather than hand-applying messages.
func driveToCompleted(t *testing.T, ctx context.Context, inviterCore *Core, hInviter uint32, inviteeCore *Core, hInvitee uint32) {
	t.Helper()
	// inviter: consume Request -> Responded
	require.NoError(t, inviterCore.UpdateState(ctx, hInviter))
	assert.EqualValues(t, 3, inviterCore.State(hInviter))

	// invitee: consume SignedResponse -> Completed, sends Ack
	require.NoError(t, inviteeCore.UpdateState(ctx, hInvitee))
	assert.EqualValues(t, 4, inviteeCore.State(hInvitee))

	// inviter: consume Ack -> Completed
	require.NoError(t, inviterCore.UpdateState(ctx, hInviter))
	assert.EqualValues(t, 4, inviterCore.State(hInviter))
}

func TestHappyPathBothRoles(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()

	inviterCore := New("inviter-cache", connectiontest.NewFixtureConfig(net, "inviter"))
	hInviter := inviterCore.Create("conn-1", connection.RoleInviter)
	require.NoError(t, inviterCore.Connect(ctx, hInviter))
	assert.EqualValues(t, 2, inviterCore.State(hInviter))

	inv, err := inviterCore.InviteDetails(hInviter)
	require.NoError(t, err)

	inviteeCore := New("invitee-cache", connectiontest.NewFixtureConfig(net, "invitee"))
	hInvitee, err := inviteeCore.CreateWithInvite("conn-1", inv)
	require.NoError(t, err)
	assert.EqualValues(t, 2, inviteeCore.State(hInvitee))

	require.NoError(t, inviteeCore.Connect(ctx, hInvitee))
	assert.EqualValues(t, 2, inviteeCore.State(hInvitee))

	driveToCompleted(t, ctx, inviterCore, hInviter, inviteeCore, hInvitee)

	inviterInfo, err := inviterCore.ConnectionInfo(hInviter)
	require.NoError(t, err)
	inviteeInfo, err := inviteeCore.ConnectionInfo(hInvitee)
	require.NoError(t, err)
	assert.Equal(t, inviterInfo.PwDID, inviteeInfo.TheirPwDID)
	assert.Equal(t, inviteeInfo.PwDID, inviterInfo.TheirPwDID)
}

func TestForgedResponseRejected(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()

	inviterCore := New("inviter-cache", connectiontest.NewFixtureConfig(net, "inviter"))
	hInviter := inviterCore.Create("conn-2", connection.RoleInviter)
	require.NoError(t, inviterCore.Connect(ctx, hInviter))
	inv, err := inviterCore.InviteDetails(hInviter)
	require.NoError(t, err)

	inviteeCore := New("invitee-cache", connectiontest.NewFixtureConfig(net, "invitee"))
	hInvitee, err := inviteeCore.CreateWithInvite("conn-2", inv)
	require.NoError(t, err)
	require.NoError(t, inviteeCore.Connect(ctx, hInvitee))

	// A forged response, signed by an unrelated key, never claiming the
	// invitee's own thread id but otherwise well-formed.
	attacker := ed25519box.New()
	attackerKey, err := attacker.GenerateKeyPair()
	require.NoError(t, err)

	forgedSig, err := message.SignConnection(
		attacker, attackerKey.Verkey,
		"forged-id", "not-our-thread",
		message.Response{DID: "attacker-did"},
	)
	require.NoError(t, err)

	messages, err := inviteeCore.GetMessages(ctx, hInvitee)
	require.NoError(t, err)
	assert.Empty(t, messages, "no legitimate response delivered yet")

	err = inviteeCore.UpdateStateWithMessage(ctx, hInvitee, forgedSig)
	require.NoError(t, err, "a forged response is modeled as a clean Null transition, not a Go error")
	assert.EqualValues(t, 1, inviteeCore.State(hInvitee), "rejection resets to Null")
}

// TestUpdateStateFallsBackToBootstrapAgent exercises spec.md §4.8's named
// bootstrap-fallback scenario: once the inviter has rotated to a fresh
// agent in Responded, an Ack that reaches its retired bootstrap agent
// instead of the rotated primary one (a plausible network race: the
// counterparty learns of the rotated DID from the very Response the Ack
// answers) must still be found and applied.
func TestUpdateStateFallsBackToBootstrapAgent(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()

	inviterCore := New("inviter-cache-3", connectiontest.NewFixtureConfig(net, "inviter"))
	hInviter := inviterCore.Create("conn-3", connection.RoleInviter)
	require.NoError(t, inviterCore.Connect(ctx, hInviter))
	inv, err := inviterCore.InviteDetails(hInviter)
	require.NoError(t, err)

	inviteeCore := New("invitee-cache-3", connectiontest.NewFixtureConfig(net, "invitee"))
	hInvitee, err := inviteeCore.CreateWithInvite("conn-3", inv)
	require.NoError(t, err)
	require.NoError(t, inviteeCore.Connect(ctx, hInvitee))

	// Inviter consumes the Request, rotates to a fresh agent, and responds:
	// Invited -> Responded. Its bootstrap agent is retained.
	require.NoError(t, inviterCore.UpdateState(ctx, hInviter))
	require.EqualValues(t, 3, inviterCore.State(hInviter))

	var bootAI, primaryAI *agentinfo.AgentInfo
	require.NoError(t, inviterCore.cache.Get(hInviter, func(conn *connection.Connection) error {
		bootAI = conn.BootstrapAgentInfo()
		primaryAI = conn.AgentInfo()
		return nil
	}))
	require.NotNil(t, bootAI)
	require.NotNil(t, primaryAI)
	require.NotEqual(t, bootAI.AgentDID, primaryAI.AgentDID, "HandleRequest must have rotated to a distinct agent")

	// Pull the pending SignedResponse off the invitee's inbox without
	// applying it, purely to learn the thread id its Ack must echo.
	messages, err := inviteeCore.GetMessages(ctx, hInvitee)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	var sr *message.SignedResponse
	for _, msg := range messages {
		var ok bool
		sr, ok = msg.(*message.SignedResponse)
		require.True(t, ok)
	}
	threadID, hasThread := sr.ThreadID()
	require.True(t, hasThread)

	var inviteeAI *agentinfo.AgentInfo
	require.NoError(t, inviteeCore.cache.Get(hInvitee, func(conn *connection.Connection) error {
		inviteeAI = conn.AgentInfo()
		return nil
	}))
	require.NotNil(t, inviteeAI)

	// Address the Ack at the bootstrap agent's DID directly instead of the
	// rotated primary one, then confirm the rotated primary's inbox really
	// is empty so the fallback branch is the only path that can succeed.
	bootDoc := diddoc.NewMinimal(bootAI.PwDID, bootAI.PwVK, bootAI.RoutingKeys(), bootAI.AgencyEndpoint())
	ack := message.NewAck(uuid.NewString(), threadID, message.AckOK)
	require.NoError(t, inviteeAI.SendMessage(ctx, ack, &bootDoc))

	primaryMessages, err := primaryAI.GetMessagesNoAuth(ctx)
	require.NoError(t, err)
	require.Empty(t, primaryMessages, "the Ack must not have landed on the rotated primary agent")

	require.NoError(t, inviterCore.UpdateState(ctx, hInviter))
	assert.EqualValues(t, 4, inviterCore.State(hInviter), "the bootstrap-agent fallback must still advance Responded -> Completed")
}

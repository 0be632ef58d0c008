package inviter_test

import (
	"context"
	"testing"

	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/connectiontest"
	"github.com/findy-network/findy-agent-conn/crypto/ed25519box"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/findy-network/findy-agent-conn/pushnotify"
	"github.com/findy-network/findy-agent-conn/sm/inviter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(net *connectiontest.Network) inviter.Deps {
	return inviter.Deps{
		Client:   connectiontest.NewFakeClient(net),
		Signer:   ed25519box.New(),
		Box:      ed25519box.New(),
		Push:     pushnotify.NoopHook{},
		OwnLabel: "test-inviter",
		OwnDidDoc: func(ai *agentinfo.AgentInfo) diddoc.DidDoc {
			return diddoc.NewMinimal(ai.PwDID, ai.PwVK, ai.RoutingKeys(), ai.AgencyEndpoint())
		},
		Validate: diddoc.Validate,
	}
}

// invitedState drives a fresh Inviter SM through Connect, returning the
// resulting Invited state plus the deps used so a caller can continue.
func invitedState(t *testing.T, ctx context.Context, net *connectiontest.Network, sourceID string) (inviter.State, inviter.Deps) {
	t.Helper()
	deps := testDeps(net)
	s, inv, err := inviter.Connect(ctx, inviter.New(sourceID), deps)
	require.NoError(t, err)
	require.Equal(t, inviter.Invited, s.Kind)
	require.NotNil(t, inv)
	return s, deps
}

func counterpartyRequest(t *testing.T, net *connectiontest.Network, inv *message.Invitation) *message.Request {
	t.Helper()
	counterpartyAI, err := agentinfo.CreateAgent(context.Background(),
		connectiontest.NewFakeClient(net), ed25519box.New(), ed25519box.New(), pushnotify.NoopHook{},
		agentinfo.NewPairwiseDID(), nil)
	require.NoError(t, err)
	ownDoc := diddoc.NewMinimal(counterpartyAI.PwDID, counterpartyAI.PwVK, nil, counterpartyAI.AgencyEndpoint())
	return message.NewRequest("req-1", "counterparty", counterpartyAI.PwDID, ownDoc)
}

func TestConnectProducesInvitation(t *testing.T) {
	net := connectiontest.NewNetwork()
	s, _ := invitedState(t, context.Background(), net, "src-1")
	assert.EqualValues(t, 2, s.Kind.StateCode())
	assert.NotNil(t, s.BootstrapAgentInfo)
	assert.Equal(t, s.AgentInfo, s.BootstrapAgentInfo, "the bootstrap agent is also the current agent until a request arrives")
}

func TestHandleRequestRotatesKeyAndResponds(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, deps := invitedState(t, ctx, net, "src-2")

	req := counterpartyRequest(t, net, s.Invitation)
	next, out, err := inviter.HandleRequest(ctx, s, req, deps)
	require.NoError(t, err)
	assert.Equal(t, inviter.Responded, next.Kind)
	assert.NotEqual(t, s.AgentInfo.PwVK, next.AgentInfo.PwVK, "HandleRequest rotates to a fresh pairwise key")
	assert.Equal(t, s.BootstrapAgentInfo.PwVK, next.BootstrapAgentInfo.PwVK, "bootstrap agent is retained until Ack")

	sr, ok := out.(*message.SignedResponse)
	require.True(t, ok)
	thid, hasThread := sr.ThreadID()
	require.True(t, hasThread)
	assert.Equal(t, next.ResponseThreadID, thid)
}

func TestHandleRequestRejectsInvalidDidDoc(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, deps := invitedState(t, ctx, net, "src-3")

	badReq := &message.Request{
		AtType: message.TypeRequest,
		AtID:   "bad-req",
		Label:  "bad",
		Connection: message.ConnectionData{
			DID:    "did:peer:bad",
			DIDDoc: diddoc.DidDoc{ID: "did:peer:bad"}, // no service/auth entries
		},
	}

	next, out, err := inviter.HandleRequest(ctx, s, badReq, deps)
	require.NoError(t, err, "an invalid DidDoc is a clean Null transition, not a Go error")
	assert.Equal(t, inviter.Null, next.Kind)
	_, isPR := out.(*message.ProblemReport)
	assert.True(t, isPR)
}

func TestHandleAckCompletesOnMatchingThread(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, deps := invitedState(t, ctx, net, "src-4")
	req := counterpartyRequest(t, net, s.Invitation)
	responded, _, err := inviter.HandleRequest(ctx, s, req, deps)
	require.NoError(t, err)

	ack := message.NewAck("ack-1", responded.ResponseThreadID, message.AckOK)
	completed, err := inviter.HandleAck(responded, ack)
	require.NoError(t, err)
	assert.Equal(t, inviter.Completed, completed.Kind)
}

func TestHandleAckIgnoresMismatchedThread(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, deps := invitedState(t, ctx, net, "src-5")
	req := counterpartyRequest(t, net, s.Invitation)
	responded, _, err := inviter.HandleRequest(ctx, s, req, deps)
	require.NoError(t, err)

	ack := message.NewAck("ack-2", "some-other-thread", message.AckOK)
	unchanged, err := inviter.HandleAck(responded, ack)
	require.NoError(t, err)
	assert.Equal(t, inviter.Responded, unchanged.Kind, "a mismatched ack is ignored, not rejected")
}

package invitee_test

import (
	"context"
	"testing"

	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/connectiontest"
	"github.com/findy-network/findy-agent-conn/crypto/ed25519box"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/findy-network/findy-agent-conn/pushnotify"
	"github.com/findy-network/findy-agent-conn/sm/invitee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(net *connectiontest.Network) invitee.Deps {
	return invitee.Deps{
		Client:   connectiontest.NewFakeClient(net),
		Signer:   ed25519box.New(),
		Box:      ed25519box.New(),
		Push:     pushnotify.NoopHook{},
		OwnLabel: "test-invitee",
		OwnDidDoc: func(ai *agentinfo.AgentInfo) diddoc.DidDoc {
			return diddoc.NewMinimal(ai.PwDID, ai.PwVK, ai.RoutingKeys(), ai.AgencyEndpoint())
		},
	}
}

// issuerInvitation builds an invitation as a real Inviter would, so the
// invitee tests exercise its recipient-key/endpoint shape exactly.
func issuerInvitation(t *testing.T, net *connectiontest.Network) (*message.Invitation, *agentinfo.AgentInfo, *ed25519box.Codec) {
	t.Helper()
	signer := ed25519box.New()
	ai, err := agentinfo.CreateAgent(context.Background(),
		connectiontest.NewFakeClient(net), signer, ed25519box.New(), pushnotify.NoopHook{},
		agentinfo.NewPairwiseDID(), nil)
	require.NoError(t, err)

	inv := message.NewInvitation("inv-1")
	inv.Label = "issuer"
	inv.RecipientKeys = ai.RecipientKeys()
	inv.RoutingKeys = ai.RoutingKeys()
	inv.ServiceEndpoint = ai.AgencyEndpoint()
	return inv, ai, signer
}

func requestedState(t *testing.T, ctx context.Context, net *connectiontest.Network, sourceID string) (invitee.State, invitee.Deps, *message.Invitation, *agentinfo.AgentInfo, *ed25519box.Codec) {
	t.Helper()
	deps := testDeps(net)
	inv, issuerAI, issuerSigner := issuerInvitation(t, net)

	s, err := invitee.Accept(invitee.New(sourceID), inv)
	require.NoError(t, err)
	require.Equal(t, invitee.Invited, s.Kind)

	next, req, err := invitee.Connect(ctx, s, deps)
	require.NoError(t, err)
	require.Equal(t, invitee.Requested, next.Kind)
	require.Equal(t, req.AtID, next.RequestID)

	return next, deps, inv, issuerAI, issuerSigner
}

func TestAcceptRequiresNullState(t *testing.T) {
	s := invitee.State{Kind: invitee.Invited}
	_, err := invitee.Accept(s, message.NewInvitation("x"))
	assert.Error(t, err)
}

func TestConnectSendsRequestToInvitationEndpoint(t *testing.T) {
	net := connectiontest.NewNetwork()
	next, _, inv, _, _ := requestedState(t, context.Background(), net, "src-1")
	assert.NotEmpty(t, next.RequestID)
	assert.Equal(t, inv, next.Invitation)
}

func TestHandleResponseCompletesOnValidSignature(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, deps, _, issuerAI, issuerSigner := requestedState(t, ctx, net, "src-2")

	counterpartyDoc := diddoc.NewMinimal(issuerAI.PwDID, issuerAI.PwVK, nil, issuerAI.AgencyEndpoint())
	sr, err := message.SignConnection(issuerSigner, issuerAI.PwVK, "resp-1", s.RequestID,
		message.Response{DID: issuerAI.PwDID, DIDDoc: counterpartyDoc})
	require.NoError(t, err)

	next, out, err := invitee.HandleResponse(ctx, s, sr, deps)
	require.NoError(t, err)
	assert.Equal(t, invitee.Completed, next.Kind)
	assert.Equal(t, issuerAI.PwDID, next.TheirDID)

	ack, ok := out.(*message.Ack)
	require.True(t, ok)
	thid, hasThread := ack.ThreadID()
	require.True(t, hasThread)
	assert.Equal(t, s.RequestID, thid)
}

func TestHandleResponseRejectsThreadMismatch(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, deps, _, issuerAI, issuerSigner := requestedState(t, ctx, net, "src-3")

	counterpartyDoc := diddoc.NewMinimal(issuerAI.PwDID, issuerAI.PwVK, nil, issuerAI.AgencyEndpoint())
	sr, err := message.SignConnection(issuerSigner, issuerAI.PwVK, "resp-2", "not-the-request-id",
		message.Response{DID: issuerAI.PwDID, DIDDoc: counterpartyDoc})
	require.NoError(t, err)

	next, out, err := invitee.HandleResponse(ctx, s, sr, deps)
	require.NoError(t, err, "a thread mismatch is a clean Null transition, not a Go error")
	assert.Equal(t, invitee.Null, next.Kind)
	_, isPR := out.(*message.ProblemReport)
	assert.True(t, isPR)
}

func TestHandleResponseRejectsForgedSignature(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, deps, _, issuerAI, _ := requestedState(t, ctx, net, "src-4")

	// An attacker can only sign with a key in its own ring; it never holds
	// issuerAI's private key, so the best it can do is sign honestly under
	// its own verkey and hope HandleResponse doesn't check ConnSig.Signer
	// against the invitation's expected recipient key.
	attacker := ed25519box.New()
	kp, kpErr := attacker.GenerateKeyPair()
	require.NoError(t, kpErr)

	counterpartyDoc := diddoc.NewMinimal(issuerAI.PwDID, issuerAI.PwVK, nil, issuerAI.AgencyEndpoint())
	sr, err := message.SignConnection(attacker, kp.Verkey, "resp-3", s.RequestID,
		message.Response{DID: issuerAI.PwDID, DIDDoc: counterpartyDoc})
	require.NoError(t, err)

	next, out, err := invitee.HandleResponse(ctx, s, sr, deps)
	require.NoError(t, err)
	assert.Equal(t, invitee.Null, next.Kind, "signer verkey mismatch against the invitation must not complete the connection")
	_, isPR := out.(*message.ProblemReport)
	assert.True(t, isPR)
}

func TestHandleProblemReportResetsToNull(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	s, _, _, _, _ := requestedState(t, ctx, net, "src-5")
	next := invitee.HandleProblemReport(s)
	assert.Equal(t, invitee.Null, next.Kind)
	assert.Equal(t, s.SourceID, next.SourceID)
}

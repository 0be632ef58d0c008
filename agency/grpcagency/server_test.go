package grpcagency

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer boots the reference agency server over an in-memory
// bufconn listener and returns a *Client dialed against it, so the whole
// client/server/auth pipeline runs without a real network.
func startTestServer(t *testing.T, secret []byte) (*Client, *Store) {
	t.Helper()

	store := NewStore()
	gs := NewServer(store, secret)

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	token, err := IssueToken("caller-1", secret, time.Hour)
	require.NoError(t, err)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	client, err := Dial("bufnet", token, grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, store
}

func TestClientServerRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, store := startTestServer(t, []byte("test-secret"))

	agentDID, agentVK, err := client.ProvisionAgent(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, agentDID)
	assert.NotEmpty(t, agentVK)

	require.NoError(t, client.RegisterKeys(ctx, agentDID, "pw-did-1", "pw-vk-1"))

	store.mu.Lock()
	rec, ok := store.agents[agentDID]
	store.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "pw-vk-1", rec.pairwiseDIDs["pw-did-1"],
		"RegisterKeys must bind the pairwise key under the agent that actually owns it, not under an empty agentDID")

	require.NoError(t, client.Upload(ctx, agentDID, []byte("wire-1")))
	msgs, err := client.Download(ctx, agentDID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var uid string
	for k := range msgs {
		uid = k
	}
	assert.Equal(t, []byte("wire-1"), msgs[uid])

	require.NoError(t, client.UpdateMessageStatus(ctx, agentDID, uid))
	msgsAfter, err := client.Download(ctx, agentDID)
	require.NoError(t, err)
	assert.Empty(t, msgsAfter, "a reviewed message must not be downloaded again")

	require.NoError(t, client.Deprovision(ctx, agentDID))
	store.mu.Lock()
	_, stillExists := store.agents[agentDID]
	store.mu.Unlock()
	assert.False(t, stillExists)
}

func TestAuthInterceptorRejectsMissingToken(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	gs := NewServer(store, []byte("test-secret"))

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	conn, err := grpc.NewClient("bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Invoke(ctx, "/"+serviceName+"/ProvisionAgent", &provisionAgentRequest{}, &provisionAgentResponse{})
	assert.Error(t, err, "a call without a bearer token must be rejected by the auth interceptor")
}

func TestAuthInterceptorRejectsBadSecret(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	gs := NewServer(store, []byte("test-secret"))

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	token, err := IssueToken("caller-1", []byte("wrong-secret"), time.Hour)
	require.NoError(t, err)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	client, err := Dial("bufnet", token, grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	defer client.Close()

	_, _, err = client.ProvisionAgent(ctx)
	assert.Error(t, err)
}

// Package connectiontest provides in-memory fakes of the agency/crypto
// external collaborators (C9/C10) plus fixture builders for the
// Inviter/Invitee state machines, grounded on connection.rs's
// `#[cfg(test)] pub mod tests` builders and findy-agent's
// agent/bus/question_test.go testify style.
package connectiontest

import (
	"context"
	"sync"

	"github.com/findy-network/findy-agent-conn/agency"
	"github.com/google/uuid"
)

type fakeInbox struct {
	wire     []byte
	reviewed bool
}

type fakeAgent struct {
	verkey string
	inbox  map[string]*fakeInbox
}

// Network is a shared in-memory mediator two FakeClients can exchange
// messages through, standing in for a real agency/mediator in tests.
type Network struct {
	mu     sync.Mutex
	agents map[string]*fakeAgent
}

// NewNetwork returns an empty fake mediator network.
func NewNetwork() *Network {
	return &Network{agents: make(map[string]*fakeAgent)}
}

// FakeClient is an in-memory agency.Client over a shared Network.
type FakeClient struct {
	net *Network
}

var _ agency.Client = (*FakeClient)(nil)

// NewFakeClient returns a FakeClient sharing net with any other FakeClient
// built from the same Network, so messages uploaded by one are visible to
// another by agent DID.
func NewFakeClient(net *Network) *FakeClient {
	return &FakeClient{net: net}
}

func (f *FakeClient) ProvisionAgent(context.Context) (agentDID, agentVerkey string, err error) {
	agentDID = uuid.NewString()
	agentVerkey = uuid.NewString()
	f.net.mu.Lock()
	f.net.agents[agentDID] = &fakeAgent{verkey: agentVerkey, inbox: make(map[string]*fakeInbox)}
	f.net.mu.Unlock()
	return agentDID, agentVerkey, nil
}

func (f *FakeClient) RegisterKeys(context.Context, string, string, string) error {
	return nil
}

// Upload delivers wire into destAgentDID's inbox, simulating delivery to
// whatever agent the counterparty's serviceEndpoint names.
func (f *FakeClient) Upload(_ context.Context, destAgentDID string, wire []byte) error {
	f.net.mu.Lock()
	defer f.net.mu.Unlock()
	agent, ok := f.net.agents[destAgentDID]
	if !ok {
		agent = &fakeAgent{inbox: make(map[string]*fakeInbox)}
		f.net.agents[destAgentDID] = agent
	}
	agent.inbox[uuid.NewString()] = &fakeInbox{wire: wire}
	return nil
}

func (f *FakeClient) Download(_ context.Context, agentDID string) (map[string][]byte, error) {
	f.net.mu.Lock()
	defer f.net.mu.Unlock()
	agent, ok := f.net.agents[agentDID]
	if !ok {
		return map[string][]byte{}, nil
	}
	out := make(map[string][]byte)
	for uid, entry := range agent.inbox {
		if !entry.reviewed {
			out[uid] = entry.wire
		}
	}
	return out, nil
}

func (f *FakeClient) UpdateMessageStatus(_ context.Context, agentDID, uid string) error {
	f.net.mu.Lock()
	defer f.net.mu.Unlock()
	if agent, ok := f.net.agents[agentDID]; ok {
		if entry, ok := agent.inbox[uid]; ok {
			entry.reviewed = true
		}
	}
	return nil
}

func (f *FakeClient) Deprovision(_ context.Context, agentDID string) error {
	f.net.mu.Lock()
	defer f.net.mu.Unlock()
	delete(f.net.agents, agentDID)
	return nil
}

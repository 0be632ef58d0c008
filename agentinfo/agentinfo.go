// Package agentinfo implements the pairwise agent-info bundle (C2): the
// identifiers and mediator credentials one side of a connection uses to
// send and receive wire messages, plus the thin retry policy around the
// agency client that findy-agent's own SA-call plumbing draws between
// transport failures (retryable) and protocol rejections (not).
package agentinfo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/findy-network/findy-agent-conn/agency"
	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/findy-network/findy-agent-conn/crypto"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/findy-network/findy-agent-conn/pushnotify"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/lainio/err2"
)

// NewPairwiseDID mints a fresh local pairwise DID. DID generation proper
// is outside this module's external-collaborator boundaries (spec.md §1);
// this is the minimal local identifier minting CreateAgent needs to
// register a pairwise keypair against the agency.
func NewPairwiseDID() string { return "did:peer:" + uuid.NewString() }

// AgentInfo is the pairwise identity and mediator credentials of one side
// of a connection. It carries only wire-relevant data: Client is excluded
// from JSON so snapshots (spec.md §6) round-trip the data fields only.
type AgentInfo struct {
	PwDID      string   `json:"pwDid"`
	PwVK       string   `json:"pwVk"`
	AgentDID   string   `json:"agentDid"`
	AgentVK    string   `json:"agentVk"`
	RoutingKey []string `json:"routingKeys"`

	Client agency.Client `json:"-"`
	Signer crypto.Signer `json:"-"`
	Box    crypto.Box    `json:"-"`
	Push   pushnotify.Hook `json:"-"`
}

// RetryMax bounds the number of attempts a transport-level agency call is
// retried before giving up (config.Settings.UpdateStateRetryMax feeds this).
var RetryMax = 3

// CreateAgent provisions a fresh pairwise identity via the agency client,
// mints an Ed25519 keypair for it (importing it into box when box supports
// Import), and registers the pairwise verkey.
func CreateAgent(
	ctx context.Context,
	client agency.Client,
	signer crypto.Signer,
	box crypto.Box,
	push pushnotify.Hook,
	pwDID string,
	routingKeys []string,
) (ai *AgentInfo, err error) {
	defer err2.Handle(&err, func() {
		err = connerr.Wrap(connerr.CreateConnection, err)
	})

	agentDID, agentVK, provErr := client.ProvisionAgent(ctx)
	if provErr != nil {
		if errors.Is(provErr, agency.ErrTransport) {
			err = connerr.Wrap(connerr.AgencyFailure, provErr)
		} else {
			err = connerr.Wrap(connerr.CreateConnection, provErr)
		}
		return nil, err
	}

	kp, kpErr := generateOrUse(signer)
	err2.Check(kpErr)
	// The Box packs and unpacks under the same key, so it must hold it too.
	if imp, ok := box.(interface{ Import(string, []byte) error }); ok {
		err2.Check(imp.Import(kp.Verkey, kp.Private))
	}

	err2.Check(client.RegisterKeys(ctx, agentDID, pwDID, kp.Verkey))

	return &AgentInfo{
		PwDID:      pwDID,
		PwVK:       kp.Verkey,
		AgentDID:   agentDID,
		AgentVK:    agentVK,
		RoutingKey: routingKeys,
		Client:     client,
		Signer:     signer,
		Box:        box,
		Push:       push,
	}, nil
}

// generator is the optional extension a crypto.Signer may implement to
// mint its own keypairs; ed25519box.Codec satisfies it.
type generator interface {
	GenerateKeyPair() (crypto.KeyPair, error)
}

func generateOrUse(signer crypto.Signer) (crypto.KeyPair, error) {
	if g, ok := signer.(generator); ok {
		return g.GenerateKeyPair()
	}
	return crypto.KeyPair{}, connerr.New(connerr.CryptoFailure, "signer does not support key generation")
}

// RecipientKeys returns this side's single recipient key, per spec.md §4.2.
func (ai *AgentInfo) RecipientKeys() []string { return []string{ai.PwVK} }

// RoutingKeys returns the agency-configured routing list.
func (ai *AgentInfo) RoutingKeys() []string { return ai.RoutingKey }

// agencyEndpointBase stands in for the mediator's real HTTP front door,
// which this module's gRPC transport has no equivalent of (spec.md §1
// places HTTP/mediator routing out of scope as an external collaborator).
const agencyEndpointBase = "https://agency.local/agents/"

// AgencyEndpoint renders a syntactically valid serviceEndpoint URL that
// carries this agent's DID in its path, satisfying diddoc.Validate's
// absolute-URL invariant while still letting SendMessage recover the
// gRPC-addressable agent DID from a counterparty's DidDoc.
func (ai *AgentInfo) AgencyEndpoint() string { return agencyEndpointBase + ai.AgentDID }

// agentDIDFromEndpoint recovers the agent DID AgencyEndpoint encoded into
// a serviceEndpoint URL.
func agentDIDFromEndpoint(endpoint string) string {
	return strings.TrimPrefix(endpoint, agencyEndpointBase)
}

// SendMessage wire-encrypts msg for counterparty (anoncrypt for a Request,
// authcrypt under PwVK otherwise) and uploads it, retrying
// only transport-level failures (spec.md §7). On success it best-effort
// notifies push.
func (ai *AgentInfo) SendMessage(ctx context.Context, msg message.Message, counterparty *diddoc.DidDoc) (err error) {
	defer err2.Handle(&err, func() {
		err = connerr.Wrap(connerr.AgencyFailure, err)
	})

	plaintext, encErr := message.Encode(msg)
	err2.Check(encErr)

	recipientKeys := counterparty.RecipientKeys()
	var wire []byte
	var packErr error
	if _, isRequest := msg.(*message.Request); isRequest {
		// The first message to the counterparty goes out anoncrypt'd.
		wire, packErr = ai.Box.PackAnon(recipientKeys, plaintext)
	} else {
		wire, packErr = ai.Box.PackAuth(ai.PwVK, recipientKeys, plaintext)
	}
	err2.Check(packErr)

	// ServiceEndpoint carries the destination agency's agent DID encoded in
	// a URL (see AgencyEndpoint), mirroring how a real DIDComm transport
	// would POST to the counterparty's serviceEndpoint URL.
	destAgentDID := agentDIDFromEndpoint(counterparty.ServiceEndpoint())
	uploadErr := withTransportRetry(func() error {
		return ai.Client.Upload(ctx, destAgentDID, wire)
	})
	err2.Check(uploadErr)

	if ai.Push != nil {
		if notifyErr := ai.Push.Notify(ctx, ai.AgentDID); notifyErr != nil {
			glog.Warningf("agentinfo: push notify failed for %s: %v", ai.AgentDID, notifyErr)
		}
	}
	return nil
}

// GetMessages downloads and decrypts pending messages, rejecting any whose
// sender verkey does not match expectedSenderVK.
func (ai *AgentInfo) GetMessages(ctx context.Context, expectedSenderVK string) (out map[string]message.Message, err error) {
	defer err2.Handle(&err, func() {
		err = connerr.Wrap(connerr.AgencyFailure, err)
	})
	return ai.decryptInbox(ctx, &expectedSenderVK)
}

// GetMessagesNoAuth downloads and decrypts pending messages without
// filtering by sender (used for the first, anoncrypt'd Request).
func (ai *AgentInfo) GetMessagesNoAuth(ctx context.Context) (out map[string]message.Message, err error) {
	defer err2.Handle(&err, func() {
		err = connerr.Wrap(connerr.AgencyFailure, err)
	})
	return ai.decryptInbox(ctx, nil)
}

func (ai *AgentInfo) decryptInbox(ctx context.Context, expectedSenderVK *string) (map[string]message.Message, error) {
	var raw map[string][]byte
	retryErr := withTransportRetry(func() error {
		var downloadErr error
		raw, downloadErr = ai.Client.Download(ctx, ai.AgentDID)
		return downloadErr
	})
	if retryErr != nil {
		return nil, retryErr
	}

	out := make(map[string]message.Message, len(raw))
	for uid, wire := range raw {
		plaintext, senderKey, unpackErr := ai.Box.Unpack(wire)
		if unpackErr != nil {
			glog.Warningf("agentinfo: dropping undecryptable message %s: %v", uid, unpackErr)
			continue
		}
		if expectedSenderVK != nil && senderKey != "" && senderKey != *expectedSenderVK {
			glog.Warningf("agentinfo: dropping message %s from unexpected sender %s", uid, senderKey)
			continue
		}
		msg, decErr := message.Decode(plaintext)
		if decErr != nil {
			glog.Warningf("agentinfo: dropping malformed message %s: %v", uid, decErr)
			continue
		}
		out[uid] = msg
	}
	return out, nil
}

// UpdateMessageStatus marks uid Reviewed in the agency. Idempotent.
func (ai *AgentInfo) UpdateMessageStatus(ctx context.Context, uid string) (err error) {
	defer err2.Handle(&err, func() {
		err = connerr.Wrap(connerr.AgencyFailure, err)
	})
	return withTransportRetry(func() error {
		return ai.Client.UpdateMessageStatus(ctx, ai.AgentDID, uid)
	})
}

// withTransportRetry retries fn up to RetryMax times with bounded
// exponential backoff, but only while fn's error is agency.ErrTransport;
// an agency.ErrRejected aborts immediately (spec.md §7).
func withTransportRetry(fn func() error) error {
	var lastErr error
	backoff := 50 * time.Millisecond
	for attempt := 0; attempt <= RetryMax; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, agency.ErrTransport) {
			return lastErr
		}
		if attempt == RetryMax {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return lastErr
}

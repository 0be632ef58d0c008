// Package crypto defines the cryptographic-primitives boundary (C10):
// signing/verification and anoncrypt/authcrypt envelopes. spec.md §1 treats
// the primitives themselves as an external collaborator; this package is
// the interface that boundary takes, plus the sentinel errors callers can
// match against. crypto/ed25519box is the concrete, wired implementation.
package crypto

import "github.com/findy-network/findy-agent-conn/connerr"

// Signer signs and verifies Ed25519 signatures over raw bytes, keyed by
// base58-encoded verkey.
type Signer interface {
	// Sign produces a signature over data using the private key matching
	// the given base58 verkey.
	Sign(verkey string, data []byte) (signature []byte, err error)
	// Verify reports whether signature is valid for data under verkey.
	Verify(verkey string, data, signature []byte) error
}

// Box implements DIDComm-style envelopes: anoncrypt (sender anonymous) and
// authcrypt (sender authenticated), both targeting one or more recipient
// verkeys.
type Box interface {
	// PackAnon wraps plaintext for recipientKeys without revealing a
	// sender identity.
	PackAnon(recipientKeys []string, plaintext []byte) ([]byte, error)
	// PackAuth wraps plaintext for recipientKeys, authenticated as
	// senderKey.
	PackAuth(senderKey string, recipientKeys []string, plaintext []byte) ([]byte, error)
	// Unpack opens wire, returning the plaintext and, for authcrypt
	// envelopes, the sender's verkey (empty for anoncrypt envelopes).
	Unpack(wire []byte) (plaintext []byte, senderKey string, err error)
}

// KeyPair is a generated (or derived) Ed25519 identity usable with both
// Signer and Box.
type KeyPair struct {
	Verkey  string
	Seed    []byte
	Private []byte
}

// ErrVerifyFailed is wrapped into a *connerr.Error with Kind CryptoFailure
// whenever a signature fails verification.
var ErrVerifyFailed = connerr.New(connerr.CryptoFailure, "signature verification failed")

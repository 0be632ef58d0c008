// Package ed25519box is the concrete implementation of the crypto.Signer
// and crypto.Box boundary (C10): Ed25519 signatures plus NaCl box
// anoncrypt/authcrypt envelopes over Ed25519 keys converted to Curve25519
// via their birational map.
package ed25519box

import (
	cryptorand "crypto/rand"
	stded25519 "crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"io"

	"filippo.io/edwards25519"
	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/findy-network/findy-agent-conn/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/box"
)

// Codec implements both crypto.Signer and crypto.Box over an in-process
// key ring keyed by base58 verkey. It is the reference implementation
// create_agent() (spec.md §4.2) uses to mint disposable and rotated
// keypairs.
type Codec struct {
	keys map[string]stded25519.PrivateKey
}

// New returns an empty key ring.
func New() *Codec {
	return &Codec{keys: make(map[string]stded25519.PrivateKey)}
}

// GenerateKeyPair mints a fresh Ed25519 keypair, remembers its private
// half under its base58 verkey, and returns the crypto.KeyPair.
func (c *Codec) GenerateKeyPair() (crypto.KeyPair, error) {
	pub, priv, err := stded25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return crypto.KeyPair{}, connerr.Wrap(connerr.CryptoFailure, err)
	}
	verkey := base58.Encode(pub)
	c.keys[verkey] = priv
	return crypto.KeyPair{Verkey: verkey, Private: priv.Seed()}, nil
}

// Import registers an externally-generated keypair (e.g. rehydrated from
// a snapshot) so this Codec can sign/unpack on its behalf.
func (c *Codec) Import(verkey string, seed []byte) error {
	if len(seed) != stded25519.SeedSize {
		return connerr.Newf(connerr.CryptoFailure, "seed must be %d bytes", stded25519.SeedSize)
	}
	c.keys[verkey] = stded25519.NewKeyFromSeed(seed)
	return nil
}

func (c *Codec) Sign(verkey string, data []byte) ([]byte, error) {
	priv, ok := c.keys[verkey]
	if !ok {
		return nil, connerr.Newf(connerr.CryptoFailure, "unknown signing key %q", verkey)
	}
	return stded25519.Sign(priv, data), nil
}

func (c *Codec) Verify(verkey string, data, signature []byte) error {
	pub, err := base58.Decode(verkey)
	if err != nil {
		return connerr.Wrap(connerr.CryptoFailure, err)
	}
	if !stded25519.Verify(stded25519.PublicKey(pub), data, signature) {
		return crypto.ErrVerifyFailed
	}
	return nil
}

// PackAnon encrypts plaintext for recipientKeys[0] (the multi-recipient
// case is out of scope for pairwise connections) without sender
// authentication, using an ephemeral Curve25519 keypair per spec.md §4.2's
// "first inbound message is delivered anonymously-encrypted."
func (c *Codec) PackAnon(recipientKeys []string, plaintext []byte) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, connerr.New(connerr.CryptoFailure, "no recipient keys")
	}
	recipCurve, err := ed25519VerkeyToCurve25519(recipientKeys[0])
	if err != nil {
		return nil, err
	}
	sealed, err := box.SealAnonymous(nil, plaintext, recipCurve, cryptorand.Reader)
	if err != nil {
		return nil, connerr.Wrap(connerr.CryptoFailure, err)
	}
	return sealed, nil
}

// PackAuth encrypts plaintext for recipientKeys[0], authenticated as
// senderKey, using NaCl box with a fresh random 24-byte nonce prefixed
// onto the ciphertext, behind a header carrying the sender's verkey.
func (c *Codec) PackAuth(senderKey string, recipientKeys []string, plaintext []byte) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, connerr.New(connerr.CryptoFailure, "no recipient keys")
	}
	senderPriv, ok := c.keys[senderKey]
	if !ok {
		return nil, connerr.Newf(connerr.CryptoFailure, "unknown sender key %q", senderKey)
	}
	senderCurvePriv, err := ed25519SeedToCurve25519(senderPriv.Seed())
	if err != nil {
		return nil, err
	}
	recipCurve, err := ed25519VerkeyToCurve25519(recipientKeys[0])
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(cryptorand.Reader, nonce[:]); err != nil {
		return nil, connerr.Wrap(connerr.CryptoFailure, err)
	}

	sealed := box.Seal(nonce[:], plaintext, &nonce, recipCurve, senderCurvePriv)

	header := make([]byte, 4+stded25519.PublicKeySize)
	binary.BigEndian.PutUint32(header, uint32(stded25519.PublicKeySize))
	copy(header[4:], mustDecodeVerkey(senderKey))
	return append(header, sealed...), nil
}

// Unpack recovers plaintext from a PackAnon or PackAuth envelope. The
// Codec tries every key it holds as recipient, which is how a process
// hosting several live connections (as the handle cache does) resolves
// "which of my identities was this addressed to" without a cleartext
// recipient hint on the wire. PackAuth envelopes are distinguished by the
// sender-verkey header PackAuth prepends.
func (c *Codec) Unpack(wire []byte) (plaintext []byte, senderKey string, err error) {
	var senderCurvePub *[32]byte
	var rest []byte
	authEnvelope := false

	if len(wire) > 4 {
		hdrLen := binary.BigEndian.Uint32(wire[:4])
		if int(hdrLen) == stded25519.PublicKeySize && len(wire) > 4+int(hdrLen) {
			candidateSender := base58.Encode(wire[4 : 4+hdrLen])
			if pub, convErr := ed25519VerkeyToCurve25519(candidateSender); convErr == nil {
				senderCurvePub = pub
				senderKey = candidateSender
				rest = wire[4+hdrLen:]
				authEnvelope = true
			}
		}
	}

	for verkey, priv := range c.keys {
		recipCurvePriv, convErr := ed25519SeedToCurve25519(priv.Seed())
		if convErr != nil {
			continue
		}
		if authEnvelope && len(rest) >= 24 {
			var nonce [24]byte
			copy(nonce[:], rest[:24])
			if out, ok := box.Open(nil, rest[24:], &nonce, senderCurvePub, recipCurvePriv); ok {
				return out, senderKey, nil
			}
		}
		recipCurvePub, convErr := ed25519VerkeyToCurve25519(verkey)
		if convErr != nil {
			continue
		}
		if out, ok := box.OpenAnonymous(nil, wire, recipCurvePub, recipCurvePriv); ok {
			return out, "", nil
		}
	}

	return nil, "", connerr.New(connerr.CryptoFailure, "failed to open envelope: no known key matched")
}

func mustDecodeVerkey(verkey string) []byte {
	b, err := base58.Decode(verkey)
	if err != nil {
		return make([]byte, stded25519.PublicKeySize)
	}
	return b
}

// ed25519VerkeyToCurve25519 converts a base58 Ed25519 public key to its
// Curve25519 Montgomery-form equivalent for use with NaCl box.
func ed25519VerkeyToCurve25519(verkey string) (*[32]byte, error) {
	raw, err := base58.Decode(verkey)
	if err != nil || len(raw) != 32 {
		return nil, connerr.Newf(connerr.CryptoFailure, "invalid verkey %q", verkey)
	}
	p, err := new(edwards25519.Point).SetBytes(raw)
	if err != nil {
		return nil, connerr.Wrap(connerr.CryptoFailure, err)
	}
	var out [32]byte
	copy(out[:], p.BytesMontgomery())
	return &out, nil
}

// ed25519SeedToCurve25519 converts an Ed25519 private seed to its
// Curve25519 scalar, following the standard SHA-512-and-clamp derivation
// Ed25519 itself uses internally for the signing scalar.
func ed25519SeedToCurve25519(seed []byte) (*[32]byte, error) {
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	var out [32]byte
	copy(out[:], h[:32])
	return &out, nil
}

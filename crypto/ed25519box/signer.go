package ed25519box

import "github.com/findy-network/findy-agent-conn/crypto"

var (
	_ crypto.Signer = (*Codec)(nil)
	_ crypto.Box    = (*Codec)(nil)
)

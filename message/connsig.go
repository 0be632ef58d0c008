package message

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/findy-network/findy-agent-conn/crypto"
	"github.com/findy-network/findy-agent-conn/diddoc"
)

// connSigType is the fixed `@type` of a connection~sig envelope.
const connSigType = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/signature/1.0/ed25519Sha512_single"

// SignConnection builds a SignedResponse binding did/didDoc into a
// connection~sig envelope, signed by signer under signerVerkey, threaded
// to threadID (spec.md §6: `sig_data` base64-decodes to an 8-byte
// big-endian unix-seconds prefix followed by the JSON-encoded Response).
func SignConnection(
	signer crypto.Signer,
	signerVerkey string,
	id, threadID string,
	resp Response,
) (*SignedResponse, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, connerr.Wrap(connerr.InvalidJSON, err)
	}

	sigData := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(sigData[:8], uint64(time.Now().Unix()))
	copy(sigData[8:], payload)

	sig, err := signer.Sign(signerVerkey, sigData)
	if err != nil {
		return nil, connerr.Wrap(connerr.CryptoFailure, err)
	}

	return &SignedResponse{
		AtType: TypeResponse,
		AtID:   id,
		Thread: Thread{ThID: threadID},
		ConnSig: ConnectionSignature{
			AtType:    connSigType,
			Signature: base64.URLEncoding.EncodeToString(sig),
			SigData:   base64.URLEncoding.EncodeToString(sigData),
			Signer:    signerVerkey,
		},
	}, nil
}

// VerifyConnection checks that sr's connection~sig was signed by
// expectedSignerVerkey and returns the embedded Response on success. A
// mismatched signer, or a signature that fails verification, is an error
// and MUST NOT be treated as having produced a usable Response (spec.md
// §4.5: "Verification is cryptographic and precedes any state mutation").
func VerifyConnection(signer crypto.Signer, sr *SignedResponse, expectedSignerVerkey string) (*Response, error) {
	if sr.ConnSig.Signer != expectedSignerVerkey {
		return nil, connerr.Newf(connerr.CryptoFailure, "connection signature signer %q does not match expected %q", sr.ConnSig.Signer, expectedSignerVerkey)
	}

	sigData, err := base64.URLEncoding.DecodeString(sr.ConnSig.SigData)
	if err != nil {
		return nil, connerr.Wrap(connerr.InvalidJSON, err)
	}
	sig, err := base64.URLEncoding.DecodeString(sr.ConnSig.Signature)
	if err != nil {
		return nil, connerr.Wrap(connerr.InvalidJSON, err)
	}
	if len(sigData) < 8 {
		return nil, connerr.New(connerr.InvalidJSON, "sig_data shorter than timestamp prefix")
	}

	if err := signer.Verify(expectedSignerVerkey, sigData, sig); err != nil {
		return nil, fmt.Errorf("%w: %w", crypto.ErrVerifyFailed, err)
	}

	var resp Response
	if err := json.Unmarshal(sigData[8:], &resp); err != nil {
		return nil, connerr.Wrap(connerr.InvalidJSON, err)
	}
	return &resp, nil
}

// NewRequest builds a Request message offering ownDID/ownDidDoc.
func NewRequest(id, label, ownDID string, ownDidDoc diddoc.DidDoc) *Request {
	return &Request{
		AtType: TypeRequest,
		AtID:   id,
		Label:  label,
		Connection: ConnectionData{
			DID:    ownDID,
			DIDDoc: ownDidDoc,
		},
	}
}

// NewAck builds an Ack threaded to threadID.
func NewAck(id, threadID string, status AckStatus) *Ack {
	return &Ack{AtType: TypeAck, AtID: id, Status: status, Thread: Thread{ThID: threadID}}
}

// NewProblemReport builds a ProblemReport, optionally threaded.
func NewProblemReport(id, threadID, code, description string) *ProblemReport {
	return &ProblemReport{
		AtType:      TypeProblemReport,
		AtID:        id,
		Description: ProblemReportDescription{EN: description, Code: code},
		Thread:      Thread{ThID: threadID},
	}
}

package message

import (
	"encoding/json"

	"github.com/findy-network/findy-agent-conn/connerr"
)

// envelope sniffs just enough of a wire message to route it to its
// concrete Go type. Decoding is strict (spec.md §4.1): an unrecognized
// `@type` or a struct that fails required-field checks both fail instead
// of silently producing a zero value.
type envelope struct {
	AtType string `json:"@type"`
}

// Decode parses a single wire message and returns its concrete,
// already-validated Message value.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, connerr.Wrap(connerr.InvalidJSON, err)
	}

	switch env.AtType {
	case TypeInvitation:
		var m Invitation
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if len(m.RecipientKeys) == 0 || m.ServiceEndpoint == "" {
			return nil, connerr.New(connerr.InvalidJSON, "invitation missing recipientKeys or serviceEndpoint")
		}
		return &m, nil

	case TypeRequest:
		var m Request
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if m.Connection.DID == "" {
			return nil, connerr.New(connerr.InvalidJSON, "request missing connection.DID")
		}
		return &m, nil

	case TypeResponse:
		var m SignedResponse
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if m.ConnSig.Signature == "" || m.ConnSig.SigData == "" || m.ConnSig.Signer == "" {
			return nil, connerr.New(connerr.InvalidJSON, "response missing connection~sig fields")
		}
		return &m, nil

	case TypeAck:
		var m Ack
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if m.Thread.ThID == "" {
			return nil, connerr.New(connerr.InvalidJSON, "ack missing ~thread.thid")
		}
		return &m, nil

	case TypeProblemReport:
		var m ProblemReport
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil

	case TypePing:
		var m Ping
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil

	case TypePingResponse:
		var m PingResponse
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil

	case TypeDiscoverQuery:
		var m DiscoverQuery
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil

	case TypeDiscloseResult:
		var m DiscoverDisclose
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil

	case TypeBasicMessage:
		var m BasicMessage
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		return &m, nil

	default:
		return nil, connerr.Newf(connerr.InvalidJSON, "unknown message @type %q", env.AtType)
	}
}

// Encode serializes a Message back to its wire JSON. Field order for any
// struct is the order fields are declared in Go, which is what canonical,
// signed encoding of a Response payload (spec.md §4.1) relies on.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, connerr.Wrap(connerr.InvalidJSON, err)
	}
	return raw, nil
}

// strictUnmarshal decodes raw into v. Required-field presence is checked
// by each case in Decode after unmarshaling; this only guards against
// structurally malformed JSON.
func strictUnmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return connerr.Wrap(connerr.InvalidJSON, err)
	}
	return nil
}

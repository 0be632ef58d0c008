// Package message implements the connection-protocol message codec (C1):
// a tagged-union encode/decode over the wire messages listed in spec.md
// §6, keyed by their `@type` URI.
package message

import "github.com/findy-network/findy-agent-conn/diddoc"

// The Type* constants are the fixed `@type` URIs this core speaks.
// Protocol-version negotiation beyond this fixed set is out of scope
// (spec.md §1 Non-goals).
const (
	TypeInvitation     = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/connections/1.0/invitation"
	TypeRequest        = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/connections/1.0/request"
	TypeResponse       = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/connections/1.0/response"
	TypeAck            = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/notification/1.0/ack"
	TypeProblemReport  = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/report-problem/1.0/problem-report"
	TypePing           = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/trust_ping/1.0/ping"
	TypePingResponse   = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/trust_ping/1.0/ping_response"
	TypeDiscoverQuery  = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/discover-features/1.0/query"
	TypeDiscloseResult = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/discover-features/1.0/disclose"
	TypeBasicMessage   = "https://didcomm.org/basicmessage/1.0/message"
)

// Thread correlates messages of one protocol run by thread id.
type Thread struct {
	ThID string `json:"thid"`
}

// Message is the tagged-union interface every decoded wire message
// implements. Type/ID mirror `@type`/`@id`; ThreadID reports whether the
// message carries a `~thread` decorator and, if so, its thid.
type Message interface {
	Type() string
	MsgID() string
	ThreadID() (string, bool)
}

// Invitation is the public, unencrypted connection offer (spec.md §3).
type Invitation struct {
	AtType          string   `json:"@type"`
	AtID            string   `json:"@id"`
	Label           string   `json:"label"`
	RecipientKeys   []string `json:"recipientKeys"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint"`
	ProfileURL      string   `json:"profileUrl,omitempty"`
}

func (m *Invitation) Type() string             { return m.AtType }
func (m *Invitation) MsgID() string            { return m.AtID }
func (m *Invitation) ThreadID() (string, bool) { return "", false }

func NewInvitation(id string) *Invitation { return &Invitation{AtType: TypeInvitation, AtID: id} }

// ConnectionData is the embedded `connection` object of a Request.
type ConnectionData struct {
	DID    string        `json:"DID"`
	DIDDoc diddoc.DidDoc `json:"DIDDoc"`
}

// Request is the Invitee's proposal of its own DID and DidDoc.
type Request struct {
	AtType     string         `json:"@type"`
	AtID       string         `json:"@id"`
	Label      string         `json:"label"`
	Connection ConnectionData `json:"connection"`
}

func (m *Request) Type() string            { return m.AtType }
func (m *Request) MsgID() string           { return m.AtID }
func (m *Request) ThreadID() (string, bool) { return "", false }

// ConnectionSignature is the `connection~sig` envelope of a SignedResponse
// (spec.md §6): sig_data base64-decodes to an 8-byte big-endian unix
// timestamp followed by the JSON-encoded Response payload, signed by the
// invitation key ("signer").
type ConnectionSignature struct {
	AtType    string `json:"@type"`
	Signature string `json:"signature"`
	SigData   string `json:"sig_data"`
	Signer    string `json:"signer"`
}

// SignedResponse is the Inviter's signed commitment to new key material.
type SignedResponse struct {
	AtType     string               `json:"@type"`
	AtID       string               `json:"@id"`
	Thread     Thread               `json:"~thread"`
	ConnSig    ConnectionSignature  `json:"connection~sig"`
}

func (m *SignedResponse) Type() string  { return m.AtType }
func (m *SignedResponse) MsgID() string { return m.AtID }
func (m *SignedResponse) ThreadID() (string, bool) {
	return m.Thread.ThID, m.Thread.ThID != ""
}

// Response is the unsigned payload a SignedResponse's connection~sig
// commits to.
type Response struct {
	DID    string        `json:"DID"`
	DIDDoc diddoc.DidDoc `json:"DIDDoc"`
}

// AckStatus is the terminal status carried by an Ack message.
type AckStatus string

const (
	AckOK      AckStatus = "OK"
	AckFail    AckStatus = "FAIL"
	AckPending AckStatus = "PENDING"
)

// Ack is the Invitee's confirmation that it trusts the Inviter's Response.
type Ack struct {
	AtType string    `json:"@type"`
	AtID   string    `json:"@id"`
	Status AckStatus `json:"status"`
	Thread Thread    `json:"~thread"`
}

func (m *Ack) Type() string  { return m.AtType }
func (m *Ack) MsgID() string { return m.AtID }
func (m *Ack) ThreadID() (string, bool) {
	return m.Thread.ThID, m.Thread.ThID != ""
}

// ProblemReportDescription is the machine/human-readable payload of a
// ProblemReport.
type ProblemReportDescription struct {
	EN   string `json:"en"`
	Code string `json:"code"`
}

// ProblemReport is emitted whenever a side aborts the handshake.
type ProblemReport struct {
	AtType      string                    `json:"@type"`
	AtID        string                    `json:"@id"`
	Description ProblemReportDescription  `json:"description"`
	Thread      Thread                    `json:"~thread,omitempty"`
}

func (m *ProblemReport) Type() string  { return m.AtType }
func (m *ProblemReport) MsgID() string { return m.AtID }
func (m *ProblemReport) ThreadID() (string, bool) {
	return m.Thread.ThID, m.Thread.ThID != ""
}

// Ping is a trust-ping probe, usable only once a connection is Completed.
type Ping struct {
	AtType           string `json:"@type"`
	AtID             string `json:"@id"`
	Comment          string `json:"comment,omitempty"`
	ResponseRequested bool  `json:"response_requested"`
}

func (m *Ping) Type() string             { return m.AtType }
func (m *Ping) MsgID() string            { return m.AtID }
func (m *Ping) ThreadID() (string, bool) { return "", false }

// PingResponse answers a Ping.
type PingResponse struct {
	AtType  string `json:"@type"`
	AtID    string `json:"@id"`
	Comment string `json:"comment,omitempty"`
	Thread  Thread `json:"~thread"`
}

func (m *PingResponse) Type() string  { return m.AtType }
func (m *PingResponse) MsgID() string { return m.AtID }
func (m *PingResponse) ThreadID() (string, bool) {
	return m.Thread.ThID, m.Thread.ThID != ""
}

// DiscoverQuery asks the counterparty which protocols it supports.
type DiscoverQuery struct {
	AtType string `json:"@type"`
	AtID   string `json:"@id"`
	Query  string `json:"query"`
	Comment string `json:"comment,omitempty"`
}

func (m *DiscoverQuery) Type() string             { return m.AtType }
func (m *DiscoverQuery) MsgID() string            { return m.AtID }
func (m *DiscoverQuery) ThreadID() (string, bool) { return "", false }

// DiscoverDisclose answers a DiscoverQuery.
type DiscoverDisclose struct {
	AtType   string             `json:"@type"`
	AtID     string             `json:"@id"`
	Protocols []DiscloseProtocol `json:"protocols"`
	Thread   Thread             `json:"~thread"`
}

// DiscloseProtocol is one entry of a DiscoverDisclose's protocols list.
type DiscloseProtocol struct {
	PID string `json:"pid"`
}

func (m *DiscoverDisclose) Type() string  { return m.AtType }
func (m *DiscoverDisclose) MsgID() string { return m.AtID }
func (m *DiscoverDisclose) ThreadID() (string, bool) {
	return m.Thread.ThID, m.Thread.ThID != ""
}

// BasicMessage is the text-message format send_generic_message pins its
// wire shape to (spec.md §9 Open Question: "an implementer must pin it to
// the basicmessage 1.0 schema or an explicit project-local envelope").
type BasicMessage struct {
	AtType    string `json:"@type"`
	AtID      string `json:"@id"`
	SentTime  string `json:"sent_time"`
	Content   string `json:"content"`
}

func (m *BasicMessage) Type() string             { return m.AtType }
func (m *BasicMessage) MsgID() string            { return m.AtID }
func (m *BasicMessage) ThreadID() (string, bool) { return "", false }

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"@type":"bogus/1.0/nope"}`))
	require.Error(t, err)
}

func TestDecode_InvitationRoundTrip(t *testing.T) {
	inv := &Invitation{
		AtType:          TypeInvitation,
		AtID:            "invite-1",
		Label:           "faber",
		RecipientKeys:   []string{"Hxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"},
		ServiceEndpoint: "https://agency.example.org/endpoint",
	}
	raw, err := Encode(inv)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	got, ok := decoded.(*Invitation)
	require.True(t, ok)
	assert.Equal(t, inv.Label, got.Label)
	assert.Equal(t, inv.RecipientKeys, got.RecipientKeys)
	assert.Equal(t, "invite-1", got.MsgID())
}

func TestDecode_AckRequiresThreadID(t *testing.T) {
	_, err := Decode([]byte(`{"@type":"` + TypeAck + `","@id":"a1","status":"OK"}`))
	require.Error(t, err)
}

func TestDecode_RequestMissingConnectionDID(t *testing.T) {
	_, err := Decode([]byte(`{"@type":"` + TypeRequest + `","@id":"r1","label":"alice","connection":{"DID":""}}`))
	require.Error(t, err)
}

func TestThreadID(t *testing.T) {
	ack := &Ack{AtType: TypeAck, AtID: "a1", Status: AckOK, Thread: Thread{ThID: "req-1"}}
	thid, ok := ack.ThreadID()
	assert.True(t, ok)
	assert.Equal(t, "req-1", thid)

	inv := &Invitation{}
	_, ok = inv.ThreadID()
	assert.False(t, ok)
}

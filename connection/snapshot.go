package connection

import (
	"encoding/json"

	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/findy-network/findy-agent-conn/sm/invitee"
	"github.com/findy-network/findy-agent-conn/sm/inviter"
)

const snapshotVersion = "1.0"

// snapshot is the wire shape of to_string/from_string (spec.md §6).
type snapshot struct {
	Version  string        `json:"version"`
	Data     snapshotData  `json:"data"`
	State    snapshotState `json:"state"`
	SourceID string        `json:"source_id"`
}

type snapshotData struct {
	PwDID    string `json:"pw_did"`
	PwVK     string `json:"pw_vk"`
	AgentDID string `json:"agent_did"`
	AgentVK  string `json:"agent_vk"`
}

// snapshotState is the tagged state_object: Role+Kind name the variant;
// the remaining fields are populated only as that variant allows.
type snapshotState struct {
	Role string `json:"role"`
	Kind string `json:"kind"`

	Invitation         *message.Invitation  `json:"invitation,omitempty"`
	BootstrapAgentInfo *agentinfo.AgentInfo `json:"bootstrap_agent_info,omitempty"`
	TheirPwDID         string               `json:"their_pw_did,omitempty"`
	TheirDidDoc        *diddoc.DidDoc       `json:"their_did_doc,omitempty"`
	ResponseThreadID   string               `json:"response_thread_id,omitempty"`
	RequestID          string               `json:"request_id,omitempty"`
}

var inviterKindNames = map[inviter.Kind]string{
	inviter.Null: "Null", inviter.Invited: "Invited", inviter.Responded: "Responded", inviter.Completed: "Completed",
}
var inviterKindByName = map[string]inviter.Kind{
	"Null": inviter.Null, "Invited": inviter.Invited, "Responded": inviter.Responded, "Completed": inviter.Completed,
}
var inviteeKindNames = map[invitee.Kind]string{
	invitee.Null: "Null", invitee.Invited: "Invited", invitee.Requested: "Requested", invitee.Completed: "Completed",
}
var inviteeKindByName = map[string]invitee.Kind{
	"Null": invitee.Null, "Invited": invitee.Invited, "Requested": invitee.Requested, "Completed": invitee.Completed,
}

// ToString serializes the Connection's data and state_object; excludes
// the agency/crypto collaborators in Config, which FromString must be
// given again by the caller.
func (c *Connection) ToString() (string, error) {
	data := snapshotData{}
	if ai := c.AgentInfo(); ai != nil {
		data = snapshotData{PwDID: ai.PwDID, PwVK: ai.PwVK, AgentDID: ai.AgentDID, AgentVK: ai.AgentVK}
	}

	st := snapshotState{Role: c.role.String(), TheirPwDID: c.TheirPwDID(), TheirDidDoc: c.theirDidDoc()}
	if c.role == RoleInviter {
		st.Kind = inviterKindNames[c.inv.Kind]
		st.Invitation = c.inv.Invitation
		st.BootstrapAgentInfo = c.inv.BootstrapAgentInfo
		st.ResponseThreadID = c.inv.ResponseThreadID
	} else {
		st.Kind = inviteeKindNames[c.ive.Kind]
		st.Invitation = c.ive.Invitation
		st.RequestID = c.ive.RequestID
	}

	snap := snapshot{
		Version:  snapshotVersion,
		Data:     data,
		State:    st,
		SourceID: c.SourceID(),
	}
	out, err := json.Marshal(snap)
	if err != nil {
		return "", connerr.Wrap(connerr.InvalidJSON, err)
	}
	return string(out), nil
}

// FromString rehydrates a Connection from a to_string snapshot, re-wiring
// it to the agency/crypto collaborators in cfg (never part of the
// snapshot itself).
func FromString(data string, cfg Config) (*Connection, error) {
	var snap snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, connerr.Wrap(connerr.InvalidJSON, err)
	}
	if snap.Version != snapshotVersion {
		return nil, connerr.Newf(connerr.InvalidJSON, "unsupported snapshot version %q", snap.Version)
	}

	var ai *agentinfo.AgentInfo
	if snap.Data.PwDID != "" || snap.Data.AgentDID != "" {
		ai = &agentinfo.AgentInfo{
			PwDID:      snap.Data.PwDID,
			PwVK:       snap.Data.PwVK,
			AgentDID:   snap.Data.AgentDID,
			AgentVK:    snap.Data.AgentVK,
			RoutingKey: cfg.RoutingKeys,
			Client:     cfg.Client,
			Signer:     cfg.Signer,
			Box:        cfg.Box,
			Push:       cfg.Push,
		}
	}
	if snap.State.BootstrapAgentInfo != nil {
		snap.State.BootstrapAgentInfo.Client = cfg.Client
		snap.State.BootstrapAgentInfo.Signer = cfg.Signer
		snap.State.BootstrapAgentInfo.Box = cfg.Box
		snap.State.BootstrapAgentInfo.Push = cfg.Push
	}

	c := &Connection{cfg: cfg}
	switch snap.State.Role {
	case RoleInviter.String():
		kind, ok := inviterKindByName[snap.State.Kind]
		if !ok {
			return nil, connerr.Newf(connerr.InvalidJSON, "unknown inviter state %q", snap.State.Kind)
		}
		c.role = RoleInviter
		c.inv = inviter.State{
			Kind:               kind,
			SourceID:           snap.SourceID,
			AgentInfo:          ai,
			BootstrapAgentInfo: snap.State.BootstrapAgentInfo,
			Invitation:         snap.State.Invitation,
			TheirDID:           snap.State.TheirPwDID,
			TheirDidDoc:        snap.State.TheirDidDoc,
			ResponseThreadID:   snap.State.ResponseThreadID,
		}
	case RoleInvitee.String():
		kind, ok := inviteeKindByName[snap.State.Kind]
		if !ok {
			return nil, connerr.Newf(connerr.InvalidJSON, "unknown invitee state %q", snap.State.Kind)
		}
		c.role = RoleInvitee
		c.ive = invitee.State{
			Kind:        kind,
			SourceID:    snap.SourceID,
			Invitation:  snap.State.Invitation,
			AgentInfo:   ai,
			RequestID:   snap.State.RequestID,
			TheirDID:    snap.State.TheirPwDID,
			TheirDidDoc: snap.State.TheirDidDoc,
		}
	default:
		return nil, connerr.Newf(connerr.InvalidJSON, "unknown role %q", snap.State.Role)
	}
	return c, nil
}

// Package diddoc implements the DID-document data model and validator
// (C3): structural and semantic checks an inbound DID-Doc must pass before
// the connection state machines trust the key material inside it.
package diddoc

import (
	"net/url"

	"github.com/findy-network/findy-agent-conn/connerr"
	"golang.org/x/net/idna"
)

// PublicKey is one entry of a DidDoc's public_key array.
type PublicKey struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Controller string `json:"controller"`
	Base58Key  string `json:"publicKeyBase58"`
}

// Authentication references a PublicKey by id.
type Authentication struct {
	Type         string `json:"type"`
	PublicKeyRef string `json:"publicKey"`
}

// Service is one entry of a DidDoc's service array.
type Service struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Priority        uint     `json:"priority"`
	RecipientKeys   []string `json:"recipientKeys"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint"`
}

// DidDoc is the DID-document sent inside a Request/Response connection
// object (spec.md §3).
type DidDoc struct {
	ID             string           `json:"id"`
	PublicKey      []PublicKey      `json:"publicKey"`
	Authentication []Authentication `json:"authentication"`
	Service        []Service        `json:"service"`
}

// NewMinimal builds the smallest DidDoc that passes Validate: one service
// entry carrying recipientKeys/routingKeys/endpoint, reachable from one
// authentication entry over a single Ed25519VerificationKey2018 public key.
// ownDID/ownVK identify the doc's subject and its sole recipient key.
func NewMinimal(ownDID, ownVK string, routingKeys []string, endpoint string) DidDoc {
	keyID := ownDID + "#1"
	return DidDoc{
		ID: ownDID,
		PublicKey: []PublicKey{{
			ID:         keyID,
			Type:       "Ed25519VerificationKey2018",
			Controller: ownDID,
			Base58Key:  ownVK,
		}},
		Authentication: []Authentication{{
			Type:         "Ed25519VerificationKey2018",
			PublicKeyRef: keyID,
		}},
		Service: []Service{{
			ID:              ownDID + "#service",
			Type:            "IndyAgent",
			RecipientKeys:   []string{ownVK},
			RoutingKeys:     routingKeys,
			ServiceEndpoint: endpoint,
		}},
	}
}

// acceptedKeyTypes lists the authentication key types this core trusts.
// Ed25519VerificationKey2018 is the only type the Aries 1.0 connection
// protocol fixture set (spec.md §8 seed scenarios) ever produces.
var acceptedKeyTypes = map[string]bool{
	"Ed25519VerificationKey2018": true,
}

// RecipientKeys returns the recipient keys of the DidDoc's first (and
// authoritative) service entry.
func (d *DidDoc) RecipientKeys() []string {
	if len(d.Service) == 0 {
		return nil
	}
	return d.Service[0].RecipientKeys
}

// RoutingKeys returns the routing keys of the DidDoc's first service
// entry.
func (d *DidDoc) RoutingKeys() []string {
	if len(d.Service) == 0 {
		return nil
	}
	return d.Service[0].RoutingKeys
}

// ServiceEndpoint returns the endpoint URL of the DidDoc's first service
// entry.
func (d *DidDoc) ServiceEndpoint() string {
	if len(d.Service) == 0 {
		return ""
	}
	return d.Service[0].ServiceEndpoint
}

// Validate enforces spec.md §3's DidDoc invariants and §4.3's additional
// checks. It never mutates d; a failed validation means the caller must
// treat the DidDoc as untrusted and not advance any state machine with it.
func Validate(d *DidDoc) error {
	if d == nil {
		return connerr.New(connerr.DidDocInvalid, "did doc is nil")
	}
	if d.ID == "" {
		return connerr.New(connerr.DidDocInvalid, "did doc id is empty")
	}
	if len(d.Service) == 0 {
		return connerr.New(connerr.DidDocInvalid, "did doc has no service entries")
	}

	svc := d.Service[0]
	if len(svc.RecipientKeys) == 0 {
		return connerr.New(connerr.DidDocInvalid, "service has no recipient keys")
	}
	if err := validEndpoint(svc.ServiceEndpoint); err != nil {
		return err
	}

	byID := make(map[string]PublicKey, len(d.PublicKey))
	for _, pk := range d.PublicKey {
		byID[pk.ID] = pk
	}

	if len(d.Authentication) == 0 {
		return connerr.New(connerr.DidDocInvalid, "did doc has no authentication entries")
	}
	reachable := make(map[string]bool)
	for _, auth := range d.Authentication {
		pk, ok := byID[auth.PublicKeyRef]
		if !ok {
			return connerr.Newf(connerr.DidDocInvalid, "authentication references unknown key %q", auth.PublicKeyRef)
		}
		if !acceptedKeyTypes[pk.Type] {
			return connerr.Newf(connerr.DidDocInvalid, "authentication key %q has unsupported type %q", pk.ID, pk.Type)
		}
		reachable[pk.Base58Key] = true
	}

	for _, rk := range svc.RecipientKeys {
		if !reachable[rk] {
			return connerr.Newf(connerr.DidDocInvalid, "recipient key %q is not reachable from authentication", rk)
		}
	}

	return nil
}

// validEndpoint checks that endpoint is a syntactically valid absolute URL
// whose host is a valid (possibly internationalized) domain or literal IP.
func validEndpoint(endpoint string) error {
	if endpoint == "" {
		return connerr.New(connerr.DidDocInvalid, "service endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return connerr.Wrap(connerr.DidDocInvalid, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return connerr.Newf(connerr.DidDocInvalid, "service endpoint %q is not an absolute URL", endpoint)
	}
	host := u.Hostname()
	if _, err := idna.ToASCII(host); err != nil {
		return connerr.Newf(connerr.DidDocInvalid, "service endpoint host %q is not a valid domain: %v", host, err)
	}
	return nil
}

package grpcagency

// Wire request/response shapes for the agency gRPC service. They are
// plain, JSON-tagged Go structs (see codec.go) rather than generated
// protobuf messages.

type provisionAgentRequest struct{}

type provisionAgentResponse struct {
	AgentDID    string `json:"agentDid"`
	AgentVerkey string `json:"agentVerkey"`
}

type registerKeysRequest struct {
	AgentDID       string `json:"agentDid"`
	PairwiseDID    string `json:"pairwiseDid"`
	PairwiseVerkey string `json:"pairwiseVerkey"`
}

type registerKeysResponse struct{}

type uploadRequest struct {
	AgentDID string `json:"agentDid"`
	Wire     []byte `json:"wire"`
}

type uploadResponse struct {
	UID string `json:"uid"`
}

type downloadRequest struct {
	AgentDID string `json:"agentDid"`
}

type downloadResponse struct {
	Messages map[string][]byte `json:"messages"`
}

type updateMessageStatusRequest struct {
	AgentDID string `json:"agentDid"`
	UID      string `json:"uid"`
}

type updateMessageStatusResponse struct{}

type deprovisionRequest struct {
	AgentDID string `json:"agentDid"`
}

type deprovisionResponse struct{}

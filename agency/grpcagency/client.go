package grpcagency

import (
	"context"
	"errors"
	"time"

	"github.com/findy-network/findy-agent-conn/agency"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const serviceName = "findy.agency.v1.Agency"

// Client is the gRPC-transport implementation of agency.Client.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

var _ agency.Client = (*Client)(nil)

// Dial opens a gRPC connection to addr, authenticating every call with a
// pre-issued bearer token (see IssueToken).
func Dial(addr, bearerToken string, extraOpts ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(bearerCreds{token: bearerToken}),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	opts = append(opts, extraOpts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Join(agency.ErrTransport, err)
	}
	return &Client{conn: conn, token: bearerToken}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) ProvisionAgent(ctx context.Context) (agentDID, agentVerkey string, err error) {
	req := &provisionAgentRequest{}
	resp := &provisionAgentResponse{}
	if err = c.invoke(ctx, "ProvisionAgent", req, resp); err != nil {
		return "", "", err
	}
	return resp.AgentDID, resp.AgentVerkey, nil
}

func (c *Client) RegisterKeys(ctx context.Context, agentDID, pairwiseDID, pairwiseVerkey string) error {
	req := &registerKeysRequest{AgentDID: agentDID, PairwiseDID: pairwiseDID, PairwiseVerkey: pairwiseVerkey}
	return c.invoke(ctx, "RegisterKeys", req, &registerKeysResponse{})
}

func (c *Client) Upload(ctx context.Context, agentDID string, wire []byte) error {
	req := &uploadRequest{AgentDID: agentDID, Wire: wire}
	return c.invoke(ctx, "Upload", req, &uploadResponse{})
}

func (c *Client) Download(ctx context.Context, agentDID string) (map[string][]byte, error) {
	req := &downloadRequest{AgentDID: agentDID}
	resp := &downloadResponse{}
	if err := c.invoke(ctx, "Download", req, resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) UpdateMessageStatus(ctx context.Context, agentDID, uid string) error {
	req := &updateMessageStatusRequest{AgentDID: agentDID, UID: uid}
	return c.invoke(ctx, "UpdateMessageStatus", req, &updateMessageStatusResponse{})
}

func (c *Client) Deprovision(ctx context.Context, agentDID string) error {
	req := &deprovisionRequest{AgentDID: agentDID}
	return c.invoke(ctx, "Deprovision", req, &deprovisionResponse{})
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	fullMethod := "/" + serviceName + "/" + method
	err := c.conn.Invoke(callCtx, fullMethod, req, resp)
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return errors.Join(agency.ErrTransport, err)
	default:
		return errors.Join(agency.ErrRejected, err)
	}
}

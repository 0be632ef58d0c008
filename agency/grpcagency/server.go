package grpcagency

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// agentRecord is the reference server's per-agent state: its verkey, the
// pairwise keys registered against it, and its message inbox.
type agentRecord struct {
	verkey       string
	pairwiseDIDs map[string]string // pairwiseDID -> pairwiseVerkey
	messages     map[string]inboxEntry
}

type inboxEntry struct {
	wire     []byte
	reviewed bool
}

// Store is the reference agency's in-memory state. It exists so this
// module has something concrete to run the whole pipeline against; the
// real mediator (spec.md §1) is external and out of scope.
type Store struct {
	mu     sync.Mutex
	agents map[string]*agentRecord
}

// NewStore returns an empty in-memory agency store.
func NewStore() *Store {
	return &Store{agents: make(map[string]*agentRecord)}
}

type server struct {
	store  *Store
	secret []byte
}

// NewServer builds a *grpc.Server exposing the reference agency service
// over store, authenticating callers with bearer tokens signed by secret.
func NewServer(store *Store, secret []byte) *grpc.Server {
	s := &server{store: store, secret: secret}
	gs := grpc.NewServer(grpc.UnaryInterceptor(s.authInterceptor))
	gs.RegisterService(&serviceDesc, s)
	return gs
}

func (s *server) authInterceptor(
	ctx context.Context,
	req any,
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	token, ok := bearerFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	if _, err := ParseToken(token, s.secret); err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid bearer token: %v", err)
	}
	return handler(ctx, req)
}

func (s *server) getOrCreate(agentDID string) *agentRecord {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	rec, ok := s.store.agents[agentDID]
	if !ok {
		rec = &agentRecord{pairwiseDIDs: make(map[string]string), messages: make(map[string]inboxEntry)}
		s.store.agents[agentDID] = rec
	}
	return rec
}

func (s *server) provisionAgent(_ context.Context, _ *provisionAgentRequest) (*provisionAgentResponse, error) {
	agentDID := uuid.NewString()
	agentVerkey := uuid.NewString()
	s.store.mu.Lock()
	s.store.agents[agentDID] = &agentRecord{
		verkey:       agentVerkey,
		pairwiseDIDs: make(map[string]string),
		messages:     make(map[string]inboxEntry),
	}
	s.store.mu.Unlock()
	glog.V(2).Infof("grpcagency: provisioned agent %s", agentDID)
	return &provisionAgentResponse{AgentDID: agentDID, AgentVerkey: agentVerkey}, nil
}

func (s *server) registerKeys(_ context.Context, req *registerKeysRequest) (*registerKeysResponse, error) {
	rec := s.getOrCreate(req.AgentDID)
	s.store.mu.Lock()
	rec.pairwiseDIDs[req.PairwiseDID] = req.PairwiseVerkey
	s.store.mu.Unlock()
	return &registerKeysResponse{}, nil
}

// upload stores wire in the inbox of the single agent req.AgentDID names
// (the destination), creating that agent's record if absent: in this
// reference implementation the caller names the destination agent directly.
func (s *server) upload(_ context.Context, req *uploadRequest) (*uploadResponse, error) {
	rec := s.getOrCreate(req.AgentDID)
	uid := uuid.NewString()
	s.store.mu.Lock()
	rec.messages[uid] = inboxEntry{wire: req.Wire}
	s.store.mu.Unlock()
	return &uploadResponse{UID: uid}, nil
}

func (s *server) download(_ context.Context, req *downloadRequest) (*downloadResponse, error) {
	rec := s.getOrCreate(req.AgentDID)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	out := make(map[string][]byte)
	for uid, entry := range rec.messages {
		if !entry.reviewed {
			out[uid] = entry.wire
		}
	}
	return &downloadResponse{Messages: out}, nil
}

func (s *server) updateMessageStatus(_ context.Context, req *updateMessageStatusRequest) (*updateMessageStatusResponse, error) {
	rec := s.getOrCreate(req.AgentDID)
	s.store.mu.Lock()
	if entry, ok := rec.messages[req.UID]; ok {
		entry.reviewed = true
		rec.messages[req.UID] = entry
	}
	s.store.mu.Unlock()
	return &updateMessageStatusResponse{}, nil
}

func (s *server) deprovision(_ context.Context, req *deprovisionRequest) (*deprovisionResponse, error) {
	s.store.mu.Lock()
	delete(s.store.agents, req.AgentDID)
	s.store.mu.Unlock()
	return &deprovisionResponse{}, nil
}

// Deliver is a reference-server-only helper letting a test place a message
// directly into recipientAgentDID's inbox without going through the gRPC
// service.
func (s *Store) Deliver(recipientAgentDID string, wire []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[recipientAgentDID]
	if !ok {
		rec = &agentRecord{pairwiseDIDs: make(map[string]string), messages: make(map[string]inboxEntry)}
		s.agents[recipientAgentDID] = rec
	}
	uid := uuid.NewString()
	rec.messages[uid] = inboxEntry{wire: wire}
	return uid
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProvisionAgent", Handler: provisionAgentHandler},
		{MethodName: "RegisterKeys", Handler: registerKeysHandler},
		{MethodName: "Upload", Handler: uploadHandler},
		{MethodName: "Download", Handler: downloadHandler},
		{MethodName: "UpdateMessageStatus", Handler: updateMessageStatusHandler},
		{MethodName: "Deprovision", Handler: deprovisionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agency.proto",
}

func provisionAgentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(provisionAgentRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.provisionAgent(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + serviceName + "/ProvisionAgent"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.provisionAgent(ctx, req.(*provisionAgentRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func registerKeysHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(registerKeysRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.registerKeys(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + serviceName + "/RegisterKeys"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.registerKeys(ctx, req.(*registerKeysRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func uploadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(uploadRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.upload(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + serviceName + "/Upload"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.upload(ctx, req.(*uploadRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func downloadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(downloadRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.download(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + serviceName + "/Download"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.download(ctx, req.(*downloadRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func updateMessageStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(updateMessageStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.updateMessageStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + serviceName + "/UpdateMessageStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.updateMessageStatus(ctx, req.(*updateMessageStatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func deprovisionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(deprovisionRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.deprovision(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + serviceName + "/Deprovision"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.deprovision(ctx, req.(*deprovisionRequest))
	}
	return interceptor(ctx, req, info, handler)
}

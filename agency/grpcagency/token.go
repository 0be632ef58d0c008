package grpcagency

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
)

// claims is the minimal bearer-token payload the reference agency server
// checks: which agent is calling, matching findy-agent's own grpc server
// checking caller identity via jwt (grpc/server/server.go's
// jwt.CheckTokenValidity, findy-common-go/jwt — not in this module's
// dependency graph, so this is a small local stand-in using the same
// dgrijalva/jwt-go library).
type claims struct {
	AgentDID string `json:"agentDid"`
	jwt.StandardClaims
}

// IssueToken mints a bearer token identifying callerAgentDID, signed with
// secret, valid for ttl.
func IssueToken(callerAgentDID string, secret []byte, ttl time.Duration) (string, error) {
	c := claims{
		AgentDID: callerAgentDID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(ttl).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(secret)
}

// ParseToken validates a bearer token and returns the agent DID it names.
func ParseToken(token string, secret []byte) (agentDID string, err error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", jwt.NewValidationError("invalid token claims", jwt.ValidationErrorClaimsInvalid)
	}
	return c.AgentDID, nil
}

const bearerMDKey = "authorization"

// bearerCreds implements credentials.PerRPCCredentials, attaching a
// pre-issued bearer token to every outbound call the gRPC client makes.
type bearerCreds struct {
	token                string
	requireTransportAuth bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{bearerMDKey: "Bearer " + b.token}, nil
}

func (b bearerCreds) RequireTransportSecurity() bool { return b.requireTransportAuth }

var _ credentials.PerRPCCredentials = bearerCreds{}

// bearerFromContext extracts the bearer token from incoming gRPC
// metadata, as the reference server's interceptor does.
func bearerFromContext(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get(bearerMDKey)
	if len(vals) == 0 {
		return "", false
	}
	const prefix = "Bearer "
	v := vals[0]
	if len(v) <= len(prefix) {
		return "", false
	}
	return v[len(prefix):], true
}

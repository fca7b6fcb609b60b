// Package auth provides HMAC-based API key authentication for the ingest service.
package auth

import (
	"context"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// secretIDKey is the context key for storing the authenticated secret ID.
const secretIDKey = contextKey("secret_id")

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Keys are stateless: the signature is recomputed from the in-memory secret.
type Authenticator struct {
	secrets map[string][]byte
	logger  *zap.Logger
}

// NewAuthenticator creates an authenticator over secret_id -> secret.
func NewAuthenticator(secrets map[string][]byte, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{secrets: secrets, logger: logger}
}

// Authenticate validates an API key and returns its secret ID on success.
func (a *Authenticator) Authenticate(apiKey string) (string, error) {
	secretID, signature, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	// O(1) lookup of HMAC secret using secret_id from key format
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return "", ErrInvalidKeyFormat
	}
	if !VerifyHMAC(provided, ComputeHMAC(secret, secretID)) {
		return "", ErrInvalidKey
	}

	return secretID, nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Health checks pass through so probes need no key.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		secretID, err := a.Authenticate(apiKeys[0])
		if err != nil {
			a.logger.Warn("Rejected ingest request",
				zap.String("method", info.FullMethod),
				zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		ctx = context.WithValue(ctx, secretIDKey, secretID)
		return handler(ctx, req)
	}
}

func isHealthMethod(method string) bool {
	return strings.HasPrefix(method, healthService)
}

const healthService = "/grpc.health.v1.Health/"

// SecretIDFromContext extracts the authenticated secret ID from context.
// Returns empty string if not found.
func SecretIDFromContext(ctx context.Context) string {
	if secretID, ok := ctx.Value(secretIDKey).(string); ok {
		return secretID
	}
	return ""
}

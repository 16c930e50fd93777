package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"courier-auth/backend/internal/security"
)

const bearerPrefix = "bearer "

// AuthUnary returns a unary server interceptor that validates the Bearer access token
// from gRPC metadata and sets user_id and username in context for protected RPCs.
// publicMethods is the set of full method names that do not require a token (e.g. health checks).
func AuthUnary(tokens *security.TokenIssuer, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		authCtx, err := Authenticate(ctx, tokens, token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		return handler(authCtx, req)
	}
}

// Authenticate validates token and returns ctx with the caller's identity attached.
// Returns security.ErrExpiredToken or security.ErrMalformedToken on failure.
func Authenticate(ctx context.Context, tokens *security.TokenIssuer, token string) (context.Context, error) {
	claims, err := tokens.Claims(token)
	if err != nil {
		return ctx, err
	}
	sub, _ := claims[security.ClaimSubject].(string)
	if sub == "" || !tokens.Verify(token, sub) {
		return ctx, security.ErrMalformedToken
	}
	uid, _ := claims[security.ClaimUserID].(string)
	return WithIdentity(ctx, uid, sub), nil
}

// ParseBearer returns the token from an Authorization header value, or "" if missing or malformed.
func ParseBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return ParseBearer(vals[0])
}

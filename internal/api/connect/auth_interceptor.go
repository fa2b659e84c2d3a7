package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// ControlTokenHeader is the header name for the control token.
	ControlTokenHeader = "X-Control-Token"
)

var errInvalidToken = errors.New("missing or invalid control token")

// controlAuthInterceptor validates the control token on unary and
// server-streaming calls. An empty token disables the check.
type controlAuthInterceptor struct {
	token string
}

// NewControlAuthInterceptor creates an interceptor that validates control
// tokens from request headers.
func NewControlAuthInterceptor(token string) connect.Interceptor {
	return &controlAuthInterceptor{token: token}
}

func (i *controlAuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if !i.valid(req.Header().Get(ControlTokenHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, req)
	}
}

func (i *controlAuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *controlAuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.valid(conn.RequestHeader().Get(ControlTokenHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, conn)
	}
}

func (i *controlAuthInterceptor) valid(token string) bool {
	if i.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) == 1
}

// tokenInterceptor attaches the control token to outgoing calls.
type tokenInterceptor struct {
	token string
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient && i.token != "" {
			req.Header().Set(ControlTokenHeader, i.token)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.token != "" {
			conn.RequestHeader().Set(ControlTokenHeader, i.token)
		}
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

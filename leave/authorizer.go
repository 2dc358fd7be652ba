package leave

import (
	"context"
	"errors"
	"fmt"
)

// Authorizer decides whether the caller carried by ctx may approve or
// reject leave. The engine asks it before touching any record.
type Authorizer interface {
	AuthorizeDecision(ctx context.Context) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context) error

func (f AuthorizerFunc) AuthorizeDecision(ctx context.Context) error { return f(ctx) }

// AllowAll accepts every caller. Use it where authorization is enforced
// upstream, or in tests.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context) error { return nil })

// DenyAll rejects every caller. It is the engine default.
var DenyAll Authorizer = AuthorizerFunc(func(context.Context) error { return ErrUnauthorized })

func unauthorized(err error) error {
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnauthorized, err)
}

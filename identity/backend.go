// Package identity translates the unified credential operations into each
// brand backend's HTTP contract. Every operation is a pure request/response
// mapping: adapters never panic across their boundary and report failures
// through result objects classified against the error taxonomy.
package identity

import (
	"context"

	"github.com/pkg/errors"

	autherrors "github.com/omnibrand/go-session-kit/internal/errors"
	"github.com/omnibrand/go-session-kit/tenant"
)

// Credentials are the inputs to a password or OTP login. At least one
// identifier (email or phone) and one secret (password or OTP) must be set.
type Credentials struct {
	Email    string
	Phone    string
	Password string
	OTP      string
}

// Validate checks that the credentials are sufficient to attempt a login.
// Insufficient credentials fail locally, before any network call.
func (c Credentials) Validate() error {
	if c.Email == "" && c.Phone == "" {
		return errors.Wrap(autherrors.ErrInvalidArgument, "email or phone is required")
	}
	if c.Password == "" && c.OTP == "" {
		return errors.Wrap(autherrors.ErrInvalidArgument, "password or otp is required")
	}
	return nil
}

// LoginResult is the outcome of a login attempt.
type LoginResult struct {
	Success bool
	Token   string
	User    map[string]any
	Err     error
}

// SignupResult is the outcome of a signup attempt. RequiresLogin is set when
// the backend accepted the signup but did not issue a token; the caller must
// then perform an explicit login.
type SignupResult struct {
	Success       bool
	Token         string
	User          map[string]any
	RequiresLogin bool
	Err           error
}

// ProfileResult is the outcome of a profile fetch. Unauthorized is set only
// for a 401 response; network failures and other statuses leave it false so
// callers never invalidate a credential on a transient failure.
type ProfileResult struct {
	Success      bool
	User         map[string]any
	Unauthorized bool
	Err          error
}

// VerifyResult maps a profile fetch onto a boolean validity check.
type VerifyResult struct {
	Valid        bool
	Unauthorized bool
	Err          error
}

// Backend is one tenant's identity service.
type Backend interface {
	Tenant() tenant.Tenant
	Login(ctx context.Context, creds Credentials) LoginResult
	Signup(ctx context.Context, profile map[string]any) SignupResult
	FetchProfile(ctx context.Context, token string) ProfileResult
	Verify(ctx context.Context, token string) VerifyResult
}

// Backends is the enum-keyed table resolving a tenant to its identity
// service, built once at startup.
type Backends map[tenant.Tenant]Backend

// Package identityfakes provides a scripted identity.Backend for tests.
package identityfakes

import (
	"context"
	"sync"

	"github.com/omnibrand/go-session-kit/identity"
	"github.com/omnibrand/go-session-kit/tenant"
)

var _ identity.Backend = (*FakeBackend)(nil)

// FakeBackend is a scripted Backend. Tests assign the result fields up front
// and assert on the call counters afterwards. Zero-value results report
// transparent failures, so unscripted calls are visible in assertions rather
// than silently succeeding.
type FakeBackend struct {
	TenantID tenant.Tenant

	LoginResult   identity.LoginResult
	SignupResult  identity.SignupResult
	ProfileResult identity.ProfileResult
	VerifyResult  identity.VerifyResult

	// VerifyFunc, when set, overrides VerifyResult per call.
	VerifyFunc func(token string) identity.VerifyResult

	lock          sync.Mutex
	LoginCalls    int
	SignupCalls   int
	ProfileCalls  int
	VerifyCalls   int
	VerifiedToken string // last token passed to Verify
}

// NewFakeBackend creates a fake for the given tenant.
func NewFakeBackend(t tenant.Tenant) *FakeBackend {
	return &FakeBackend{TenantID: t}
}

func (f *FakeBackend) Tenant() tenant.Tenant {
	return f.TenantID
}

func (f *FakeBackend) Login(_ context.Context, creds identity.Credentials) identity.LoginResult {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.LoginCalls++
	if err := creds.Validate(); err != nil {
		return identity.LoginResult{Err: err}
	}
	return f.LoginResult
}

func (f *FakeBackend) Signup(_ context.Context, _ map[string]any) identity.SignupResult {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.SignupCalls++
	return f.SignupResult
}

func (f *FakeBackend) FetchProfile(_ context.Context, _ string) identity.ProfileResult {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.ProfileCalls++
	return f.ProfileResult
}

func (f *FakeBackend) Verify(_ context.Context, token string) identity.VerifyResult {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.VerifyCalls++
	f.VerifiedToken = token
	if f.VerifyFunc != nil {
		return f.VerifyFunc(token)
	}
	return f.VerifyResult
}

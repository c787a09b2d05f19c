// Package session holds the process-wide authentication state machine shared
// by the three brand applications. One Context is constructed at process
// start and passed by reference to consumers; it is the only owner of the
// in-memory session record.
//
// States: Uninitialized → Loading → {Authenticated, Unauthenticated}.
// Initialization loads the unified record, falls back to legacy-credential
// migration, and validates whatever it finds against the owning tenant's
// backend. A concurrent Login during startup is an accepted last-write-wins
// race; callers are expected to gate sign-in actions behind the Loading state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnibrand/go-session-kit/identity"
	autherrors "github.com/omnibrand/go-session-kit/internal/errors"
	"github.com/omnibrand/go-session-kit/migrate"
	"github.com/omnibrand/go-session-kit/sessionstore"
	"github.com/omnibrand/go-session-kit/tenant"
)

// State is the session lifecycle state.
type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

const defaultInitTimeout = 5 * time.Second

// Snapshot is a point-in-time copy of the observable session state.
type Snapshot struct {
	State         State
	Loading       bool
	Authenticated bool
	Token         string
	User          map[string]any
	ActiveTenant  tenant.Tenant
}

// AuthCheck is the result of a storage-only re-check (no network).
type AuthCheck struct {
	Authenticated bool
	Token         string
	User          map[string]any
}

// inflight is the single-slot initialization guard: concurrent Initialize
// callers await the same run instead of racing independent ones.
type inflight struct {
	done chan struct{}
	err  error
}

// Context is the unified session state machine.
type Context struct {
	store    *sessionstore.Store
	backends identity.Backends
	migrator *migrate.Migrator
	log      zerolog.Logger

	initTimeout     time.Duration
	revalidateEvery time.Duration

	mu     sync.RWMutex
	state  State
	record *sessionstore.Record
	init   *inflight

	closeOnce sync.Once
	closed    chan struct{}
}

// Option defines a function type to modify the Context instance.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Context) {
		c.log = log
	}
}

// WithInitTimeout bounds the remote verify/fetch calls made during
// initialization, so a hung backend cannot hold Loading indefinitely.
// Zero disables the bound.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Context) {
		c.initTimeout = d
	}
}

// WithRevalidateInterval enables periodic background re-validation of the
// active credential. Zero (the default) disables it.
func WithRevalidateInterval(d time.Duration) Option {
	return func(c *Context) {
		c.revalidateEvery = d
	}
}

// New creates the session Context. A backend is required for every tenant so
// migration and validation can reach whichever brand issued the credential.
func New(store *sessionstore.Store, backends identity.Backends, options ...Option) (*Context, error) {
	if store == nil {
		return nil, errors.New("[session.New] store is required")
	}
	for _, t := range tenant.All() {
		if backends[t] == nil {
			return nil, errors.Errorf("[session.New] backend for tenant %q is required", t)
		}
	}

	sessionContext := &Context{
		store:       store,
		backends:    backends,
		log:         zerolog.Nop(),
		initTimeout: defaultInitTimeout,
		state:       Uninitialized,
		closed:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(sessionContext)
	}

	migrator, err := migrate.New(store, backends, migrate.WithLogger(sessionContext.log))
	if err != nil {
		return nil, errors.Wrap(err, "[session.New] migrate.New")
	}
	sessionContext.migrator = migrator
	return sessionContext, nil
}

// Initialize resolves the startup state: load the unified record, migrate
// legacy credentials when it is absent, and validate the result. Concurrent
// callers share one run; once a run has completed, later calls return its
// outcome without probing again. Initialization never fails the process into
// an error state: anything unexpected resolves to Unauthenticated.
func (c *Context) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.init != nil {
		in := c.init
		c.mu.Unlock()
		select {
		case <-in.done:
			return in.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	in := &inflight{done: make(chan struct{})}
	c.init = in
	c.state = Loading
	c.mu.Unlock()

	in.err = c.initialize(ctx)
	close(in.done)

	if c.revalidateEvery > 0 {
		go c.revalidateLoop()
	}
	return in.err
}

func (c *Context) initialize(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("session initialization panicked, starting logged out")
			c.setUnauthenticated()
		}
	}()

	if c.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.initTimeout)
		defer cancel()
	}

	record, err := c.store.Read(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("unified store read failed, starting logged out")
		c.setUnauthenticated()
		return nil
	}

	if record == nil {
		record, err = c.migrator.Run(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("legacy migration failed, starting logged out")
			c.setUnauthenticated()
			return nil
		}
		if record == nil {
			c.setUnauthenticated()
			return nil
		}
		// The migrator only promotes credentials it has already verified.
		c.setAuthenticated(record)
		return nil
	}

	backend := c.backends[record.ActiveTenant]
	verify := backend.Verify(ctx, record.Token)
	if verify.Unauthorized {
		c.log.Info().Str("tenant", string(record.ActiveTenant)).Msg("stored credential rejected, clearing session")
		_ = c.store.Clear(ctx)
		c.setUnauthenticated()
		return nil
	}
	if !verify.Valid {
		// Transient: the credential may still be good, so keep it on disk and
		// let the next cold start retry. This run starts logged out.
		c.log.Warn().Err(verify.Err).Str("tenant", string(record.ActiveTenant)).Msg("credential verification failed transiently, starting logged out")
		c.setUnauthenticated()
		return nil
	}

	if exp, ok := identity.ExpiryHint(record.Token); ok {
		c.log.Debug().Time("token_expiry", exp).Str("tenant", string(record.ActiveTenant)).Msg("stored credential verified")
	}

	// Refresh the profile; stale data is preferred over dropping the session,
	// so only an explicit rejection changes the outcome.
	profile := backend.FetchProfile(ctx, record.Token)
	switch {
	case profile.Unauthorized:
		_ = c.store.Clear(ctx)
		c.setUnauthenticated()
		return nil
	case profile.Success:
		record.User = profile.User
		if _, err := c.store.Write(ctx, record.Token, profile.User, record.ActiveTenant); err != nil {
			c.log.Warn().Err(err).Msg("failed to persist refreshed profile")
		}
	default:
		c.log.Warn().Err(profile.Err).Msg("profile refresh failed, keeping stored profile")
	}

	c.setAuthenticated(record)
	return nil
}

// Login installs a credential the caller already obtained from a successful
// backend login. No network validation is performed here.
func (c *Context) Login(ctx context.Context, token string, user map[string]any, active tenant.Tenant) error {
	if token == "" {
		return errors.Wrap(autherrors.ErrInvalidArgument, "[Context.Login] token is required")
	}
	if !tenant.Known(active) {
		return errors.Wrapf(autherrors.ErrInvalidArgument, "[Context.Login] unknown tenant %q", active)
	}

	record, err := c.store.Write(ctx, token, user, active)
	if err != nil {
		return errors.Wrap(err, "[Context.Login] store.Write")
	}
	c.setAuthenticated(record)
	return nil
}

// LoginWithCredentials authenticates against one tenant's backend and, on
// success, installs the resulting session. The result carries the backend's
// error text for the calling UI on failure.
func (c *Context) LoginWithCredentials(ctx context.Context, active tenant.Tenant, creds identity.Credentials) identity.LoginResult {
	backend := c.backends[active]
	if backend == nil {
		return identity.LoginResult{Err: errors.Wrapf(autherrors.ErrInvalidArgument, "unknown tenant %q", active)}
	}

	result := backend.Login(ctx, creds)
	if !result.Success {
		return result
	}
	if err := c.Login(ctx, result.Token, result.User, active); err != nil {
		result.Success = false
		result.Err = err
	}
	return result
}

// Signup creates an account against one tenant's backend. When the backend
// issues a token the session is installed immediately; when it accepts the
// signup without a token the result's RequiresLogin flag tells the caller to
// follow up with an explicit login.
func (c *Context) Signup(ctx context.Context, active tenant.Tenant, profile map[string]any) identity.SignupResult {
	backend := c.backends[active]
	if backend == nil {
		return identity.SignupResult{Err: errors.Wrapf(autherrors.ErrInvalidArgument, "unknown tenant %q", active)}
	}

	result := backend.Signup(ctx, profile)
	if !result.Success || result.Token == "" {
		return result
	}
	if err := c.Login(ctx, result.Token, result.User, active); err != nil {
		result.Success = false
		result.Err = err
	}
	return result
}

// Logout clears all stores and resets the in-memory state. It cannot fail
// from the caller's perspective: storage removal is best-effort and the
// in-memory state is authoritative for the running process.
func (c *Context) Logout(ctx context.Context) {
	_ = c.store.Clear(ctx)
	c.setUnauthenticated()
}

// UpdateUser shallow-merges patch into the current profile and re-persists
// it (with write-through to the legacy mirrors). The active tenant is
// unchanged.
func (c *Context) UpdateUser(ctx context.Context, patch map[string]any) error {
	c.mu.RLock()
	record := c.record
	state := c.state
	c.mu.RUnlock()

	if state != Authenticated || record == nil {
		return errors.Wrap(autherrors.ErrNotAuthenticated, "[Context.UpdateUser]")
	}

	merged := make(map[string]any, len(record.User)+len(patch))
	for k, v := range record.User {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	updated, err := c.store.Write(ctx, record.Token, merged, record.ActiveTenant)
	if err != nil {
		return errors.Wrap(err, "[Context.UpdateUser] store.Write")
	}
	c.setAuthenticated(updated)
	return nil
}

// AuthHeaders returns the bearer header for the current in-memory token, or
// an empty map when unauthenticated. Storage is never re-read here.
func (c *Context) AuthHeaders() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != Authenticated || c.record == nil {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + c.record.Token}
}

// CheckAuth is a lightweight storage-only re-check that does not hit the
// network, for callers that need a quick snapshot of the persisted state.
func (c *Context) CheckAuth(ctx context.Context) AuthCheck {
	record, err := c.store.Read(ctx)
	if err != nil || record == nil {
		return AuthCheck{}
	}
	return AuthCheck{
		Authenticated: true,
		Token:         record.Token,
		User:          copyUser(record.User),
	}
}

// Snapshot returns a copy of the observable state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := Snapshot{
		State:   c.state,
		Loading: c.state == Loading,
	}
	if c.state == Authenticated && c.record != nil {
		snapshot.Authenticated = true
		snapshot.Token = c.record.Token
		snapshot.User = copyUser(c.record.User)
		snapshot.ActiveTenant = c.record.ActiveTenant
	}
	return snapshot
}

// Close stops the background re-validation loop, if one is running.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *Context) revalidateLoop() {
	ticker := time.NewTicker(c.revalidateEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.revalidate()
		}
	}
}

// revalidate re-checks the active credential. Only an explicit rejection
// drops the session; transient failures leave it untouched.
func (c *Context) revalidate() {
	c.mu.RLock()
	record := c.record
	state := c.state
	c.mu.RUnlock()

	if state != Authenticated || record == nil {
		return
	}

	ctx := context.Background()
	if c.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.initTimeout)
		defer cancel()
	}

	verify := c.backends[record.ActiveTenant].Verify(ctx, record.Token)
	if verify.Unauthorized {
		c.log.Info().Str("tenant", string(record.ActiveTenant)).Msg("credential rejected during re-validation, logging out")
		_ = c.store.Clear(ctx)
		c.setUnauthenticated()
	}
}

func (c *Context) setAuthenticated(record *sessionstore.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Authenticated
	c.record = record
}

func (c *Context) setUnauthenticated() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Unauthenticated
	c.record = nil
}

func copyUser(user map[string]any) map[string]any {
	if user == nil {
		return nil
	}
	copied := make(map[string]any, len(user))
	for k, v := range user {
		copied[k] = v
	}
	return copied
}

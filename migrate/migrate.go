// Package migrate lifts pre-unified, tenant-specific credentials into the
// unified session record. It runs once per cold start and promotes at most
// one credential.
package migrate

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnibrand/go-session-kit/identity"
	"github.com/omnibrand/go-session-kit/sessionstore"
	"github.com/omnibrand/go-session-kit/tenant"
)

// Migrator probes each tenant's legacy storage shape in priority order and
// promotes the first credential that still verifies against its backend.
type Migrator struct {
	store    *sessionstore.Store
	backends identity.Backends
	log      zerolog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Migrator) {
		m.log = log
	}
}

// New creates a Migrator. A backend must be registered for every tenant,
// since any of the three legacy shapes may hold the surviving credential.
func New(store *sessionstore.Store, backends identity.Backends, options ...Option) (*Migrator, error) {
	if store == nil {
		return nil, errors.New("[migrate.New] store is required")
	}
	for _, t := range tenant.All() {
		if backends[t] == nil {
			return nil, errors.Errorf("[migrate.New] backend for tenant %q is required", t)
		}
	}

	migrator := &Migrator{
		store:    store,
		backends: backends,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(migrator)
	}
	return migrator, nil
}

// Run executes the migration. If the unified record already exists it is
// returned untouched (the caller validates it). Otherwise tenants are probed
// strictly sequentially in priority order so first-match is deterministic
// regardless of relative backend latency:
//
//   - no token found (or corrupt record): skip to the next tenant
//   - token rejected by the backend: delete that tenant's legacy keys, continue
//   - transient verification failure: keep the keys, continue (the credential
//     may still be valid; it gets another chance next cold start)
//   - token valid: promote it to the unified record and stop scanning
//
// Returns (nil, nil) when no tenant yields a valid credential.
func (m *Migrator) Run(ctx context.Context) (*sessionstore.Record, error) {
	existing, err := m.store.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Migrator.Run] read unified record")
	}
	if existing != nil {
		return existing, nil
	}

	for _, t := range tenant.All() {
		record, err := m.probe(ctx, t)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return record, nil
		}
	}
	m.log.Debug().Msg("migration found no valid legacy credential")
	return nil, nil
}

func (m *Migrator) probe(ctx context.Context, t tenant.Tenant) (*sessionstore.Record, error) {
	token, user, err := m.store.ReadLegacy(ctx, t)
	if err != nil {
		return nil, errors.Wrapf(err, "[Migrator.probe] read legacy record for %q", t)
	}
	if token == "" {
		return nil, nil
	}

	verify := m.backends[t].Verify(ctx, token)
	if verify.Unauthorized {
		m.log.Info().Str("tenant", string(t)).Msg("legacy credential rejected, removing")
		m.store.RemoveLegacy(ctx, t)
		return nil, nil
	}
	if !verify.Valid {
		// Transient failure: keep the keys, the credential may still be good.
		m.log.Warn().Err(verify.Err).Str("tenant", string(t)).Msg("legacy credential verification failed transiently, skipping")
		return nil, nil
	}

	// Prefer a fresh profile over whatever the legacy record held; fall back
	// to the legacy user when the fetch fails for any non-auth reason.
	if profile := m.backends[t].FetchProfile(ctx, token); profile.Success {
		user = profile.User
	}

	record, err := m.store.Write(ctx, token, user, t)
	if err != nil {
		return nil, errors.Wrapf(err, "[Migrator.probe] promote credential for %q", t)
	}
	m.log.Info().Str("tenant", string(t)).Msg("legacy credential promoted to unified session")
	return record, nil
}

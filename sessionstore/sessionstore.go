// Package sessionstore persists the unified session record and mirrors it
// back into each tenant's legacy on-device format, so code paths that still
// read a tenant's historical shape stay consistent with the unified state.
package sessionstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnibrand/go-session-kit/kvstore"
	"github.com/omnibrand/go-session-kit/tenant"
)

// UnifiedKey is the reserved key holding the unified session record.
const UnifiedKey = "@omnibrand_session"

// Record is the unified source of truth for "who is logged in". It is either
// fully present (token and user both set) or fully absent; ActiveTenant is
// never set without a valid token.
type Record struct {
	ID           string         `json:"id"`
	Token        string         `json:"token"`
	User         map[string]any `json:"user"`
	ActiveTenant tenant.Tenant  `json:"activeTenant"`
	Timestamp    int64          `json:"timestamp"` // ms since epoch, diagnostics only
}

// legacyBlob is the single-key {token, user} shape used by the blob tenants.
type legacyBlob struct {
	Token string         `json:"token"`
	User  map[string]any `json:"user"`
}

// Store owns the persisted bytes of the unified record and the legacy
// mirrors. The in-memory record is owned by the session Context; nothing else
// mutates either directly.
type Store struct {
	kv  kvstore.Store
	log zerolog.Logger
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.now = nowFunc
	}
}

// New creates a Store over the given durable key-value store.
func New(kv kvstore.Store, options ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("[sessionstore.New] kv store is required")
	}

	store := &Store{
		kv:  kv,
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range options {
		opt(store)
	}
	return store, nil
}

// Write persists the unified record, then mirrors it into all three legacy
// shapes. The write succeeds once the unified record is down; mirror failures
// are logged, never surfaced. The mirrors fire in parallel but all are issued
// and settled before Write returns.
func (s *Store) Write(ctx context.Context, token string, user map[string]any, active tenant.Tenant) (*Record, error) {
	if token == "" {
		return nil, errors.New("[sessionstore.Write] token is required")
	}
	if !tenant.Known(active) {
		return nil, errors.Errorf("[sessionstore.Write] unknown tenant %q", active)
	}
	if user == nil {
		user = map[string]any{}
	}

	record := &Record{
		ID:           uuid.New().String(),
		Token:        token,
		User:         user,
		ActiveTenant: active,
		Timestamp:    s.now().UnixMilli(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "[sessionstore.Write] marshal record")
	}
	if err := s.kv.Set(ctx, UnifiedKey, string(payload)); err != nil {
		return nil, errors.Wrap(err, "[sessionstore.Write] set unified record")
	}

	s.mirror(ctx, token, user)
	return record, nil
}

// Read loads the unified record. Absence and corruption both come back as
// (nil, nil): a record that fails to parse is treated as absent, never as an
// error the caller has to handle.
func (s *Store) Read(ctx context.Context) (*Record, error) {
	raw, ok, err := s.kv.Get(ctx, UnifiedKey)
	if err != nil {
		return nil, errors.Wrap(err, "[sessionstore.Read] get unified record")
	}
	if !ok {
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.log.Warn().Err(err).Msg("unified session record corrupt, treating as absent")
		return nil, nil
	}
	if record.Token == "" || !tenant.Known(record.ActiveTenant) {
		s.log.Warn().Str("tenant", string(record.ActiveTenant)).Msg("unified session record incomplete, treating as absent")
		return nil, nil
	}
	return &record, nil
}

// Clear removes the unified record and every legacy key in one batched
// removal. Best-effort: partial storage failure is logged and still reported
// as success, since the in-memory state is authoritative for the running
// process.
func (s *Store) Clear(ctx context.Context) error {
	keys := append([]string{UnifiedKey}, tenant.AllLegacyKeys()...)
	if err := s.kv.MultiRemove(ctx, keys); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear session keys")
	}
	return nil
}

// ReadLegacy loads one tenant's legacy credential. Malformed JSON is treated
// as absent for that tenant. For the split-key shape a valid token with a
// corrupt user record still returns the token; the caller refreshes the
// profile remotely.
func (s *Store) ReadLegacy(ctx context.Context, t tenant.Tenant) (string, map[string]any, error) {
	keys := t.Legacy()
	if !keys.Split() {
		raw, ok, err := s.kv.Get(ctx, keys.Blob)
		if err != nil {
			return "", nil, errors.Wrapf(err, "[sessionstore.ReadLegacy] get %s blob", t)
		}
		if !ok {
			return "", nil, nil
		}
		var blob legacyBlob
		if err := json.Unmarshal([]byte(raw), &blob); err != nil {
			s.log.Warn().Err(err).Str("tenant", string(t)).Msg("legacy record corrupt, treating as absent")
			return "", nil, nil
		}
		return blob.Token, blob.User, nil
	}

	token, ok, err := s.kv.Get(ctx, keys.Token)
	if err != nil {
		return "", nil, errors.Wrapf(err, "[sessionstore.ReadLegacy] get %s token", t)
	}
	if !ok || token == "" {
		return "", nil, nil
	}

	var user map[string]any
	if raw, ok, err := s.kv.Get(ctx, keys.User); err == nil && ok {
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			s.log.Warn().Str("tenant", string(t)).Msg("legacy user record corrupt, keeping token only")
			user = nil
		}
	}
	return token, user, nil
}

// RemoveLegacy deletes one tenant's legacy keys. Best-effort.
func (s *Store) RemoveLegacy(ctx context.Context, t tenant.Tenant) {
	if err := s.kv.MultiRemove(ctx, t.Legacy().Keys()); err != nil {
		s.log.Warn().Err(err).Str("tenant", string(t)).Msg("failed to remove legacy keys")
	}
}

// mirror writes the credential into every tenant's legacy shape, not just the
// active one: every code path that still reads a historical format must see
// the unified login.
func (s *Store) mirror(ctx context.Context, token string, user map[string]any) {
	var wg sync.WaitGroup
	for _, t := range tenant.All() {
		wg.Add(1)
		go func(t tenant.Tenant) {
			defer wg.Done()
			if err := s.mirrorTenant(ctx, t, token, user); err != nil {
				s.log.Warn().Err(err).Str("tenant", string(t)).Msg("legacy mirror write failed")
			}
		}(t)
	}
	wg.Wait()
}

func (s *Store) mirrorTenant(ctx context.Context, t tenant.Tenant, token string, user map[string]any) error {
	keys := t.Legacy()
	if !keys.Split() {
		payload, err := json.Marshal(legacyBlob{Token: token, User: user})
		if err != nil {
			return errors.Wrap(err, "marshal blob")
		}
		return s.kv.Set(ctx, keys.Blob, string(payload))
	}

	// Split shape: raw token string plus separate user JSON.
	if err := s.kv.Set(ctx, keys.Token, token); err != nil {
		return errors.Wrap(err, "set token key")
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "marshal user")
	}
	return s.kv.Set(ctx, keys.User, string(payload))
}

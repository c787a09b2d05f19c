// Package cryptfile provides an encrypted, file-backed kvstore.Store. It is
// the stand-in for the host platform's encrypted credential storage: the whole
// key space is held in one file, sealed with XChaCha20-Poly1305 under a key
// derived from a passphrase.
package cryptfile

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/omnibrand/go-session-kit/kvstore"
)

const (
	magic    = "SKV1"
	saltSize = 16

	// scrypt parameters, interactive-login strength.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Store is an encrypted file-backed implementation of kvstore.Store. The full
// key space is decrypted into memory at Open and re-sealed on every mutation.
type Store struct {
	mu     sync.RWMutex
	path   string
	derive func(salt []byte) ([]byte, error) // passphrase closure, keeps the passphrase out of struct dumps
	data   map[string]string
}

var _ kvstore.Store = (*Store)(nil)

// Open loads (or creates) the store file at path, unsealing it with the
// given passphrase. A wrong passphrase fails authentication and returns an
// error rather than yielding garbage.
func Open(path, passphrase string) (*Store, error) {
	if path == "" {
		return nil, errors.New("[cryptfile.Open] path is required")
	}
	if passphrase == "" {
		return nil, errors.New("[cryptfile.Open] passphrase is required")
	}

	s := &Store{
		path: path,
		derive: func(salt []byte) ([]byte, error) {
			return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
		},
		data: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[cryptfile.Open] read store file")
	}
	if err := s.unseal(raw); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	return value, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return s.persist()
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return s.persist()
}

func (s *Store) MultiRemove(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return s.persist()
}

// unseal parses magic || salt || nonce || ciphertext and decrypts the key map.
func (s *Store) unseal(raw []byte) error {
	header := len(magic) + saltSize + chacha20poly1305.NonceSizeX
	if len(raw) < header || string(raw[:len(magic)]) != magic {
		return errors.New("[cryptfile.unseal] unrecognised store file format")
	}
	salt := raw[len(magic) : len(magic)+saltSize]
	nonce := raw[len(magic)+saltSize : header]
	ciphertext := raw[header:]

	key, err := s.derive(salt)
	if err != nil {
		return errors.Wrap(err, "[cryptfile.unseal] derive key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return errors.Wrap(err, "[cryptfile.unseal] chacha20poly1305.NewX")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return errors.Wrap(err, "[cryptfile.unseal] decrypt (wrong passphrase or corrupt file)")
	}
	if err := json.Unmarshal(plaintext, &s.data); err != nil {
		return errors.Wrap(err, "[cryptfile.unseal] unmarshal key map")
	}
	return nil
}

// persist seals the key map and writes it atomically (temp file + rename).
// Caller holds the write lock.
func (s *Store) persist() error {
	plaintext, err := json.Marshal(s.data)
	if err != nil {
		return errors.Wrap(err, "[cryptfile.persist] marshal key map")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "[cryptfile.persist] rand salt")
	}
	key, err := s.derive(salt)
	if err != nil {
		return errors.Wrap(err, "[cryptfile.persist] derive key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return errors.Wrap(err, "[cryptfile.persist] chacha20poly1305.NewX")
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[cryptfile.persist] rand nonce")
	}

	sealed := make([]byte, 0, len(magic)+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	sealed = append(sealed, magic...)
	sealed = append(sealed, salt...)
	sealed = append(sealed, nonce...)
	sealed = aead.Seal(sealed, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "[cryptfile.persist] mkdir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return errors.Wrap(err, "[cryptfile.persist] write temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "[cryptfile.persist] rename")
	}
	return nil
}

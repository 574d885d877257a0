package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// envelope replaces payload and result bytes; it stays valid JSON so every
// store can keep the column as is.
type envelope struct {
	Encrypted string `json:"__encrypted__"`
}

type encryptionMiddleware struct {
	next   ports.SessionStore
	config EncryptionConfig
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (AES-256), got %d", len(key))
	}
	return key, nil
}

// NewEncryptionMiddleware encrypts session payloads and results with AES-GCM.
// Ids, status and timestamps stay readable for sweeps and listings.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Get(ctx context.Context, id string) (*domain.Session, error) {
	s, err := m.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(s)
}

func (m *encryptionMiddleware) Open(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	sealed, err := m.seal(s)
	if err != nil {
		return nil, err
	}
	stored, err := m.next.Open(ctx, sealed)
	if err != nil {
		return nil, err
	}
	return m.open(stored)
}

func (m *encryptionMiddleware) CompareAndSwap(ctx context.Context, next *domain.Session, expect int64) (*domain.Session, error) {
	sealed, err := m.seal(next)
	if err != nil {
		return nil, err
	}
	stored, err := m.next.CompareAndSwap(ctx, sealed, expect)
	if err != nil {
		return nil, err
	}
	return m.open(stored)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]*domain.Session, error) {
	list, err := m.next.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		opened, err := m.open(s)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (m *encryptionMiddleware) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	return m.next.Sweep(ctx, now, retention)
}

func (m *encryptionMiddleware) seal(s *domain.Session) (*domain.Session, error) {
	out := s.Clone()
	var err error
	if out.Payload, err = m.sealBytes(s.Payload); err != nil {
		return nil, fmt.Errorf("failed to encrypt session %s payload: %w", s.ID, err)
	}
	if out.Result, err = m.sealBytes(s.Result); err != nil {
		return nil, fmt.Errorf("failed to encrypt session %s result: %w", s.ID, err)
	}
	return out, nil
}

func (m *encryptionMiddleware) open(s *domain.Session) (*domain.Session, error) {
	out := s.Clone()
	var err error
	if out.Payload, err = m.openBytes(s.Payload); err != nil {
		return nil, fmt.Errorf("failed to decrypt session %s payload: %w", s.ID, err)
	}
	if out.Result, err = m.openBytes(s.Result); err != nil {
		return nil, fmt.Errorf("failed to decrypt session %s result: %w", s.ID, err)
	}
	return out, nil
}

func (m *encryptionMiddleware) sealBytes(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	ciphertext, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Encrypted: base64.StdEncoding.EncodeToString(ciphertext)})
}

// openBytes fails on plain rows: once configured, encryption is expected.
func (m *encryptionMiddleware) openBytes(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(stored, &env); err != nil || env.Encrypted == "" {
		return nil, errors.New("data is missing the encrypted envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	return decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

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

	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
)

const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

func (c EncryptionConfig) mustValidate() {
	if len(c.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
}

func (c EncryptionConfig) seal(plain []byte) (string, error) {
	ciphertext, err := encrypt(plain, c.ActiveKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (c EncryptionConfig) open(sealed string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	return decryptWithRotation(ciphertext, c.ActiveKey, c.FallbackKeys)
}

type encryptedFacts struct {
	next   ports.FactStore
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts every fact value with AES-GCM. Keys stay in
// clear so backends can still index them; values are stored as an envelope
// object {"__encrypted__": "<base64>"}.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	config.mustValidate()
	return func(next ports.FactStore) ports.FactStore {
		return &encryptedFacts{next: next, config: config}
	}
}

func (m *encryptedFacts) Put(ctx context.Context, soulID, key string, value json.RawMessage) error {
	sealed, err := m.config.seal(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt fact '%s': %w", key, err)
	}
	envelope, err := json.Marshal(map[string]string{envelopeKey: sealed})
	if err != nil {
		return err
	}
	return m.next.Put(ctx, soulID, key, envelope)
}

func (m *encryptedFacts) Load(ctx context.Context, soulID string) (map[string]json.RawMessage, error) {
	stored, err := m.next.Load(ctx, soulID)
	if err != nil {
		return nil, err
	}

	facts := make(map[string]json.RawMessage, len(stored))
	for key, raw := range stored {
		var envelope map[string]string
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope[envelopeKey] == "" {
			// Fail secure: a configured encryption never accepts plain values.
			return nil, fmt.Errorf("fact '%s' is missing encrypted data envelope", key)
		}
		plain, err := m.config.open(envelope[envelopeKey])
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt fact '%s': %w", key, err)
		}
		facts[key] = plain
	}
	return facts, nil
}

type encryptedTranscripts struct {
	next   ports.TranscriptStore
	config EncryptionConfig
}

// NewTranscriptEncryptionMiddleware encrypts whole transcripts. The stored
// envelope keeps the soul name and a single system entry carrying the
// ciphertext in its metadata; every conversation detail is hidden.
func NewTranscriptEncryptionMiddleware(config EncryptionConfig) TranscriptMiddleware {
	config.mustValidate()
	return func(next ports.TranscriptStore) ports.TranscriptStore {
		return &encryptedTranscripts{next: next, config: config}
	}
}

func (m *encryptedTranscripts) Save(ctx context.Context, id string, memory domain.WorkingMemory) error {
	plain, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	sealed, err := m.config.seal(plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt transcript: %w", err)
	}

	envelope := domain.NewWorkingMemory(memory.SoulName(), domain.System("",
		domain.WithID("encrypted"),
		domain.WithMetadata(map[string]any{envelopeKey: sealed}),
	))
	return m.next.Save(ctx, id, envelope)
}

func (m *encryptedTranscripts) Load(ctx context.Context, id string) (domain.WorkingMemory, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return domain.WorkingMemory{}, err
	}

	first, ok := envelope.At(0)
	if !ok {
		return domain.WorkingMemory{}, errors.New("transcript is missing encrypted data envelope")
	}
	sealed, ok := first.Meta(envelopeKey)
	str, isString := sealed.(string)
	if !ok || !isString {
		return domain.WorkingMemory{}, errors.New("transcript is missing encrypted data envelope")
	}

	plain, err := m.config.open(str)
	if err != nil {
		return domain.WorkingMemory{}, fmt.Errorf("failed to decrypt transcript: %w", err)
	}

	var memory domain.WorkingMemory
	if err := json.Unmarshal(plain, &memory); err != nil {
		return domain.WorkingMemory{}, fmt.Errorf("failed to unmarshal decrypted transcript: %w", err)
	}
	return memory, nil
}

func (m *encryptedTranscripts) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptedTranscripts) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
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
	for _, key := range append([][]byte{activeKey}, fallbackKeys...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

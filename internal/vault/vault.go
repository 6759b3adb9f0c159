// Package vault stores provider API keys encrypted at rest with AES-256-GCM.
// The data key is derived from an operator passphrase via argon2id; while the
// vault is locked the derived key is zeroed and every read fails.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrLocked   = errors.New("vault locked")
	ErrNotFound = errors.New("key not found")
)

// argon2id parameters, per the RFC 9106 second recommended option.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32
	saltLen      = 16
)

// Vault is an in-memory encrypted credential store with a lock/unlock
// lifecycle. A disabled vault passes values through unencrypted so the rest
// of the code does not branch on deployment mode.
type Vault struct {
	enabled bool

	mu     sync.RWMutex
	locked bool
	salt   []byte
	key    []byte // derived key, zeroed on Lock
	verify []byte // encrypted canary proving the passphrase matches

	values map[string][]byte
}

// New creates a vault. When enabled it starts locked; Unlock must be called
// with the operator passphrase before any secrets can be read or written.
func New(enabled bool) *Vault {
	return &Vault{
		enabled: enabled,
		locked:  enabled,
		values:  make(map[string][]byte),
	}
}

// IsLocked reports whether secret access is currently blocked.
func (v *Vault) IsLocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.enabled && v.locked
}

const canary = "extracthub-vault-v1"

// Unlock derives the data key from the passphrase. On first unlock a fresh
// salt is generated and a canary is sealed; later unlocks must decrypt the
// canary, so a wrong passphrase is rejected instead of silently producing
// garbage keys.
func (v *Vault) Unlock(passphrase []byte) error {
	if !v.enabled {
		return nil
	}
	if len(passphrase) < 8 {
		return errors.New("passphrase too short")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.salt == nil {
		salt := make([]byte, saltLen)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return err
		}
		v.salt = salt
	}
	key := argon2.IDKey(passphrase, v.salt, argonTime, argonMemory, argonThreads, keyLen)

	if v.verify == nil {
		sealed, err := seal(key, []byte(canary))
		if err != nil {
			return err
		}
		v.verify = sealed
	} else {
		plain, err := open(key, v.verify)
		if err != nil || subtle.ConstantTimeCompare(plain, []byte(canary)) != 1 {
			return errors.New("wrong passphrase")
		}
	}

	v.key = key
	v.locked = false
	return nil
}

// Lock zeroes the derived key and blocks secret access.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.key {
		v.key[i] = 0
	}
	v.key = nil
	v.locked = true
}

// Set encrypts and stores a secret.
func (v *Vault) Set(name, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.enabled {
		v.values[name] = []byte(value)
		return nil
	}
	if v.locked {
		return ErrLocked
	}
	sealed, err := seal(v.key, []byte(value))
	if err != nil {
		return err
	}
	v.values[name] = sealed
	return nil
}

// Get decrypts and returns a secret.
func (v *Vault) Get(name string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	stored, ok := v.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !v.enabled {
		return string(stored), nil
	}
	if v.locked {
		return "", ErrLocked
	}
	plain, err := open(v.key, stored)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", name, err)
	}
	return string(plain), nil
}

// Delete removes a secret.
func (v *Vault) Delete(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, name)
}

// Export returns the encrypted contents plus salt and canary, base64-encoded
// for persistence. Exporting never exposes plaintext.
func (v *Vault) Export() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]string, len(v.values)+2)
	if v.salt != nil {
		out["_salt"] = base64.StdEncoding.EncodeToString(v.salt)
	}
	if v.verify != nil {
		out["_verify"] = base64.StdEncoding.EncodeToString(v.verify)
	}
	for k, val := range v.values {
		out[k] = base64.StdEncoding.EncodeToString(val)
	}
	return out
}

// Import loads previously exported contents. The vault stays locked until
// Unlock succeeds against the imported canary.
func (v *Vault) Import(data map[string]string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, enc := range data {
		decoded, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		switch k {
		case "_salt":
			v.salt = decoded
		case "_verify":
			v.verify = decoded
		default:
			v.values[k] = decoded
		}
	}
	return nil
}

func seal(key, plaintext []byte) ([]byte, error) {
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

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := sealed[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, sealed[gcm.NonceSize():], nil)
}

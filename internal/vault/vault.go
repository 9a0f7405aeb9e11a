// Package vault provides authenticated encryption for secrets (the
// DeepSeek API key) at rest, keyed from a master secret local to the
// database file rather than a true OS keyring — no keyring library
// appears anywhere in the example pack this module was built from, so
// the master secret is generated once with crypto/rand and persisted
// in a sidecar file next to the database, which the settings service
// treats exactly as it would treat a keyring-backed secret: read at
// startup, never logged, cleared on request.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/antigravity-dev/cognicore/internal/apperr"
)

const ciphertextPrefix = "v1:"

// legacySecretLabel is mixed into the pre-vault secret derivation. It must
// never change: it's the salt that made a pre-v1 install's XOR obfuscation
// specific to that install's database path.
const legacySecretLabel = "cognical.settings.v1"

// Vault seals and opens secrets with ChaCha20-Poly1305, using a master
// secret stored alongside the database.
type Vault struct {
	mu      sync.Mutex
	keyPath string

	// legacySecret decodes values left over from the pre-vault settings
	// store, which obfuscated them with a repeating-key XOR rather than
	// real encryption. Derived once from dbPath at Open time.
	legacySecret [32]byte
}

// Open loads (or creates) the master secret for the database at dbPath
// and returns a Vault ready to encrypt/decrypt.
func Open(dbPath string) (*Vault, error) {
	keyPath := dbPath + ".vaultkey"
	v := &Vault{keyPath: keyPath, legacySecret: deriveLegacySecret(dbPath)}
	if _, err := v.loadOrCreateKey(); err != nil {
		return nil, err
	}
	return v, nil
}

// deriveLegacySecret reproduces the pre-vault settings service's secret:
// SHA-256 of a fixed label concatenated with the database's filesystem path,
// so the obfuscation was at least specific to the install it lived in.
func deriveLegacySecret(dbPath string) [32]byte {
	h := sha256.New()
	h.Write([]byte(legacySecretLabel))
	h.Write([]byte(dbPath))
	var secret [32]byte
	copy(secret[:], h.Sum(nil))
	return secret
}

// xorWithSecret XORs data against secret, repeating secret as needed.
func xorWithSecret(data, secret []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ secret[i%len(secret)]
	}
	return out
}

// DecryptLegacyAPIKey recovers the plaintext behind a pre-v1 settings value:
// base64(XOR(plaintext, deriveLegacySecret(dbPath))). Pre-v1 installs stored
// API keys this way in app_settings before the vault existed; loadAPIKey
// calls this once to migrate such a row into real v1 ciphertext.
func (v *Vault) DecryptLegacyAPIKey(encoded string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", apperr.NewValidation("legacy api key is not valid base64")
	}
	plain := xorWithSecret(decoded, v.legacySecret[:])
	if !utf8.Valid(plain) {
		return "", apperr.NewValidation("legacy api key contains invalid characters")
	}
	return string(plain), nil
}

func (v *Vault) loadOrCreateKey() ([]byte, error) {
	key, err := os.ReadFile(v.keyPath)
	if err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, apperr.NewIo("read vault master secret", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, apperr.NewOther("generate vault master secret", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.keyPath), 0o700); err != nil {
		return nil, apperr.NewIo("create vault directory", err)
	}
	if err := os.WriteFile(v.keyPath, key, 0o600); err != nil {
		return nil, apperr.NewIo("write vault master secret", err)
	}
	return key, nil
}

// Encrypt seals plaintext under the vault's master secret, returning a
// "v1:"-prefixed, base64-encoded ciphertext safe to store as a SQL TEXT
// column value.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.loadOrCreateKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", apperr.NewOther("build AEAD cipher", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperr.NewOther("generate nonce", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (v *Vault) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, ciphertextPrefix) {
		return nil, apperr.NewValidation("ciphertext is not in the v1 vault format")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.loadOrCreateKey()
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperr.NewOther("build AEAD cipher", err)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, ciphertextPrefix))
	if err != nil {
		return nil, apperr.NewValidation("ciphertext is not valid base64")
	}
	if len(raw) < aead.NonceSize() {
		return nil, apperr.NewValidation("ciphertext is too short")
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, apperr.NewOther("decrypt secret", err)
	}
	return plain, nil
}

// ClearMasterSecret removes the persisted master secret. Any ciphertext
// encrypted under it becomes permanently unreadable; the next Encrypt/
// Decrypt call regenerates a fresh secret.
func (v *Vault) ClearMasterSecret() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.Remove(v.keyPath); err != nil && !os.IsNotExist(err) {
		return apperr.NewIo("remove vault master secret", err)
	}
	return nil
}

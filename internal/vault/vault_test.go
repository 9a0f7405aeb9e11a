package vault

import (
	"crypto/sha256"
	"encoding/base64"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ciphertext, err := v.Encrypt([]byte("sk-test-123456"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext[:3] != "v1:" {
		t.Fatalf("Encrypt() ciphertext = %q, want v1: prefix", ciphertext)
	}

	plain, err := v.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(plain) != "sk-test-123456" {
		t.Fatalf("Decrypt() = %q, want %q", plain, "sk-test-123456")
	}
}

func TestDecryptRejectsUnknownFormat(t *testing.T) {
	v, err := Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := v.Decrypt("not-a-vault-ciphertext"); err == nil {
		t.Fatal("Decrypt() error = nil, want a validation error")
	}
}

func TestMasterSecretPersistsAcrossOpens(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cognicore.db")
	first, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ciphertext, err := first.Encrypt([]byte("persisted-secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	second, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	plain, err := second.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() with reopened vault error = %v", err)
	}
	if string(plain) != "persisted-secret" {
		t.Fatalf("Decrypt() = %q, want %q", plain, "persisted-secret")
	}
}

func TestClearMasterSecretInvalidatesOldCiphertext(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cognicore.db")
	v, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ciphertext, err := v.Encrypt([]byte("will-be-lost"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if err := v.ClearMasterSecret(); err != nil {
		t.Fatalf("ClearMasterSecret() error = %v", err)
	}

	if _, err := v.Decrypt(ciphertext); err == nil {
		t.Fatal("Decrypt() after ClearMasterSecret() error = nil, want a decrypt failure")
	}
}

func TestDecryptLegacyAPIKeyRecoversPlaintext(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cognicore.db")

	h := sha256.New()
	h.Write([]byte("cognical.settings.v1"))
	h.Write([]byte(dbPath))
	secret := h.Sum(nil)

	plaintext := "sk-old-install-7777"
	obfuscated := make([]byte, len(plaintext))
	for i := range plaintext {
		obfuscated[i] = plaintext[i] ^ secret[i%len(secret)]
	}
	legacyValue := base64.StdEncoding.EncodeToString(obfuscated)

	v, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	got, err := v.DecryptLegacyAPIKey(legacyValue)
	if err != nil {
		t.Fatalf("DecryptLegacyAPIKey() error = %v", err)
	}
	if got != plaintext {
		t.Fatalf("DecryptLegacyAPIKey() = %q, want %q", got, plaintext)
	}
}

func TestDecryptLegacyAPIKeyRejectsNonBase64(t *testing.T) {
	v, err := Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := v.DecryptLegacyAPIKey("not base64!!"); err == nil {
		t.Fatal("DecryptLegacyAPIKey() error = nil, want a validation error")
	}
}

func TestDecryptLegacyAPIKeyIsSpecificToDatabasePath(t *testing.T) {
	plaintext := "sk-path-salted-0001"

	secretFor := func(dbPath string) []byte {
		h := sha256.New()
		h.Write([]byte("cognical.settings.v1"))
		h.Write([]byte(dbPath))
		return h.Sum(nil)
	}

	pathA := filepath.Join(t.TempDir(), "a.db")
	pathB := filepath.Join(t.TempDir(), "b.db")

	secretA := secretFor(pathA)
	obfuscated := make([]byte, len(plaintext))
	for i := range plaintext {
		obfuscated[i] = plaintext[i] ^ secretA[i%len(secretA)]
	}
	legacyValue := base64.StdEncoding.EncodeToString(obfuscated)

	vB, err := Open(pathB)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := vB.DecryptLegacyAPIKey(legacyValue)
	if err == nil && got == plaintext {
		t.Fatal("DecryptLegacyAPIKey() recovered plaintext using the wrong database path's secret")
	}
}

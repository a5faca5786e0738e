package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plain := []byte("SQLite format 3\x00 roster snapshot")
	sealed, err := Seal(plain, "pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("ciphertext contains plaintext")
	}
	got, err := Open(sealed, "pass")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip = %q, want %q", got, plain)
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, _ := Seal([]byte("x"), "pass")
	b, _ := Seal([]byte("x"), "pass")
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two seals shared a salt")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, _ := Seal([]byte("secret"), "right")
	if _, err := Open(sealed, "wrong"); err == nil {
		t.Fatal("expected error for wrong passphrase")
	}
}

func TestOpenTruncated(t *testing.T) {
	if _, err := Open([]byte("short"), "pass"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestEncryptDecryptFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "db")
	enc := filepath.Join(dir, "db.enc")
	dec := filepath.Join(dir, "db.out")
	if err := os.WriteFile(src, []byte("database bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := EncryptFile(src, enc, "pp"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := DecryptFile(enc, dec, "pp"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	got, _ := os.ReadFile(dec)
	if string(got) != "database bytes" {
		t.Errorf("decrypted = %q", got)
	}
}

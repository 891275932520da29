package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestNewEncryptor_Base64Key(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	if _, err := NewEncryptor(base64.StdEncoding.EncodeToString(key)); err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
}

func TestNewEncryptor_Empty(t *testing.T) {
	if _, err := NewEncryptor(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestEncryptDecrypt_Basic(t *testing.T) {
	enc, err := NewEncryptor("test-encryption-key-12345")
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}

	plaintext := []byte("1//0refresh-token")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contains plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	enc, _ := NewEncryptor("test-key")
	c1, _ := enc.Encrypt([]byte("same"))
	c2, _ := enc.Encrypt([]byte("same"))
	if bytes.Equal(c1, c2) {
		t.Fatal("ciphertexts are identical; nonce not random")
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	enc, _ := NewEncryptor("test-key")
	if _, err := enc.Decrypt([]byte{1, 2, 3}); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, _ := NewEncryptor("key-one")
	enc2, _ := NewEncryptor("key-two")

	ciphertext, _ := enc1.Encrypt([]byte("secret data"))
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Fatal("expected error when decrypting with wrong key")
	}
}

func TestSealOpenJSON(t *testing.T) {
	enc, _ := NewEncryptor("test-key")

	type tok struct {
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	in := tok{RefreshToken: "r1", Scope: "calendar"}
	sealed, err := enc.SealJSON(in)
	if err != nil {
		t.Fatalf("SealJSON failed: %v", err)
	}

	var out tok
	if err := enc.OpenJSON(sealed, &out); err != nil {
		t.Fatalf("OpenJSON failed: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

package encryption

import (
	"bytes"
	"strings"
	"testing"

	"almaseo-go/internal/config"
)

func TestTestEncryptor_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "multi-line", input: []byte("{\n  \"title\": \"x\"\n}\n")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewTestEncryptor()

			var encrypted bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !strings.HasPrefix(encrypted.String(), testHeader) {
				t.Error("encrypted output does not start with test header")
			}

			ctx, err := e.Unlock("any-passphrase")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			var decrypted bytes.Buffer
			if err := ctx.Decrypt(bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %q, want %q", decrypted.Bytes(), tt.input)
			}
		})
	}
}

func TestTestEncryptor_Passphrase(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	if err := e.Setup("pw"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.setupCalled {
		t.Error("Setup() did not record that it was called")
	}
	if _, err := e.Unlock("pw"); err != nil {
		t.Errorf("Unlock(correct) error = %v", err)
	}
	if _, err := e.Unlock("nope"); err == nil {
		t.Error("Unlock(wrong) expected error after Setup")
	}
}

func TestTestDecryptionContext_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"plain document", `{"format":"almaseo.history.snapshot/v1"}`},
		{"truncated header", "ALMASEO"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := (&TestDecryptionContext{}).Decrypt(strings.NewReader(tt.input), &out); err == nil {
				t.Error("Decrypt() expected error")
			}
		})
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EncryptionConfig
		wantErr bool
	}{
		{"age", config.EncryptionConfig{Type: "age", PublicKeyPath: "/k/a.pub", PrivateKeyPath: "/k/a.key"}, false},
		{"default is age", config.EncryptionConfig{PublicKeyPath: "/k/a.pub", PrivateKeyPath: "/k/a.key"}, false},
		{"age without paths", config.EncryptionConfig{Type: "age"}, true},
		{"test", config.EncryptionConfig{Type: "test"}, false},
		{"unknown", config.EncryptionConfig{Type: "rot13"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Error("NewEncryptorFromConfig() returned nil")
			}
		})
	}
}

package encryption

import (
	"bufio"
	"fmt"
	"io"

	"almaseo-go/internal/seo"
)

// testHeader marks documents "encrypted" by TestEncryptor.
const testHeader = "ALMASEO-TEST-ENCRYPTED\n"

// TestEncryptor is a deterministic, reversible stand-in for AgeEncryptor.
// Encrypt prefixes a text header and Decrypt requires and strips it, so tests
// can tell sealed documents from plain ones without key files.
type TestEncryptor struct {
	setupCalled bool
	passphrase  string
}

var _ seo.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.WriteString(w, testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// Unlock accepts any passphrase until Setup has been called, then only the
// one passed to Setup.
func (e *TestEncryptor) Unlock(passphrase string) (seo.DecryptionContext, error) {
	if e.setupCalled && passphrase != e.passphrase {
		return nil, fmt.Errorf("decrypting private key: incorrect passphrase")
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ seo.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading test header: %w", err)
	}
	if header != testHeader {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, br); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

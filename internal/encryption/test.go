package encryption

import (
	"bytes"
	"fmt"
	"io"
)

// testHeader marks payloads written by TestEncryptor.
var testHeader = []byte("FSWENC\x00\x00")

// TestEncryptor is a deterministic, reversible stand-in for AgeEncryptor. It
// prepends a fixed header so stored bodies differ from the plaintext.
type TestEncryptor struct{}

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(string) (*TestDecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

package vault

import (
	"context"
	"io"

	"fswatcher/internal/mirror"
)

// Encrypter encrypts a plaintext stream.
type Encrypter interface {
	Encrypt(r io.Reader, w io.Writer) error
}

// EncryptedStore encrypts object bodies before handing them to the wrapped
// store. Keys and tags are stored unchanged.
type EncryptedStore struct {
	mirror.ObjectStore
	enc Encrypter
}

// NewEncryptedStore wraps store so every Put is encrypted with enc.
func NewEncryptedStore(store mirror.ObjectStore, enc Encrypter) *EncryptedStore {
	return &EncryptedStore{ObjectStore: store, enc: enc}
}

// Put streams body through the encrypter into the wrapped store.
func (s *EncryptedStore) Put(ctx context.Context, key string, body io.Reader, tags string) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.enc.Encrypt(body, pw))
	}()
	err := s.ObjectStore.Put(ctx, key, pr, tags)
	// Unblocks the encrypter if the store stopped reading early.
	pr.Close()
	return err
}

// WithEncryption wraps every store issued by factory in an EncryptedStore.
func WithEncryption(factory mirror.SessionFactory, enc Encrypter) mirror.SessionFactory {
	return func(ctx context.Context) (mirror.ObjectStore, error) {
		store, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return NewEncryptedStore(store, enc), nil
	}
}

var _ mirror.ObjectStore = (*EncryptedStore)(nil)

package credentials

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	fileMagic = "GSCREDS1"
	saltLen   = 16
)

// FileStore is an encrypted-at-rest Store backed by a single file.
//
// The whole keyspace is sealed with ChaCha20-Poly1305 under a key derived
// from the passphrase with scrypt. Writes go through a temp file and
// rename, so a crash mid-write leaves the previous state intact.
type FileStore struct {
	path string
	key  []byte
	salt []byte
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens or creates the encrypted store at path.
func NewFileStore(path string, passphrase string) (*FileStore, error) {
	fs := &FileStore{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(raw) < len(fileMagic)+saltLen || string(raw[:len(fileMagic)]) != fileMagic {
			return nil, errors.New("FileStore: unrecognised file format")
		}
		fs.salt = raw[len(fileMagic) : len(fileMagic)+saltLen]
	case os.IsNotExist(err):
		fs.salt = make([]byte, saltLen)
		if _, err := rand.Read(fs.salt); err != nil {
			return nil, errors.Wrap(err, "FileStore: generate salt")
		}
	default:
		return nil, errors.Wrap(err, "FileStore: open")
	}

	fs.key, err = scrypt.Key([]byte(passphrase), fs.salt, 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errors.Wrap(err, "FileStore: derive key")
	}
	return fs, nil
}

func (fs *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.load()
	if err != nil {
		return nil, err
	}
	value, ok := values[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return value, nil
}

func (fs *FileStore) Set(ctx context.Context, key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.load()
	if err != nil {
		return err
	}
	values[key] = value
	return fs.save(values)
}

func (fs *FileStore) Delete(ctx context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return fs.save(values)
}

func (fs *FileStore) load() (map[string][]byte, error) {
	raw, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "FileStore: read")
	}

	header := len(fileMagic) + saltLen
	aead, err := chacha20poly1305.New(fs.key)
	if err != nil {
		return nil, errors.Wrap(err, "FileStore: cipher")
	}
	if len(raw) < header+aead.NonceSize() {
		return nil, errors.New("FileStore: truncated file")
	}

	nonce := raw[header : header+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, raw[header+aead.NonceSize():], fs.salt)
	if err != nil {
		return nil, errors.Wrap(err, "FileStore: decrypt")
	}

	values := make(map[string][]byte)
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, errors.Wrap(err, "FileStore: decode")
	}
	return values, nil
}

func (fs *FileStore) save(values map[string][]byte) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "FileStore: encode")
	}

	aead, err := chacha20poly1305.New(fs.key)
	if err != nil {
		return errors.Wrap(err, "FileStore: cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "FileStore: nonce")
	}

	raw := make([]byte, 0, len(fileMagic)+saltLen+len(nonce)+len(plaintext)+aead.Overhead())
	raw = append(raw, fileMagic...)
	raw = append(raw, fs.salt...)
	raw = append(raw, nonce...)
	raw = aead.Seal(raw, nonce, plaintext, fs.salt)

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".gscreds-*")
	if err != nil {
		return errors.Wrap(err, "FileStore: temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "FileStore: write")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "FileStore: close")
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "FileStore: rename")
	}
	return nil
}

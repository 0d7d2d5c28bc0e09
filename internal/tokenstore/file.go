package tokenstore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var (
	ErrBadPassphrase = errors.New("store file could not be decrypted")
	ErrEncrypted     = errors.New("store file is encrypted but no passphrase was given")
)

var sealedMagic = []byte("ANOT1")

const (
	saltSize  = 16
	nonceSize = 24
)

// FileStore keeps all entries in one JSON document on disk, optionally sealed
// with a passphrase-derived key. Several processes may share the file: reads
// pick up changes made by others, and each write re-reads the document and
// applies only its own key under an exclusive lock before the atomic rename.
type FileStore struct {
	path       string
	passphrase []byte
	lock       *flock.Flock

	mu      sync.Mutex
	entries map[string]string
	modTime time.Time
	size    int64
}

// OpenFile loads path, creating an empty store if the file does not exist.
// An empty passphrase stores plain JSON.
func OpenFile(path, passphrase string) (*FileStore, error) {
	fs := &FileStore{
		path:       path,
		passphrase: []byte(passphrase),
		lock:       flock.New(path + ".lock"),
		entries:    make(map[string]string),
	}
	if err := fs.reload(true); err != nil {
		return nil, err
	}
	return fs, nil
}

// reload re-reads the document when it changed since the last read, or
// always when force is set. Callers hold fs.mu.
func (fs *FileStore) reload(force bool) error {
	info, err := os.Stat(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		fs.entries = make(map[string]string)
		fs.modTime, fs.size = time.Time{}, 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat store: %w", err)
	}
	if !force && info.ModTime().Equal(fs.modTime) && info.Size() == fs.size {
		return nil
	}

	raw, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	entries := make(map[string]string)
	if len(raw) > 0 {
		if bytes.HasPrefix(raw, sealedMagic) {
			if len(fs.passphrase) == 0 {
				return ErrEncrypted
			}
			if raw, err = fs.open(raw); err != nil {
				return err
			}
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("decode store: %w", err)
		}
	}
	fs.entries = entries
	fs.modTime, fs.size = info.ModTime(), info.Size()
	return nil
}

func (fs *FileStore) Load(key string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.reload(false); err != nil {
		return "", false, err
	}
	v, ok := fs.entries[key]
	return v, ok, nil
}

func (fs *FileStore) Save(key, value string) error {
	return fs.write(func(entries map[string]string) bool {
		entries[key] = value
		return true
	})
}

func (fs *FileStore) Delete(key string) error {
	return fs.write(func(entries map[string]string) bool {
		if _, ok := entries[key]; !ok {
			return false
		}
		delete(entries, key)
		return true
	})
}

// write applies fn to the current on-disk document while holding the file
// lock, so concurrent writers never drop each other's keys.
func (fs *FileStore) write(fn func(map[string]string) bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := fs.lock.Lock(); err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	defer fs.lock.Unlock()

	if err := fs.reload(true); err != nil {
		return err
	}
	next := make(map[string]string, len(fs.entries)+1)
	for k, v := range fs.entries {
		next[k] = v
	}
	if !fn(next) {
		return nil
	}
	if err := fs.flush(next); err != nil {
		return err
	}
	fs.entries = next
	if info, err := os.Stat(fs.path); err == nil {
		fs.modTime, fs.size = info.ModTime(), info.Size()
	}
	return nil
}

// Keys returns a snapshot of the stored keys.
func (fs *FileStore) Keys() ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.reload(false); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fs.entries))
	for k := range fs.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (fs *FileStore) flush(entries map[string]string) error {
	plain, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	out := plain
	if len(fs.passphrase) > 0 {
		if out, err = fs.seal(plain); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".store-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod store: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func (fs *FileStore) deriveKey(salt []byte) (*[32]byte, error) {
	k, err := scrypt.Key(fs.passphrase, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], k)
	return &key, nil
}

// seal layout: magic | salt | nonce | secretbox(plain)
func (fs *FileStore) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	key, err := fs.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealedMagic)+saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

func (fs *FileStore) open(blob []byte) ([]byte, error) {
	blob = blob[len(sealedMagic):]
	if len(blob) < saltSize+nonceSize+secretbox.Overhead {
		return nil, ErrBadPassphrase
	}
	salt := blob[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], blob[saltSize:saltSize+nonceSize])

	key, err := fs.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	plain, ok := secretbox.Open(nil, blob[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrBadPassphrase
	}
	return plain, nil
}

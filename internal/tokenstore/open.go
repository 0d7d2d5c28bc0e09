package tokenstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/db"
	"github.com/anot-platform/anot-client/internal/logging"
)

// Spec selects and configures a backend.
type Spec struct {
	Kind        string // memory, file or postgres
	Path        string
	Passphrase  string
	DatabaseURL string
}

// Handle is an opened store. It publishes changes like a Notifier and can
// enumerate its keys for maintenance tools.
type Handle struct {
	*Notifier

	keys  func() ([]string, error)
	close func() error
}

// Open builds the store described by spec, wrapped so that backend failures
// degrade to memory and every change is published.
func Open(spec Spec, l *zap.Logger) (*Handle, error) {
	l = logging.OrNop(l)

	switch spec.Kind {
	case "memory":
		m := NewMemoryStore()
		return &Handle{
			Notifier: NewNotifier(m),
			keys:     func() ([]string, error) { return m.Keys(), nil },
			close:    func() error { return nil },
		}, nil

	case "file":
		if dir := filepath.Dir(spec.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
		}
		fs, err := OpenFile(spec.Path, spec.Passphrase)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Notifier: NewNotifier(Resilient(fs, l)),
			keys:     fs.Keys,
			close:    func() error { return nil },
		}, nil

	case "postgres":
		gdb, err := db.Connect(spec.DatabaseURL, l)
		if err != nil {
			return nil, err
		}
		ds, err := NewDBStore(gdb)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Notifier: NewNotifier(Resilient(ds, l)),
			keys:     ds.Keys,
			close: func() error {
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store kind %q", spec.Kind)
}

// Keys lists the keys held by the backend, sorted.
func (h *Handle) Keys() ([]string, error) {
	keys, err := h.keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// HistoryOwners returns the owner ids that have a job list.
func (h *Handle) HistoryOwners() ([]string, error) {
	keys, err := h.Keys()
	if err != nil {
		return nil, err
	}
	var owners []string
	for _, k := range keys {
		if owner, ok := strings.CutPrefix(k, plagiarismHistoryPrefix); ok && owner != "" {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

func (h *Handle) Close() error { return h.close() }

package tokenstore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/logging"
)

// ResilientStore fronts a Backend with an in-memory mirror. Reads prefer the
// backend; when it fails the mirror answers. Writes land in the mirror and
// stay pending until the backend accepts them, so a write made during an
// outage is replayed before the backend is trusted again.
type ResilientStore struct {
	backend Backend
	mirror  *MemoryStore
	log     *zap.Logger

	mu       sync.Mutex
	degraded bool
	pending  map[string]pendingWrite
}

type pendingWrite struct {
	value   string
	removed bool
}

// Resilient wraps b so that backend failures are logged and absorbed.
func Resilient(b Backend, l *zap.Logger) *ResilientStore {
	return &ResilientStore{
		backend: b,
		mirror:  NewMemoryStore(),
		log:     logging.OrNop(l),
		pending: make(map[string]pendingWrite),
	}
}

func (s *ResilientStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.replay() {
		return s.mirror.Get(key)
	}
	v, ok, err := s.backend.Load(key)
	if err != nil {
		s.fail("load", key, err)
		return s.mirror.Get(key)
	}
	s.recover()
	if ok {
		s.mirror.Set(key, v)
	} else {
		s.mirror.Remove(key)
	}
	return v, ok
}

func (s *ResilientStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror.Set(key, value)
	s.pending[key] = pendingWrite{value: value}
	s.replay()
}

func (s *ResilientStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror.Remove(key)
	s.pending[key] = pendingWrite{removed: true}
	s.replay()
}

// replay pushes pending writes to the backend and reports whether all of them
// landed. Callers hold s.mu.
func (s *ResilientStore) replay() bool {
	for key, w := range s.pending {
		op, err := "save", error(nil)
		if w.removed {
			op, err = "delete", s.backend.Delete(key)
		} else {
			err = s.backend.Save(key, w.value)
		}
		if err != nil {
			s.fail(op, key, err)
			return false
		}
		delete(s.pending, key)
	}
	s.recover()
	return true
}

// Degraded reports whether the last backend call failed.
func (s *ResilientStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *ResilientStore) fail(op, key string, err error) {
	if !s.degraded {
		s.log.Warn("token store unavailable, continuing in memory",
			zap.String("op", op), zap.String("key", key), zap.Error(err))
	}
	s.degraded = true
}

func (s *ResilientStore) recover() {
	if s.degraded {
		s.log.Info("token store available again")
	}
	s.degraded = false
}

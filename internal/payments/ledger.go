// Package payments records payment returns: the global completed-payments
// ledger and the HTTP handler the payment provider redirects back to.
package payments

import (
	"encoding/json"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/logging"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

const component = "payments"

// Ledger is the JSON array of merchant transaction ids stored under
// completedPayments. It is shared by every user of the store.
type Ledger struct {
	store tokenstore.Store
	log   *zap.Logger

	mu sync.Mutex
}

func NewLedger(store tokenstore.Store, l *zap.Logger) *Ledger {
	return &Ledger{store: store, log: logging.OrNop(l)}
}

func (l *Ledger) load() []string {
	raw, ok := l.store.Get(tokenstore.KeyCompletedPayments)
	if !ok || raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		logging.LogError(l.log, component, "decode ledger", err)
		return nil
	}
	return ids
}

func (l *Ledger) save(ids []string) {
	if len(ids) == 0 {
		l.store.Remove(tokenstore.KeyCompletedPayments)
		return
	}
	data, _ := json.Marshal(ids)
	l.store.Set(tokenstore.KeyCompletedPayments, string(data))
}

// Add records id once; it reports false when id was already present.
func (l *Ledger) Add(id string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.load()
	if slices.Contains(ids, id) {
		return false
	}
	l.save(append(ids, id))
	return true
}

func (l *Ledger) List() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Ledger) Contains(id string) bool {
	return slices.Contains(l.List(), id)
}

func (l *Ledger) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.load()
	n := len(cur)
	kept := slices.DeleteFunc(cur, func(id string) bool { return slices.Contains(ids, id) })
	if len(kept) != n {
		l.save(kept)
	}
}

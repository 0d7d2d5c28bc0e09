package plagiarism

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/logging"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

// Queue persists each owner's jobs, most recent first, under
// plagiarismHistory_<owner>.
type Queue struct {
	store tokenstore.Store
	log   *zap.Logger

	mu sync.Mutex
}

func NewQueue(store tokenstore.Store, l *zap.Logger) *Queue {
	return &Queue{store: store, log: logging.OrNop(l)}
}

// List returns the owner's jobs. A corrupt list reads as empty.
func (q *Queue) List(owner string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(owner)
}

func (q *Queue) load(owner string) []Job {
	raw, ok := q.store.Get(tokenstore.PlagiarismHistoryKey(owner))
	if !ok || raw == "" {
		return nil
	}
	var jobs []Job
	if err := json.Unmarshal([]byte(raw), &jobs); err != nil {
		logging.LogError(q.log, component, "decode job list", err)
		return nil
	}
	return jobs
}

func (q *Queue) save(owner string, jobs []Job) error {
	data, err := json.Marshal(jobs)
	if err != nil {
		return err
	}
	q.store.Set(tokenstore.PlagiarismHistoryKey(owner), string(data))
	return nil
}

// update applies fn to the owner's list and persists the result when fn
// reports a change.
func (q *Queue) update(owner string, fn func([]Job) ([]Job, bool)) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, changed := fn(q.load(owner))
	if !changed {
		return jobs, nil
	}
	if err := q.save(owner, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (q *Queue) prepend(owner string, job Job) error {
	_, err := q.update(owner, func(jobs []Job) ([]Job, bool) {
		return append([]Job{job}, jobs...), true
	})
	return err
}

func (q *Queue) markFailed(owner, id, reason string) error {
	_, err := q.update(owner, func(jobs []Job) ([]Job, bool) {
		for i := range jobs {
			if jobs[i].ID == id && jobs[i].Pending() {
				jobs[i].Status = StatusFailed
				jobs[i].FailureReason = reason
				return jobs, true
			}
		}
		return jobs, false
	})
	return err
}

// Remove deletes one job and reports whether it existed.
func (q *Queue) Remove(owner, id string) (bool, error) {
	found := false
	_, err := q.update(owner, func(jobs []Job) ([]Job, bool) {
		for i := range jobs {
			if jobs[i].ID == id {
				found = true
				return append(jobs[:i:i], jobs[i+1:]...), true
			}
		}
		return jobs, false
	})
	return found, err
}

// Expire fails pending jobs created more than maxAge before now and returns
// how many it touched. Jobs for which paid reports a recorded payment are not
// orphans and are left alone; paid may be nil.
func (q *Queue) Expire(owner string, maxAge time.Duration, now time.Time, paid func(merchantTransID string) bool) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	n := 0
	_, err := q.update(owner, func(jobs []Job) ([]Job, bool) {
		for i := range jobs {
			if !jobs[i].Pending() || now.Sub(jobs[i].CreatedAt) <= maxAge {
				continue
			}
			if paid != nil && paid(jobs[i].MerchantTransactionID) {
				continue
			}
			jobs[i].Status = StatusFailed
			jobs[i].FailureReason = "payment not received within " + maxAge.String()
			n++
		}
		return jobs, n > 0
	})
	return n, err
}

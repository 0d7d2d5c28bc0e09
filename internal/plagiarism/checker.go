package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/api"
	"github.com/anot-platform/anot-client/internal/logging"
)

const (
	component = "plagiarism"

	// DefaultServiceSlug is the catalog entry orders are placed against.
	DefaultServiceSlug = "plagiarism-check"

	merchantPrefix = "service_plagiarism_"
)

var (
	ErrNoFile             = errors.New("plagiarism: no file selected")
	ErrServiceUnavailable = errors.New("plagiarism: check service is not available")
)

// Orders is the part of the API client the checker needs.
type Orders interface {
	ServiceBySlug(ctx context.Context, slug string) (*api.Service, error)
	CreateServiceOrder(ctx context.Context, o api.ServiceOrder) (*api.ServiceOrderResponse, error)
}

// CompletedPayments is the global list of merchant transaction ids whose
// payment has returned successfully.
type CompletedPayments interface {
	List() []string
	Remove(ids ...string)
}

// Navigator sends the user to the payment page.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// File is the document submitted for checking.
type File struct {
	Name    string
	Content []byte
}

type Option func(*Checker)

func WithSynthesizer(s Synthesizer) Option { return func(c *Checker) { c.synth = s } }

func WithNavigator(n Navigator) Option { return func(c *Checker) { c.nav = n } }

func WithLogger(l *zap.Logger) Option { return func(c *Checker) { c.log = logging.OrNop(l) } }

func WithClock(now func() time.Time) Option { return func(c *Checker) { c.now = now } }

func WithServiceSlug(slug string) Option { return func(c *Checker) { c.slug = slug } }

// WithMaxPendingAge sets how long a job may wait for payment before Jobs
// marks it failed. Zero disables expiry.
func WithMaxPendingAge(d time.Duration) Option { return func(c *Checker) { c.maxPendingAge = d } }

// Checker runs the submit, reconcile and export workflow over a Queue.
type Checker struct {
	queue  *Queue
	orders Orders
	ledger CompletedPayments
	synth  Synthesizer
	nav    Navigator
	log    *zap.Logger
	now    func() time.Time

	slug          string
	maxPendingAge time.Duration

	idMu       sync.Mutex
	lastMillis int64
}

func NewChecker(q *Queue, orders Orders, ledger CompletedPayments, opts ...Option) *Checker {
	c := &Checker{
		queue:         q,
		orders:        orders,
		ledger:        ledger,
		synth:         NewRandomSynthesizer(nil),
		log:           zap.NewNop(),
		now:           time.Now,
		slug:          DefaultServiceSlug,
		maxPendingAge: 72 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nextMerchantID returns service_plagiarism_<unix millis>, bumped past the
// last id handed out so two submissions in one millisecond stay distinct.
func (c *Checker) nextMerchantID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.lastMillis {
		ms = c.lastMillis + 1
	}
	c.lastMillis = ms
	return merchantPrefix + strconv.FormatInt(ms, 10)
}

// Submit records a pending job, places the order and navigates to the
// payment page. A job whose order fails is kept, marked failed.
func (c *Checker) Submit(ctx context.Context, owner string, f File) (*Job, error) {
	if strings.TrimSpace(f.Name) == "" || len(f.Content) == 0 {
		return nil, ErrNoFile
	}
	svc, err := c.orders.ServiceBySlug(ctx, c.slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	job := Job{
		ID:                    uuid.NewString(),
		MerchantTransactionID: c.nextMerchantID(),
		FileName:              f.Name,
		CreatedAt:             c.now().UTC(),
		Status:                StatusPendingPayment,
	}
	if err := c.queue.prepend(owner, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	res, err := c.orders.CreateServiceOrder(ctx, api.ServiceOrder{
		ServiceID: svc.ID,
		FileName:  f.Name,
		File:      f.Content,
		FormData: map[string]any{
			"merchant_trans_id": job.MerchantTransactionID,
			"file_name":         f.Name,
		},
	})
	if err == nil && res.PaymentURL == "" {
		err = errors.New("order response has no payment url")
	}
	if err != nil {
		logging.LogError(c.log, component, "create order", err)
		if mErr := c.queue.markFailed(owner, job.ID, err.Error()); mErr != nil {
			logging.LogError(c.log, component, "mark job failed", mErr)
		}
		return nil, fmt.Errorf("place order: %w", err)
	}

	c.log.Info("plagiarism check ordered",
		zap.String("owner", owner),
		zap.String("job_id", job.ID),
		zap.String("merchant_trans_id", job.MerchantTransactionID),
	)
	if c.nav != nil {
		if err := c.nav.Navigate(ctx, res.PaymentURL); err != nil {
			return &job, fmt.Errorf("navigate to payment: %w", err)
		}
	}
	return &job, nil
}

// Reconcile completes every unfinished job whose transaction id is in the
// completed-payments list and consumes those ids. A recorded payment also
// revives a job that expiry had already failed. Ids belonging to no job of
// this owner are left for others.
func (c *Checker) Reconcile(owner string) ([]Job, error) {
	paid := make(map[string]bool)
	for _, id := range c.ledger.List() {
		paid[id] = true
	}
	if len(paid) == 0 {
		return c.queue.List(owner), nil
	}

	var matched []string
	jobs, err := c.queue.update(owner, func(jobs []Job) ([]Job, bool) {
		for i := range jobs {
			if jobs[i].Status == StatusCompleted || !paid[jobs[i].MerchantTransactionID] {
				continue
			}
			r := c.synth.Synthesize(jobs[i])
			jobs[i].Status = StatusCompleted
			jobs[i].Result = &r
			jobs[i].FailureReason = ""
			matched = append(matched, jobs[i].MerchantTransactionID)
		}
		return jobs, len(matched) > 0
	})
	if err != nil {
		return nil, fmt.Errorf("save reconciled jobs: %w", err)
	}

	if len(matched) > 0 {
		c.ledger.Remove(matched...)
		c.log.Info("plagiarism checks completed", zap.String("owner", owner), zap.Strings("merchant_trans_ids", matched))
	}
	return jobs, nil
}

// Jobs is the load path of the job list: it reconciles payments, expires
// pending jobs that are still unpaid and returns the result.
func (c *Checker) Jobs(owner string) ([]Job, error) {
	if _, err := c.Reconcile(owner); err != nil {
		return nil, err
	}
	paid := make(map[string]bool)
	for _, id := range c.ledger.List() {
		paid[id] = true
	}
	n, err := c.queue.Expire(owner, c.maxPendingAge, c.now(), func(id string) bool { return paid[id] })
	if err != nil {
		return nil, fmt.Errorf("expire jobs: %w", err)
	}
	if n > 0 {
		c.log.Info("expired unpaid plagiarism checks", zap.String("owner", owner), zap.Int("count", n))
	}
	return c.queue.List(owner), nil
}

// Job returns one job by id or merchant transaction id.
func (c *Checker) Job(owner, id string) (Job, bool) {
	for _, j := range c.queue.List(owner) {
		if j.ID == id || j.MerchantTransactionID == id {
			return j, true
		}
	}
	return Job{}, false
}

func (c *Checker) Remove(owner, id string) (bool, error) {
	return c.queue.Remove(owner, id)
}

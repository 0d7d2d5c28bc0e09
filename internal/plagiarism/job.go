// Package plagiarism tracks paid plagiarism checks as locally persisted jobs.
// A job is created before payment, completed when the payment return signal
// for its merchant transaction id shows up, and can then be exported as a PDF
// certificate or report.
package plagiarism

import "time"

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusCompleted      Status = "completed"
	// StatusFailed marks a job whose order never reached the payment
	// provider, or that waited for payment longer than the expiry age.
	StatusFailed Status = "failed"
)

var Statuses = []Status{StatusPendingPayment, StatusCompleted, StatusFailed}

type Source struct {
	SimilarityPercent float64 `json:"similarityPercent"`
	SourceLink        string  `json:"sourceLink"`
	ModuleType        string  `json:"moduleType"`
}

type Result struct {
	OriginalityPercent float64  `json:"originalityPercent"`
	PlagiarismPercent  float64  `json:"plagiarismPercent"`
	Sources            []Source `json:"sources"`
}

// Job is one check. Result is set exactly when Status is completed.
type Job struct {
	ID                    string    `json:"id"`
	MerchantTransactionID string    `json:"merchantTransactionId"`
	FileName              string    `json:"fileName"`
	CreatedAt             time.Time `json:"createdAt"`
	Status                Status    `json:"status"`
	Result                *Result   `json:"result"`
	FailureReason         string    `json:"failureReason,omitempty"`
}

func (j Job) Pending() bool { return j.Status == StatusPendingPayment }

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a server identifier. The API emits integers; cached profiles written
// by older clients hold strings, so both decode.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers, anything else as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

type Role string

const (
	RoleClient         Role = "client"
	RoleJournalManager Role = "journal_manager"
	RoleAccountant     Role = "accountant"
	RoleAdmin          Role = "admin"
	RoleWriter         Role = "writer"
)

// Roles lists every role the server knows.
var Roles = []Role{RoleClient, RoleJournalManager, RoleAccountant, RoleAdmin, RoleWriter}

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleJournalManager, RoleAccountant, RoleAdmin, RoleWriter:
		return true
	}
	return false
}

type Language string

const (
	LanguageUz Language = "uz"
	LanguageRu Language = "ru"
	LanguageEn Language = "en"
)

var Languages = []Language{LanguageUz, LanguageRu, LanguageEn}

func (l Language) Valid() bool {
	switch l {
	case LanguageUz, LanguageRu, LanguageEn:
		return true
	}
	return false
}

// User is the profile returned by /login/ and /profile/.
type User struct {
	ID       ID       `json:"id"`
	Phone    string   `json:"phone"`
	Name     string   `json:"name"`
	Surname  string   `json:"surname"`
	Role     Role     `json:"role"`
	Language Language `json:"language"`
	OrcidID  string   `json:"orcidId,omitempty"`
}

func (u User) FullName() string {
	switch {
	case u.Name == "":
		return u.Surname
	case u.Surname == "":
		return u.Name
	}
	return u.Name + " " + u.Surname
}

// RegisterRequest carries the profile fields of a new account. The server
// assigns id and language.
type RegisterRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    *User  `json:"user"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Service is a purchasable auxiliary service (plagiarism check, UDC, ...).
type Service struct {
	ID          ID          `json:"id"`
	Slug        string      `json:"slug"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	IsActive    bool        `json:"is_active"`
}

// PriceValue returns the price as a float, 0 when the server sent nothing.
func (s Service) PriceValue() float64 {
	f, err := s.Price.Float64()
	if err != nil {
		return 0
	}
	return f
}

// ServiceOrder is the multipart body of POST /service-orders/.
type ServiceOrder struct {
	ServiceID ID
	FileName  string
	File      []byte
	FormData  map[string]any
}

type ServiceOrderResponse struct {
	PaymentURL string `json:"payment_url"`
}

// SohaField is an entry of the field-of-science catalog.
type SohaField struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type ArticleStatus string

const (
	ArticleStatusPending       ArticleStatus = "pending"
	ArticleStatusReviewing     ArticleStatus = "reviewing"
	ArticleStatusNeedsRevision ArticleStatus = "needs_revision"
	ArticleStatusAccepted      ArticleStatus = "accepted"
	ArticleStatusRejected      ArticleStatus = "rejected"
	ArticleStatusPublished     ArticleStatus = "published"
)

var ArticleStatuses = []ArticleStatus{
	ArticleStatusPending, ArticleStatusReviewing, ArticleStatusNeedsRevision,
	ArticleStatusAccepted, ArticleStatusRejected, ArticleStatusPublished,
}

type Article struct {
	ID                   ID            `json:"id"`
	Title                string        `json:"title"`
	Category             string        `json:"category,omitempty"`
	UDK                  string        `json:"udk,omitempty"`
	Journal              *ID           `json:"journal,omitempty"`
	JournalName          string        `json:"journalName,omitempty"`
	AuthorName           string        `json:"authorName,omitempty"`
	SubmittedDate        string        `json:"submittedDate"`
	Status               ArticleStatus `json:"status"`
	PlagiarismPercentage *float64      `json:"plagiarism_percentage,omitempty"`
	DOI                  string        `json:"doi,omitempty"`
}

type Journal struct {
	ID                      ID          `json:"id"`
	Name                    string      `json:"name"`
	Description             string      `json:"description"`
	ISSN                    string      `json:"issn,omitempty"`
	Publisher               string      `json:"publisher,omitempty"`
	SubmissionChecklistText string      `json:"submissionChecklistText,omitempty"`
	PartnerPrice            json.Number `json:"partner_price,omitempty"`
	RegularPrice            json.Number `json:"regular_price,omitempty"`
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

var ApplicationStatuses = []ApplicationStatus{ApplicationPending, ApplicationApproved, ApplicationRejected}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationApproved, ApplicationRejected:
		return true
	}
	return false
}

// Application is an editorial board application.
type Application struct {
	ID          ID                `json:"id"`
	User        *User             `json:"user,omitempty"`
	SubmittedAt string            `json:"submitted_at"`
	Status      ApplicationStatus `json:"status"`
}

// FinancialReport and WriterDashboardSummary are server-shaped documents the
// client only displays.
type FinancialReport map[string]any

type WriterDashboardSummary map[string]any

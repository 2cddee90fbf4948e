package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// Store limits. Callers chunk their input to stay within them.
const (
	// MaxInValues is the largest value set accepted by an IN filter.
	MaxInValues = 30
	// MaxBatchWrites is the largest number of writes committed atomically.
	MaxBatchWrites = 500
)

var (
	// ErrNotFound is returned when a write targets a document that does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrBatchLimit is returned when a batch exceeds MaxBatchWrites.
	ErrBatchLimit = errors.New("store: batch exceeds write limit")
	// ErrInLimit is returned when an IN filter exceeds MaxInValues.
	ErrInLimit = errors.New("store: IN filter exceeds value limit")
)

// Order is the createdAt sort direction for ListLeads.
type Order int

const (
	// Ascending sorts oldest first.
	Ascending Order = iota
	// Descending sorts newest first.
	Descending
)

// LeadFilter selects leads for ListLeads. Zero-valued fields do not filter.
type LeadFilter struct {
	Status      model.Status
	Source      model.Source
	State       string
	Niche       string
	CreatedFrom *time.Time // inclusive
	CreatedTo   *time.Time // inclusive

	// EmailUnverified keeps only leads with no verification result.
	EmailUnverified bool

	Order      Order
	StartAfter string // lead id; ignored when no such lead exists
	Limit      int    // 0 = no limit
}

// LeadUpdate pairs a lead id with the patch to apply to it.
type LeadUpdate struct {
	ID    string
	Patch model.LeadPatch
}

// Store is the document-store contract the lead services depend on.
type Store interface {
	// Leads
	InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error)
	FindExistingEmails(ctx context.Context, emails []string) ([]string, error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	UpdateLead(ctx context.Context, id string, patch model.LeadPatch) error
	UpdateLeads(ctx context.Context, updates []LeadUpdate) error
	DeleteLeads(ctx context.Context, ids []string) (int, error)

	// Operators
	GetOperator(ctx context.Context, id string) (*model.Operator, error)
	UpsertOperator(ctx context.Context, op model.Operator) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// assignment is one column = value pair of an UPDATE.
type assignment struct {
	col string
	val any
}

// patchAssignments lists the columns a patch sets, in a stable order.
// Time values are passed as time.Time; adapters convert as needed.
func patchAssignments(p model.LeadPatch) []assignment {
	var out []assignment
	if p.Status != nil {
		out = append(out, assignment{"status", string(*p.Status)})
	}
	if p.EmailVerified != nil {
		out = append(out, assignment{"email_verified", *p.EmailVerified})
	}
	if p.EmailVerifiedAt != nil {
		out = append(out, assignment{"email_verified_at", p.EmailVerifiedAt.UTC()})
	}
	if p.WhoisEmail != nil {
		out = append(out, assignment{"whois_email", *p.WhoisEmail})
	}
	if p.OutreachBounced != nil {
		out = append(out, assignment{"outreach_bounced", *p.OutreachBounced})
	}
	if p.OutreachSentAt != nil {
		out = append(out, assignment{"outreach_sent_at", p.OutreachSentAt.UTC()})
	}
	if p.ConvertedAt != nil {
		out = append(out, assignment{"converted_at", p.ConvertedAt.UTC()})
	}
	return out
}

// leadColumns is the column order used by every lead SELECT and INSERT.
var leadColumns = []string{
	"id", "email", "name", "business_name", "phone", "phone_e164", "website",
	"niche", "industry", "state", "city", "zip", "source", "source_url",
	"source_detail", "status", "email_verified", "email_verified_at",
	"whois_email", "outreach_bounced", "outreach_sent_at", "converted_at",
	"created_at", "updated_at",
}

func checkBatch(n int) error {
	if n > MaxBatchWrites {
		return ErrBatchLimit
	}
	return nil
}

func checkIn(n int) error {
	if n > MaxInValues {
		return ErrInLimit
	}
	return nil
}

// serverTime truncates to microseconds so both adapters round-trip the same value.
func serverTime(now func() time.Time) time.Time {
	return now().UTC().Truncate(time.Microsecond)
}

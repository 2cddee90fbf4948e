package model

import (
	"strings"
	"time"
)

// Source identifies where a lead was scraped from.
type Source string

const (
	SourceStateLicensing Source = "state_licensing"
	SourceAngi           Source = "angi"
	SourceHealthgrades   Source = "healthgrades"
	SourceAvvo           Source = "avvo"
	SourceOpenTable      Source = "opentable"
	SourceHouzz          Source = "houzz"
	SourceIndeedJobs     Source = "indeed_jobs"
	SourceFacebook       Source = "facebook"
	SourceInstagram      Source = "instagram"
	SourceChamber        Source = "chamber"
	SourceBBB            Source = "bbb"
	SourceWhois          Source = "whois"
	SourceManual         Source = "manual"
)

// Sources lists every known provenance value.
var Sources = []Source{
	SourceStateLicensing, SourceAngi, SourceHealthgrades, SourceAvvo,
	SourceOpenTable, SourceHouzz, SourceIndeedJobs, SourceFacebook,
	SourceInstagram, SourceChamber, SourceBBB, SourceWhois, SourceManual,
}

// ValidSource reports whether s is one of the known provenance values.
func ValidSource(s Source) bool {
	for _, v := range Sources {
		if v == s {
			return true
		}
	}
	return false
}

// Status is the outreach label on a lead. Any status may follow any other.
type Status string

const (
	StatusNew        Status = "new"
	StatusQueued     Status = "queued"
	StatusSent       Status = "sent"
	StatusBounced    Status = "bounced"
	StatusReplied    Status = "replied"
	StatusConverted  Status = "converted"
	StatusSuppressed Status = "suppressed"
)

// Statuses lists every known status value.
var Statuses = []Status{
	StatusNew, StatusQueued, StatusSent, StatusBounced,
	StatusReplied, StatusConverted, StatusSuppressed,
}

// ValidStatus reports whether s is one of the known status values.
func ValidStatus(s Status) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// LeadInput is a single lead as submitted by a scraper.
type LeadInput struct {
	Email        string `json:"email" yaml:"email"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	BusinessName string `json:"businessName,omitempty" yaml:"businessName,omitempty"`
	Phone        string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Website      string `json:"website,omitempty" yaml:"website,omitempty"`
	Niche        string `json:"niche,omitempty" yaml:"niche,omitempty"`
	Industry     string `json:"industry,omitempty" yaml:"industry,omitempty"`
	State        string `json:"state,omitempty" yaml:"state,omitempty"`
	City         string `json:"city,omitempty" yaml:"city,omitempty"`
	Zip          string `json:"zip,omitempty" yaml:"zip,omitempty"`
	Source       Source `json:"source" yaml:"source"`
	SourceURL    string `json:"sourceUrl,omitempty" yaml:"sourceUrl,omitempty"`
	SourceDetail string `json:"sourceDetail,omitempty" yaml:"sourceDetail,omitempty"`
}

// Lead is a stored prospective-customer record.
type Lead struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
	Phone        string `json:"phone,omitempty"`
	PhoneE164    string `json:"phoneE164,omitempty"`
	Website      string `json:"website,omitempty"`
	Niche        string `json:"niche,omitempty"`
	Industry     string `json:"industry,omitempty"`
	State        string `json:"state,omitempty"`
	City         string `json:"city,omitempty"`
	Zip          string `json:"zip,omitempty"`
	Source       Source `json:"source"`
	SourceURL    string `json:"sourceUrl,omitempty"`
	SourceDetail string `json:"sourceDetail,omitempty"`
	Status       Status `json:"status"`

	EmailVerified   *bool      `json:"emailVerified,omitempty"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	WhoisEmail      string     `json:"whoisEmail,omitempty"`
	OutreachBounced bool       `json:"outreachBounced,omitempty"`
	OutreachSentAt  *time.Time `json:"outreachSentAt,omitempty"`
	ConvertedAt     *time.Time `json:"convertedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LeadFromInput builds a new, unsaved lead from scraper input. The caller is
// expected to have normalized the email already.
func LeadFromInput(in LeadInput) Lead {
	return Lead{
		Email:        in.Email,
		Name:         in.Name,
		BusinessName: in.BusinessName,
		Phone:        in.Phone,
		Website:      in.Website,
		Niche:        in.Niche,
		Industry:     in.Industry,
		State:        in.State,
		City:         in.City,
		Zip:          in.Zip,
		Source:       in.Source,
		SourceURL:    in.SourceURL,
		SourceDetail: in.SourceDetail,
		Status:       StatusNew,
	}
}

// LeadPatch is a field-level update. Nil fields are left untouched; the store
// always refreshes UpdatedAt when a patch is applied.
type LeadPatch struct {
	Status          *Status    `json:"status,omitempty"`
	EmailVerified   *bool      `json:"emailVerified,omitempty"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	WhoisEmail      *string    `json:"whoisEmail,omitempty"`
	OutreachBounced *bool      `json:"outreachBounced,omitempty"`
	OutreachSentAt  *time.Time `json:"outreachSentAt,omitempty"`
	ConvertedAt     *time.Time `json:"convertedAt,omitempty"`
}

// Apply copies the set fields of p onto l.
func (p LeadPatch) Apply(l *Lead) {
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.EmailVerified != nil {
		v := *p.EmailVerified
		l.EmailVerified = &v
	}
	if p.EmailVerifiedAt != nil {
		t := *p.EmailVerifiedAt
		l.EmailVerifiedAt = &t
	}
	if p.WhoisEmail != nil {
		l.WhoisEmail = *p.WhoisEmail
	}
	if p.OutreachBounced != nil {
		l.OutreachBounced = *p.OutreachBounced
	}
	if p.OutreachSentAt != nil {
		t := *p.OutreachSentAt
		l.OutreachSentAt = &t
	}
	if p.ConvertedAt != nil {
		t := *p.ConvertedAt
		l.ConvertedAt = &t
	}
}

// NormalizeEmail returns the dedup key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Operator is a back-office user allowed to call the operator API when IsDev is set.
type Operator struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	IsDev     bool      `json:"isDev"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

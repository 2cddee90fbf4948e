package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" Foo@Bar.com ", "foo@bar.com"},
		{"foo@bar.com", "foo@bar.com"},
		{"\tMIXED@Case.ORG\n", "mixed@case.org"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEmail(tt.in), "input %q", tt.in)
	}
}

func TestValidSourceAndStatus(t *testing.T) {
	for _, s := range Sources {
		assert.True(t, ValidSource(s), string(s))
	}
	assert.False(t, ValidSource("yelp"))
	assert.False(t, ValidSource(""))

	for _, s := range Statuses {
		assert.True(t, ValidStatus(s), string(s))
	}
	assert.False(t, ValidStatus("archived"))
}

func TestLeadFromInput(t *testing.T) {
	in := LeadInput{
		Email:        "owner@acme.com",
		BusinessName: "Acme Plumbing",
		Source:       SourceAngi,
		State:        "UT",
		SourceDetail: "page 3",
	}
	l := LeadFromInput(in)

	assert.Equal(t, StatusNew, l.Status)
	assert.Equal(t, "owner@acme.com", l.Email)
	assert.Equal(t, "Acme Plumbing", l.BusinessName)
	assert.Equal(t, SourceAngi, l.Source)
	assert.Equal(t, "UT", l.State)
	assert.Empty(t, l.ID)
	assert.Nil(t, l.EmailVerified)
}

func TestLeadPatch_Apply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := Lead{Status: StatusNew, WhoisEmail: "old@x.com"}

	LeadPatch{
		Status:          Ptr(StatusBounced),
		OutreachBounced: Ptr(true),
		EmailVerified:   Ptr(false),
		EmailVerifiedAt: &now,
	}.Apply(&l)

	assert.Equal(t, StatusBounced, l.Status)
	assert.True(t, l.OutreachBounced)
	require.NotNil(t, l.EmailVerified)
	assert.False(t, *l.EmailVerified)
	assert.Equal(t, now, *l.EmailVerifiedAt)
	assert.Equal(t, "old@x.com", l.WhoisEmail, "unset fields are untouched")
	assert.Nil(t, l.ConvertedAt)
}

func TestLeadInput_JSONWireNames(t *testing.T) {
	raw := `{"email":"a@b.com","businessName":"B","sourceUrl":"https://x","sourceDetail":"d","source":"bbb"}`
	var in LeadInput
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	assert.Equal(t, "B", in.BusinessName)
	assert.Equal(t, "https://x", in.SourceURL)
	assert.Equal(t, "d", in.SourceDetail)
	assert.Equal(t, SourceBBB, in.Source)
}

package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the store and the service.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, clock *testClock) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	s.SetClock(clock.Now)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestService(t *testing.T, opts ...Option) (*Service, store.Store, *testClock) {
	t.Helper()
	clock := &testClock{t: epoch}
	st := newTestStore(t, clock)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(st, opts...), st, clock
}

func rawLeads(t *testing.T, entries ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		out[i] = b
	}
	return out
}

// seed inserts one lead per call, advancing the clock a minute each time so
// createdAt follows argument order.
func seed(t *testing.T, st store.Store, clock *testClock, leads ...model.Lead) []model.Lead {
	t.Helper()
	var out []model.Lead
	for _, l := range leads {
		clock.Advance(time.Minute)
		saved, err := st.InsertLeads(context.Background(), []model.Lead{l})
		require.NoError(t, err)
		out = append(out, saved...)
	}
	return out
}

func newLead(email string, src model.Source) model.Lead {
	return model.LeadFromInput(model.LeadInput{Email: email, Source: src})
}

func manyLeads(n int, src model.Source) []model.Lead {
	out := make([]model.Lead, n)
	for i := range out {
		out[i] = newLead(fmt.Sprintf("lead%03d@example.com", i), src)
	}
	return out
}

// flakyStore fails selected operations and counts calls.
type flakyStore struct {
	store.Store
	insertErr   error
	findCalls   int
	updateFails map[string]bool
}

func (f *flakyStore) InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return f.Store.InsertLeads(ctx, leads)
}

func (f *flakyStore) FindExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	f.findCalls++
	return f.Store.FindExistingEmails(ctx, emails)
}

func (f *flakyStore) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) error {
	if f.updateFails[id] {
		return fmt.Errorf("update %s: boom", id)
	}
	return f.Store.UpdateLead(ctx, id, patch)
}

// ABOUTME: Tests for the vector codec, busy detection and export writers
// ABOUTME: Exercises the helpers shared by all stores
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harper/interview-assistant/internal/models"
	"gopkg.in/yaml.v3"
)

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float64{0.5, -1.25, 3}
	blob := vectorToBlob(in)
	if len(blob) != 4+len(in)*4 {
		t.Fatalf("blob length = %d", len(blob))
	}
	out, err := blobToVector(blob)
	if err != nil {
		t.Fatalf("blobToVector() error = %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if vectorToBlob(nil) != nil {
		t.Error("nil vector should encode to nil")
	}
	if _, err := blobToVector(blob[:len(blob)-1]); err == nil {
		t.Error("truncated blob should fail")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{fmt.Errorf("wrapped: %w", errors.New("database table is locked")), true},
		{errors.New("UNIQUE constraint failed"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithRetryRetriesBusy(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	calls := 0
	err := WithRetry(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("WithRetry() = %v after %d calls, want nil after 3", err, calls)
	}

	calls = 0
	err = WithRetry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errors.New("syntax error")
	})
	if err == nil || calls != 1 {
		t.Errorf("non-transient error retried %d times", calls)
	}
}

// busyQuerier fails the first fails statements with a busy error
type busyQuerier struct {
	next  Querier
	fails int
	calls int
}

func (b *busyQuerier) busy() error {
	b.calls++
	if b.calls <= b.fails {
		return errors.New("database is locked (5) (SQLITE_BUSY)")
	}
	return nil
}

func (b *busyQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := b.busy(); err != nil {
		return nil, err
	}
	return b.next.ExecContext(ctx, query, args...)
}

func (b *busyQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := b.busy(); err != nil {
		return nil, err
	}
	return b.next.QueryContext(ctx, query, args...)
}

func (b *busyQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return b.next.QueryRowContext(ctx, query, args...)
}

func TestReposRetryBusyReads(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	seedArea(t, db, userID, "Career", nil)
	fast := RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

	busy := &busyQuerier{next: db.conn, fails: 2}
	areas, err := newRepos(retryQuerier{q: busy, policy: fast}).Areas.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(areas) != 1 || busy.calls != 3 {
		t.Errorf("ListByUser() = %d areas after %d calls, want 1 after 3", len(areas), busy.calls)
	}

	busy = &busyQuerier{next: db.conn, fails: 5}
	_, err = newRepos(retryQuerier{q: busy, policy: fast}).Areas.ListByUser(ctx, userID)
	if !IsTransient(err) || busy.calls != 3 {
		t.Errorf("exhausted retries: err = %v after %d calls, want busy error after 3", err, busy.calls)
	}

	busy = &busyQuerier{next: db.conn, fails: 1}
	if err := newRepos(retryQuerier{q: busy, policy: fast}).Users.SetMode(ctx, userID, models.ModeManageAreas); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	user, err := db.Repos().Users.GetByID(ctx, userID)
	if err != nil || user == nil {
		t.Fatalf("GetByID() = %v, %v", user, err)
	}
	if user.Mode != models.ModeManageAreas {
		t.Errorf("Mode = %s, want %s", user.Mode, models.ModeManageAreas)
	}
}

func TestFileLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	a, err := NewFileLock(path)
	if err != nil {
		t.Fatalf("NewFileLock() error = %v", err)
	}
	defer func() { _ = a.Close() }()
	b, err := NewFileLock(path)
	if err != nil {
		t.Fatalf("NewFileLock() error = %v", err)
	}
	defer func() { _ = b.Close() }()

	if err := a.Lock(); err != nil {
		t.Fatalf("a.Lock() error = %v", err)
	}
	acquired := make(chan struct{})
	go func() {
		_ = b.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("b acquired the lock while a held it")
	case <-time.After(50 * time.Millisecond):
	}

	if err := a.Unlock(); err != nil {
		t.Fatalf("a.Unlock() error = %v", err)
	}
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("b never acquired the lock")
	}
	_ = b.Unlock()
}

func TestExport(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	root := seedArea(t, db, userID, "Career", nil)
	leaf := seedArea(t, db, userID, "First job", &root)
	r := db.Repos()
	_ = r.Summaries.Create(ctx, &models.Summary{AreaID: leaf, SummaryText: "Started as a baker"})
	_ = r.Knowledge.Create(ctx, &models.UserKnowledge{UserID: userID, Description: "Baking", Kind: models.KnowledgeSkill, Confidence: 0.8})

	data, err := db.Export(ctx, userID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(data.Areas) != 2 || data.Areas[1].Path != "Career > First job" {
		t.Fatalf("areas = %+v", data.Areas)
	}
	if len(data.Areas[1].Summaries) != 1 {
		t.Errorf("leaf summaries = %d", len(data.Areas[1].Summaries))
	}

	var buf bytes.Buffer
	if err := WriteYAML(&buf, data); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}
	var decoded ExportData
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if decoded.User.ID != userID.String() || len(decoded.Knowledge) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}

	buf.Reset()
	if err := WriteMarkdown(&buf, data); err != nil {
		t.Fatalf("WriteMarkdown() error = %v", err)
	}
	md := buf.String()
	for _, want := range []string{"### Career > First job", "- Started as a baker", "| skill | Baking | 0.80 |"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

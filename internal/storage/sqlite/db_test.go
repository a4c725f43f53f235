// ABOUTME: Tests for SQLite database connection, migrations and transactions
// ABOUTME: Verifies schema creation, rollback, file locking and concurrent writers
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := db.Repos().Users.Create(context.Background(), &models.User{ID: id, Name: "tester"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func seedArea(t *testing.T, db *DB, userID uuid.UUID, title string, parent *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	area := &models.LifeArea{ID: id, Title: title, ParentID: parent, UserID: userID}
	if err := db.Repos().Areas.Create(context.Background(), area); err != nil {
		t.Fatalf("create area %s: %v", title, err)
	}
	return id
}

func TestOpenInMemory(t *testing.T) {
	db := newTestDB(t)

	if db.Path() != ":memory:" {
		t.Errorf("Path() = %v, want :memory:", db.Path())
	}
	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", v, SchemaVersion)
	}
}

func TestSchemaInitialization(t *testing.T) {
	db := newTestDB(t)

	tables := []string{
		"users", "life_areas", "histories", "leaf_history", "summaries",
		"user_knowledge", "leaf_coverage", "active_interview_context", "api_keys", "schema_version",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s does not exist: %v", table, err)
		}
	}

	var one int
	err := db.QueryRowContext(context.Background(),
		`SELECT 1 FROM pragma_table_info('life_areas') WHERE name = 'covered_at'`).Scan(&one)
	if err != nil {
		t.Errorf("life_areas.covered_at missing: %v", err)
	}
}

func TestIndexesExist(t *testing.T) {
	db := newTestDB(t)

	indexes := []string{
		"idx_life_areas_user",
		"idx_life_areas_parent",
		"idx_histories_user_ts",
		"idx_summaries_area",
		"idx_knowledge_user",
		"idx_coverage_root",
		"idx_coverage_one_active",
		"idx_api_keys_user",
	}
	for _, idx := range indexes {
		var name string
		err := db.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&name)
		if err != nil {
			t.Errorf("Index %s does not exist: %v", idx, err)
		}
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	db := newTestDB(t)

	var fkEnabled int
	if err := db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("Failed to check foreign_keys pragma: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("Foreign keys are not enabled")
	}
}

func TestOpenCreatesDirectoryAndLockFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "interview.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if _, err := os.Stat(dbPath + ".lock"); os.IsNotExist(err) {
		t.Error("Lock file was not created")
	}
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "interview.db")

	first, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = first.Close()

	second, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer func() { _ = second.Close() }()

	var rows int
	if err := second.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM schema_version").Scan(&rows); err != nil {
		t.Fatalf("count schema_version: %v", err)
	}
	if rows != len(migrations) {
		t.Errorf("schema_version rows = %d, want %d", rows, len(migrations))
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := uuid.New()
	boom := errors.New("boom")

	err := db.Transaction(ctx, func(r *Repos) error {
		if err := r.Users.Create(ctx, &models.User{ID: userID, Name: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction() error = %v, want boom", err)
	}

	user, err := db.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if user != nil {
		t.Error("user should not exist after rollback")
	}
}

func TestConcurrentWritersAcrossHandles(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "interview.db")
	ctx := context.Background()

	a, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}
	defer func() { _ = a.Close() }()
	b, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}
	defer func() { _ = b.Close() }()

	userID := uuid.New()
	if err := a.Repos().Users.Create(ctx, &models.User{ID: userID, Name: "writer"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	const perHandle = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*perHandle)
	for _, db := range []*DB{a, b} {
		for i := 0; i < perHandle; i++ {
			wg.Add(1)
			go func(db *DB) {
				defer wg.Done()
				errs <- db.Transaction(ctx, func(r *Repos) error {
					return r.Histories.Create(ctx, &models.History{
						UserID:  userID,
						Message: models.HumanMessage("hello"),
					})
				})
			}(db)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write failed: %v", err)
		}
	}

	all, err := b.Repos().Histories.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(all) != 2*perHandle {
		t.Errorf("got %d histories, want %d", len(all), 2*perHandle)
	}
}

func TestCloseMultipleTimes(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("First Close() error = %v", err)
	}
	_ = db.Close()
}

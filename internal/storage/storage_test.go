package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"

	logx "newsbot/pkg/logx"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.LastRequest(ctx, "42"); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v", ok, err)
	}

	// microsecond precision: postgres timestamps drop nanoseconds
	first := time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.UTC)
	if err := s.PutLastRequest(ctx, "42", first); err != nil {
		t.Fatalf("put: %v", err)
	}
	second := first.Add(25 * time.Hour)
	if err := s.PutLastRequest(ctx, "42", second); err != nil {
		t.Fatalf("put again: %v", err)
	}

	got, ok, err := s.LastRequest(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !got.Equal(second) {
		t.Fatalf("last request = %v, want %v", got, second)
	}
	if _, ok, _ := s.LastRequest(ctx, "43"); ok {
		t.Fatal("other user should be unknown")
	}
}

// TestStoreContract runs the same ledger contract against every driver.
// postgres needs STORAGE_TEST_POSTGRES_DSN and is skipped otherwise.
func TestStoreContract(t *testing.T) {
	drivers := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemory() }},
		{"sqlite", func(t *testing.T) Store {
			return mustOpen(t, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "users.db")})
		}},
		{"file", func(t *testing.T) Store {
			return mustOpen(t, Config{Driver: "file", Path: filepath.Join(t.TempDir(), "ledger.json")})
		}},
		{"redis", func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			return mustOpen(t, Config{Driver: "redis", DSN: "redis://" + mr.Addr()})
		}},
		{"postgres", func(t *testing.T) Store {
			dsn := os.Getenv("STORAGE_TEST_POSTGRES_DSN")
			if dsn == "" {
				t.Skip("STORAGE_TEST_POSTGRES_DSN not set")
			}
			s := mustOpen(t, Config{Driver: "postgres", DSN: dsn})
			db := s.(*postgresStore).db
			if err := db.Where("user_id IN ?", []string{"42", "43"}).Delete(&CooldownRecord{}).Error; err != nil {
				t.Fatalf("reset rows: %v", err)
			}
			return s
		}},
	}
	for _, d := range drivers {
		t.Run(d.name, func(t *testing.T) {
			s := d.open(t)
			defer s.Close()
			exerciseStore(t, s)
		})
	}
}

func mustOpen(t *testing.T, cfg Config) Store {
	t.Helper()
	s, err := Open(cfg, nilLogger())
	if err != nil {
		t.Fatalf("open %s: %v", cfg.Driver, err)
	}
	return s
}

func TestRedisStoreKeyHasNoExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newRedisStore(client, "bot:")
	defer s.Close()

	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	if err := s.PutLastRequest(ctx, "42", at); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := mr.Get("bot:cooldown:42")
	if err != nil {
		t.Fatalf("key missing: %v (keys %v)", err, mr.Keys())
	}
	if raw != encodeTime(at) {
		t.Fatalf("stored %q, want %q", raw, encodeTime(at))
	}
	if ttl := mr.TTL("bot:cooldown:42"); ttl != 0 {
		t.Fatalf("ttl = %v, want none", ttl)
	}

	// a corrupt value is an error, not a missing user
	mr.Set("bot:cooldown:7", "yesterday")
	if _, ok, err := s.LastRequest(ctx, "7"); err == nil || ok {
		t.Fatalf("corrupt value: ok=%v err=%v", ok, err)
	}
}

func TestOpenRedisDefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s := mustOpen(t, Config{Driver: "redis", DSN: "redis://" + mr.Addr()})
	defer s.Close()
	if err := s.PutLastRequest(context.Background(), "42", time.Now()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists(defaultKeyPrefix + "cooldown:42") {
		t.Fatalf("keys = %v", mr.Keys())
	}
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	addr := mr.Addr()
	mr.Close()
	if _, err := Open(Config{Driver: "redis", DSN: "redis://" + addr}, nilLogger()); err == nil {
		t.Fatal("open against a stopped server should fail")
	}
}

func TestPostgresMigrateFailureClosesPool(t *testing.T) {
	// A sqlite connection behind the postgres dialect cannot answer the
	// information_schema lookup, so AutoMigrate tries CREATE TABLE on an
	// existing table and fails.
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "not-postgres.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`CREATE TABLE users (user_id TEXT PRIMARY KEY)`); err != nil {
		t.Fatal(err)
	}

	if _, err := newPostgresStore(postgres.New(postgres.Config{Conn: conn})); err == nil {
		t.Fatal("migration against a non-postgres connection should fail")
	}
	if err := conn.Ping(); err == nil {
		t.Fatal("pool left open after failed migration")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	exerciseStore(t, s)
	_ = s.Close()
	if _, _, err := s.LastRequest(context.Background(), "42"); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed store err = %v", err)
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "users.db")
	s, err := Open(Config{Driver: "sqlite", Path: path}, nilLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(Config{Driver: "sqlite", Path: path}, nilLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, ok, err := reopened.LastRequest(context.Background(), "42"); err != nil || !ok {
		t.Fatalf("record lost across reopen: ok=%v err=%v", ok, err)
	}
}

func TestFileStoreReplaysJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, err := Open(Config{Driver: "file", Path: path}, nilLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, s)

	// Reopen without Close: only the journal is on disk.
	fs := s.(*fileStore)
	want := fs.last["42"]
	again, err := openFile(Config{Path: path}, nilLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := again.(*fileStore).last["42"]; got != want {
		t.Fatalf("replayed %q, want %q", got, want)
	}
	_ = again.Close()
	_ = s.Close()
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	for _, d := range []string{"", "none", "mongo"} {
		if _, err := Open(Config{Driver: d}, nilLogger()); !errors.Is(err, ErrUnknownDriver) {
			t.Fatalf("driver %q: err = %v", d, err)
		}
	}
}

func nilLogger() logx.Logger { return logx.Nop() }

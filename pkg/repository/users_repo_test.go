package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{
		Host:     "db.internal",
		Port:     5432,
		User:     "idm",
		Password: "secret",
		DBName:   "profiles",
		SSLMode:  "require",
	}

	want := "host=db.internal port=5432 user=idm password=secret dbname=profiles sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"00001_identity.sql", "00002_profiles.sql", "00003_sessions.sql"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing migration %s in %v", want, names)
		}
	}

	profiles, err := fs.ReadFile(migrations, "migrations/00002_profiles.sql")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(profiles), "profiles_username_key") {
		t.Error("profiles migration should declare the unique username index")
	}
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}

	if err := Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if gotDir != "migrations" {
		t.Errorf("dir = %q, want %q", gotDir, "migrations")
	}
}

func TestMigrate_WrapsError(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()

	boom := errors.New("boom")
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return boom
	}

	err := Migrate(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Errorf("Migrate error = %v, want wrapped %v", err, boom)
	}
}

func TestNullableJSON(t *testing.T) {
	if nullableJSON(nil) != nil {
		t.Error("empty metadata should be NULL")
	}
	if got := nullableJSON([]byte(`{"ip":"1.2.3.4"}`)); got != `{"ip":"1.2.3.4"}` {
		t.Errorf("nullableJSON() = %v", got)
	}
}

func TestRepositories_Construct(t *testing.T) {
	if NewUsersRepository(nil) == nil {
		t.Fatal("NewUsersRepository should not return nil")
	}
	if NewCredentialsRepository(nil) == nil {
		t.Fatal("NewCredentialsRepository should not return nil")
	}
	if NewProfilesRepository(nil) == nil {
		t.Fatal("NewProfilesRepository should not return nil")
	}
	if NewSessionsRepository(nil) == nil {
		t.Fatal("NewSessionsRepository should not return nil")
	}

	// Method calls need a live Postgres; covered by integration environments.
}

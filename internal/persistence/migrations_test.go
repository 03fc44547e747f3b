package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestListMigrations_SortedSQLOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := listMigrations(dir)
	if err != nil {
		t.Fatalf("listMigrations: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "001_a.sql" || filepath.Base(files[1]) != "002_b.sql" {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestListMigrations_RepositoryMigrations(t *testing.T) {
	files, err := listMigrations(filepath.Join("..", "..", DefaultMigrationsDir))
	if err != nil {
		t.Fatalf("listMigrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected at least one migration")
	}
}

func TestRunMigrations_NoPoolIsNoop(t *testing.T) {
	if err := RunMigrations(context.Background(), nil, "does-not-exist", zap.NewNop()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
}

func TestUnconfiguredDependencies(t *testing.T) {
	var pg *Postgres
	if err := pg.Ping(context.Background()); err != ErrNotConfigured {
		t.Fatalf("postgres: expected ErrNotConfigured, got %v", err)
	}
	r := &Redis{}
	if err := r.Ping(context.Background()); err != ErrNotConfigured {
		t.Fatalf("redis: expected ErrNotConfigured, got %v", err)
	}
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestMigrationFilesArePairedAndSequential(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	ups, err := migrationFiles(migrationsDir)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no up migrations discovered")
	}

	for i, up := range ups {
		stem := strings.TrimSuffix(filepath.Base(up), ".up.sql")
		prefix, _, found := strings.Cut(stem, "_")
		if !found {
			t.Fatalf("migration %s lacks a numeric prefix", stem)
		}
		n, err := strconv.Atoi(prefix)
		if err != nil {
			t.Fatalf("migration %s prefix is not numeric: %v", stem, err)
		}
		if n != i+1 {
			t.Fatalf("migration versions must be contiguous: got %d at position %d", n, i+1)
		}

		contents, err := os.ReadFile(up)
		if err != nil {
			t.Fatalf("read %s: %v", up, err)
		}
		if len(strings.TrimSpace(string(contents))) == 0 {
			t.Fatalf("migration %s is empty", stem)
		}

		down := filepath.Join(migrationsDir, stem+".down.sql")
		if _, err := os.Stat(down); err != nil {
			t.Fatalf("migration %s has no down counterpart: %v", stem, err)
		}
	}
}

func TestApplyMigrationsRejectsEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not sql"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	err := ApplyMigrations(context.Background(), nil, dir)
	if err == nil {
		t.Fatal("expected error for directory without migrations")
	}
	if want := fmt.Sprintf("no migrations found in %s", dir); err.Error() != want {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyMigrationsReportsMissingDir(t *testing.T) {
	err := ApplyMigrations(context.Background(), nil, filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected error for missing migrations dir")
	}
	if !strings.Contains(err.Error(), "read migrations dir") {
		t.Fatalf("unexpected error: %v", err)
	}
}

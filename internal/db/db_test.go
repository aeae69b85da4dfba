package db

import (
	"os"
	"regexp"
	"testing"

	"github.com/thinkstack/apiserver/config"
)

func TestDriverName(t *testing.T) {
	tests := map[string]string{
		"":         "postgres",
		"postgres": "postgres",
		"pq":       "postgres",
		"pgx":      "pgx",
	}
	for in, want := range tests {
		got, err := DriverName(in)
		if err != nil {
			t.Fatalf("DriverName(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("DriverName(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := DriverName("mysql"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "thinkstack",
		Password: "p@ss",
		DBName:   "thinkstack",
	}
	want := "postgres://thinkstack:p%40ss@db:5432/thinkstack?sslmode=disable"
	if got := DSN(cfg); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}

	cfg.UseSSL = true
	want = "postgres://thinkstack:p%40ss@db:5432/thinkstack?sslmode=require"
	if got := DSN(cfg); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}

func TestScoreColumnsAreBigint(t *testing.T) {
	raw, err := os.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	columns := regexp.MustCompile(`(?m)^\s*score\s+(\w+)`).FindAllStringSubmatch(string(raw), -1)
	if len(columns) != 2 {
		t.Fatalf("expected score columns on solutions and leaderboard_entries, found %d", len(columns))
	}
	for _, column := range columns {
		if column[1] != "BIGINT" {
			t.Fatalf("score column declared as %s", column[1])
		}
	}
}

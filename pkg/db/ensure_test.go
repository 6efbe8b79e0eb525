package db

import (
	"context"
	"net/url"
	"testing"
)

const ensureTestPrefix = "db:ensure_test"

func TestWithDatabase(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		dbName  string
		want    string
		wantErr bool
	}{
		{"swaps path", "postgres://cad:pw@db.local:5432/cadastro?sslmode=disable", "cadastro_test",
			"postgres://cad:pw@db.local:5432/cadastro_test?sslmode=disable", false},
		{"adds path", "postgres://localhost:5432", "cadastro", "postgres://localhost:5432/cadastro", false},
		{"rejects quote", "postgres://localhost/cadastro", `x"y`, "", true},
		{"rejects hyphen", "postgres://localhost/cadastro", "cadastro-test", "", true},
		{"bad base", "://nope", "cadastro", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithDatabase(tt.base, tt.dbName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s - WithDatabase err = %v, wantErr %t", ensureTestPrefix, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("%s - WithDatabase = %q, want %q", ensureTestPrefix, got, tt.want)
			}
		})
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"postgres://localhost:5432/cadastro?sslmode=disable", "cadastro", false},
		{"postgres://localhost:5432/cadastro_test", "cadastro_test", false},
		{"postgres://localhost:5432/", "", true},
		{"postgres://localhost:5432/my-db", "", true},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatalf("%s - parse %q: %v", ensureTestPrefix, tt.raw, err)
		}
		got, err := databaseName(u)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("%s - databaseName(%q) = %q, %v", ensureTestPrefix, tt.raw, got, err)
		}
	}
}

func TestEnsureDatabase_RejectsBeforeConnecting(t *testing.T) {
	for _, raw := range []string{"://invalid", "postgres://localhost:5432/?sslmode=disable", "postgres://localhost:5432/my-db"} {
		if err := EnsureDatabase(context.Background(), raw); err == nil {
			t.Errorf("%s - EnsureDatabase(%q) should fail", ensureTestPrefix, raw)
		}
	}
}

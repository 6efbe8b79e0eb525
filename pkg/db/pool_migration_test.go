package db

import (
	"context"
	"testing"
)

const poolMigrationTestPrefix = "db:pool_migration_test"

func TestMigrationDown_NilPool(t *testing.T) {
	if err := MigrationDown(context.Background(), nil, ""); err == nil {
		t.Errorf("%s - MigrationDown(nil) should fail", poolMigrationTestPrefix)
	}
}

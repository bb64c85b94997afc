package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/dbtest"
)

func TestVerifySchemaAfterMigrations(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, verifySchema(conn))

	require.NoError(t, conn.Migrator().DropTable("stock_holds"))
	require.NoError(t, conn.Migrator().DropTable("outbox_dlq"))
	err := verifySchema(conn)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Contains(t, err.Error(), "stock_holds")
}

func TestApplyRefusesMalformedDirectory(t *testing.T) {
	dir := t.TempDir()
	bad := "-- +goose Down\nDROP TABLE sales;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20261001090000_broken.sql"), []byte(bad), 0o644))

	err := apply(context.Background(), nil, "sqlite3", options{cmd: "up", dir: dir})
	require.ErrorContains(t, err, "invalid migrations")
}

func TestRunValidatesWithoutDatabase(t *testing.T) {
	require.NoError(t, run(context.Background(), options{cmd: "validate", dir: dbtest.MigrationsDir()}))
	require.Error(t, run(context.Background(), options{cmd: "create", dir: t.TempDir()}))
}

func TestApplyRejectsUnknownCommand(t *testing.T) {
	err := apply(context.Background(), nil, "sqlite3", options{cmd: "redo", dir: dbtest.MigrationsDir()})
	require.ErrorContains(t, err, "unknown -cmd")
}

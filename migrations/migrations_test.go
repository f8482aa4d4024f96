package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	names, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	for _, up := range names {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestSourceVersionsAreSequential(t *testing.T) {
	src, err := iofs.New(FS, ".")
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	count := 1
	for {
		next, err := src.Next(version)
		if err != nil {
			break
		}
		assert.Equal(t, version+1, next)
		version = next
		count++
	}
	assert.Equal(t, 4, count)
}

func TestSchemaCoversQuotationTables(t *testing.T) {
	var all strings.Builder
	names, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	for _, name := range names {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		all.Write(data)
	}
	for _, table := range []string{
		"users", "sessions", "roles", "permissions", "user_roles", "role_permissions",
		"products", "document_sequences", "quotations", "quotation_items",
		"quotation_activities", "quotation_attachments", "notifications", "idempotency_keys",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

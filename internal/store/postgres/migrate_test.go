package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationVersions(t *testing.T) {
	t.Parallel()

	versions, err := migrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "001_init.up.sql", versions[0])
	assert.IsNonDecreasing(t, versions)
}

func TestInitMigration_DefersPositionUniqueness(t *testing.T) {
	t.Parallel()

	contents, err := migrationFS.ReadFile("migrations/001_init.up.sql")
	require.NoError(t, err)

	sql := string(contents)
	for _, table := range []string{"boards", "board_members", "columns", "cards"} {
		assert.Contains(t, sql, "CREATE TABLE "+table+" ")
	}
	assert.Equal(t, 2, strings.Count(sql, "DEFERRABLE INITIALLY DEFERRED"))
}

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://desk:pw@db:5432/tradedesk?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "tradedesk", User: "desk", Password: "pw"}))
	assert.Equal(t, "postgres://desk:pw@db:6543/tradedesk?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "tradedesk", User: "desk", Password: "pw", SSLMode: "require"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])

	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	for _, table := range []string{"trades", "orders", "audit_log"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, maxListLimit, clampLimit(5000))
}

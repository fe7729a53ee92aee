// pkg/extract/extractor_test.go
package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBatchQuery(t *testing.T) {
	query := buildBatchQuery("pgx", "users", "", 500, 0)
	assert.Equal(t, `SELECT * FROM "users" LIMIT 500 OFFSET 0`, query)
}

func TestBuildBatchQueryWithFilter(t *testing.T) {
	query := buildBatchQuery("pgx", "users", `"updated_at" > '2024-01-01'`, 100, 200)
	assert.Equal(t, `SELECT * FROM "users" WHERE "updated_at" > '2024-01-01' LIMIT 100 OFFSET 200`, query)
}

func TestBuildBatchQueryQuotesTableName(t *testing.T) {
	query := buildBatchQuery("pgx", `or"ders`, "", 50, 0)
	assert.Equal(t, `SELECT * FROM "or""ders" LIMIT 50 OFFSET 0`, query)
}

func TestBuildBatchQuerySnowflakeLeavesNameUnquoted(t *testing.T) {
	// Quoting would pin the identifier's case; Snowflake resolves unquoted
	// names case-insensitively.
	query := buildBatchQuery("snowflake", "users", "", 500, 0)
	assert.Equal(t, `SELECT * FROM users LIMIT 500 OFFSET 0`, query)
}

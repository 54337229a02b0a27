package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaDefinesTables(t *testing.T) {
	for _, table := range []string{
		"CREATE TABLE IF NOT EXISTS cases",
		"CREATE TABLE IF NOT EXISTS case_attachments",
		"CREATE TABLE IF NOT EXISTS case_status_history",
		"CREATE TABLE IF NOT EXISTS payment_proofs",
		"CREATE TABLE IF NOT EXISTS case_number_counters",
	} {
		assert.Contains(t, schemaSQL, table)
	}
	assert.Contains(t, schemaSQL, "UNIQUE (case_id, sequence)")
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/canvaspipe/internal/ir"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	busy := classify("op", sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.True(t, ir.IsTransient(busy))
	assert.True(t, ir.Retryable(busy))

	locked := classify("op", fmt.Errorf("wrapped: %w", sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.True(t, ir.IsTransient(locked))

	other := classify("op", errors.New("disk on fire"))
	assert.False(t, ir.IsTransient(other))
	assert.Contains(t, other.Error(), "op: disk on fire")

	assert.True(t, isNoRows(fmt.Errorf("x: %w", sql.ErrNoRows)))
}

package domain

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTradeID_Deterministic(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a, b := NewTradeID(ts), NewTradeID(ts)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewTradeID(ts.Add(time.Minute)))

	parsed, err := ulid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, ts.UnixMilli(), int64(parsed.Time()))
}

func TestNewRunID_Unique(t *testing.T) {
	assert.NotEqual(t, NewRunID(), NewRunID())
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCandle_Validate(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		candle  Candle
		wantErr bool
	}{
		{"valid bar", Candle{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10}, false},
		{"zero volume allowed", Candle{Timestamp: ts, Open: 100, High: 100, Low: 100, Close: 100}, false},
		{"non-positive price", Candle{Timestamp: ts, Open: 0, High: 101, Low: 99, Close: 100}, true},
		{"high below close", Candle{Timestamp: ts, Open: 100, High: 100.2, Low: 99, Close: 100.5}, true},
		{"low above open", Candle{Timestamp: ts, Open: 99, High: 101, Low: 99.5, Close: 100}, true},
		{"negative volume", Candle{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candle.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSeries_RequiresIncreasingTimestamps(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}

	a, b := bar, bar
	a.Timestamp = ts
	b.Timestamp = ts.Add(time.Minute)
	assert.NoError(t, ValidateSeries([]Candle{a, b}))

	b.Timestamp = ts
	assert.Error(t, ValidateSeries([]Candle{a, b}))
}

func TestTrade_ValidateLevels(t *testing.T) {
	long := Trade{ID: "a", Direction: DirectionLong, EntryPrice: 100, StopLoss: 99, TakeProfit: 102}
	assert.NoError(t, long.ValidateLevels())

	short := Trade{ID: "b", Direction: DirectionShort, EntryPrice: 100, StopLoss: 101, TakeProfit: 98}
	assert.NoError(t, short.ValidateLevels())

	bad := Trade{ID: "c", Direction: DirectionShort, EntryPrice: 100, StopLoss: 99, TakeProfit: 102}
	assert.Error(t, bad.ValidateLevels())

	none := Trade{ID: "d", Direction: DirectionUnknown, EntryPrice: 100}
	assert.Error(t, none.ValidateLevels())
}

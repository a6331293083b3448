package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridBacktester/internal/adapters/logger"
	"hybridBacktester/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newManager() *RiskManager {
	return NewRiskManager(RiskConfig{
		TakeProfitPercent: 0.02,
		StopLossPercent:   0.01,
		MaxPositionSize:   0.1,
		RiskPerTrade:      0.02,
	}, logger.Nop())
}

func TestRiskManager_SignalQuality(t *testing.T) {
	tests := []struct {
		name string
		sig  domain.Signal
		want float64
	}{
		{
			name: "strength and confidence only",
			sig:  domain.Signal{Strength: 0.5, Confidence: 0.5},
			want: 0.35,
		},
		{
			name: "strong volume confirmation",
			sig:  domain.Signal{Strength: 0.5, Confidence: 0.5, Metadata: domain.Metadata{"volume_ratio": 2.5}},
			want: 0.55,
		},
		{
			name: "moderate volume confirmation and momentum",
			sig:  domain.Signal{Strength: 0.5, Confidence: 0.5, Metadata: domain.Metadata{"volume_ratio": 1.6, "momentum": -0.02}},
			want: 0.55,
		},
		{
			name: "capped at one",
			sig:  domain.Signal{Strength: 1, Confidence: 1, Metadata: domain.Metadata{"volume_ratio": 3, "momentum": 0.05}},
			want: 1,
		},
	}
	m := newManager()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.SignalQuality(tt.sig), 1e-9)
		})
	}
}

func TestRiskManager_FilterSignals(t *testing.T) {
	meta := domain.Metadata{"volume_ratio": 2.5}
	signals := []domain.Signal{
		{Timestamp: t0, Direction: domain.DirectionLong, Strength: 0.8, Confidence: 0.8, Metadata: meta},
		{Timestamp: t0.Add(time.Minute), Direction: domain.DirectionLong, Strength: 0.25, Confidence: 0.9},
		{Timestamp: t0.Add(2 * time.Minute), Direction: domain.DirectionShort, Strength: 0.9, Confidence: 0.1},
		{Timestamp: t0.Add(3 * time.Minute), Direction: domain.DirectionShort, Strength: 0.4, Confidence: 0.3},
	}

	out := newManager().FilterSignals(context.Background(), signals)

	// second fails strength, third fails confidence; the last scores 0.25 quality
	require.Len(t, out, 1)
	assert.Equal(t, t0, out[0].Timestamp)
	assert.InDelta(t, 0.76, out[0].Quality, 1e-9)
	assert.Equal(t, 0.02, out[0].Metadata["take_profit_pct"])
	assert.Equal(t, 0.01, out[0].Metadata["stop_loss_pct"])
	assert.Equal(t, 0.1, out[0].Metadata["max_position_size"])

	_, touched := meta["take_profit_pct"]
	assert.False(t, touched, "input metadata must not be modified")
}

func TestRiskManager_GetPositionSize(t *testing.T) {
	bar := func(high, low, close float64) domain.Candle {
		return domain.Candle{Timestamp: t0, Open: close, High: high, Low: low, Close: close}
	}
	tests := []struct {
		name    string
		quality float64
		candle  domain.Candle
		want    float64
	}{
		{"calm bar", 0.8, bar(100.5, 99.5, 100), 800},
		{"range over 2%", 0.8, bar(101.25, 98.75, 100), 640},
		{"range over 3%", 0.8, bar(101.75, 98.25, 100), 560},
		{"range over 5%", 0.8, bar(103, 97, 100), 400},
		{"clamped to one percent", 0.05, bar(100.5, 99.5, 100), 100},
		{"full quality hits max fraction", 1, bar(100.5, 99.5, 100), 1000},
	}
	m := newManager()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := domain.Signal{Quality: tt.quality}
			assert.InDelta(t, tt.want, m.GetPositionSize(context.Background(), s, tt.candle, 10000), 1e-9)
		})
	}
}

func TestRiskManager_GetPositionSizeNeverExceedsMaxFraction(t *testing.T) {
	m := NewRiskManager(RiskConfig{
		TakeProfitPercent: 0.02,
		StopLossPercent:   0.01,
		MaxPositionSize:   0.005,
		RiskPerTrade:      0.02,
	}, logger.Nop())
	calm := domain.Candle{Timestamp: t0, Open: 100, High: 100.5, Low: 99.5, Close: 100}

	for _, quality := range []float64{0.05, 0.5, 1} {
		size := m.GetPositionSize(context.Background(), domain.Signal{Quality: quality}, calm, 10000)
		assert.LessOrEqual(t, size, 50.0, "quality %v", quality)
		assert.Greater(t, size, 0.0)
	}
}

func TestRiskManager_CreateTrade(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	candle := domain.Candle{Timestamp: t0, Symbol: "BTCUSDT", Open: 99, High: 100.5, Low: 98.9, Close: 100}

	long := m.CreateTrade(ctx, domain.Signal{Direction: domain.DirectionLong, Quality: 0.5}, candle, 10000)
	require.NotNil(t, long)
	assert.Equal(t, 100.0, long.EntryPrice)
	assert.InDelta(t, 99.0, long.StopLoss, 1e-9)
	assert.InDelta(t, 102.0, long.TakeProfit, 1e-9)
	assert.Equal(t, domain.StatusOpen, long.Status)
	assert.Equal(t, "BTCUSDT", long.Symbol)
	assert.Equal(t, domain.NewTradeID(t0), long.ID)
	assert.NoError(t, long.ValidateLevels())

	short := m.CreateTrade(ctx, domain.Signal{Direction: domain.DirectionShort, Quality: 0.5}, candle, 10000)
	require.NotNil(t, short)
	assert.InDelta(t, 101.0, short.StopLoss, 1e-9)
	assert.InDelta(t, 98.0, short.TakeProfit, 1e-9)
	assert.NoError(t, short.ValidateLevels())

	assert.Nil(t, m.CreateTrade(ctx, domain.Signal{Direction: domain.DirectionUnknown, Quality: 0.5}, candle, 10000))
	assert.Nil(t, m.CreateTrade(ctx, domain.Signal{Direction: domain.DirectionLong, Quality: 0.5}, candle, 0))
}

func TestRiskManager_CheckExitConditions(t *testing.T) {
	long := &domain.Trade{Direction: domain.DirectionLong, EntryPrice: 100, StopLoss: 99, TakeProfit: 102, Status: domain.StatusOpen}
	short := &domain.Trade{Direction: domain.DirectionShort, EntryPrice: 100, StopLoss: 101, TakeProfit: 98, Status: domain.StatusOpen}

	tests := []struct {
		name       string
		trade      *domain.Trade
		close      float64
		wantExit   bool
		wantReason domain.ExitReason
		wantPrice  float64
	}{
		{"long target passed", long, 102.5, true, domain.ExitReasonTakeProfit, 102},
		{"long target touched", long, 102, true, domain.ExitReasonTakeProfit, 102},
		{"long stop passed", long, 98.5, true, domain.ExitReasonStopLoss, 99},
		{"long in range", long, 101, false, "", 0},
		{"short target passed", short, 97, true, domain.ExitReasonTakeProfit, 98},
		{"short stop touched", short, 101, true, domain.ExitReasonStopLoss, 101},
		{"short in range", short, 99.5, false, "", 0},
	}
	m := newManager()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := m.CheckExitConditions(context.Background(), tt.trade, domain.Candle{Close: tt.close})
			assert.Equal(t, tt.wantExit, ok)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantPrice, d.Price)
		})
	}

	closed := &domain.Trade{Direction: domain.DirectionLong, TakeProfit: 102, Status: domain.StatusClosed}
	_, ok := m.CheckExitConditions(context.Background(), closed, domain.Candle{Close: 110})
	assert.False(t, ok)
}

func TestRiskManager_TakeProfitScenario(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	entry := domain.Candle{Timestamp: t0, Open: 100, High: 100.4, Low: 99.8, Close: 100}
	trade := m.CreateTrade(ctx, domain.Signal{Direction: domain.DirectionLong, Quality: 0.6}, entry, 10000)
	require.NotNil(t, trade)

	next := domain.Candle{Timestamp: t0.Add(15 * time.Minute), Open: 100, High: 102.8, Low: 100, Close: 102.5}
	d, ok := m.CheckExitConditions(ctx, trade, next)
	require.True(t, ok)

	pnl := m.CloseTrade(ctx, trade, next.Timestamp, d)
	assert.Equal(t, domain.ExitReasonTakeProfit, trade.ExitReason)
	assert.InDelta(t, 102.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, trade.Size*0.02, pnl, 1e-9)
	assert.Equal(t, pnl, trade.PNL)
	assert.Equal(t, 15.0, trade.DurationMinutes())
	assert.False(t, trade.IsOpen())
}

func TestRiskManager_CalculatePNL(t *testing.T) {
	m := newManager()
	long := &domain.Trade{Direction: domain.DirectionLong, EntryPrice: 100, Size: 1000}
	short := &domain.Trade{Direction: domain.DirectionShort, EntryPrice: 100, Size: 1000}

	assert.InDelta(t, 10, m.CalculatePNL(long, 101), 1e-9)
	assert.InDelta(t, -10, m.CalculatePNL(long, 99), 1e-9)
	assert.InDelta(t, 10, m.CalculatePNL(short, 99), 1e-9)
	assert.InDelta(t, -20, m.CalculatePNL(short, 102), 1e-9)
}

func TestRiskManager_RiskMetrics(t *testing.T) {
	m := newManager()
	assert.Equal(t, RiskStats{}, m.RiskMetrics(nil))

	stats := m.RiskMetrics([]*domain.Trade{
		{Size: 500, Quality: 0.6, ExitReason: domain.ExitReasonTakeProfit},
		{Size: 1000, Quality: 0.8, ExitReason: domain.ExitReasonStopLoss},
		{Size: 600, Quality: 0.4, ExitReason: domain.ExitReasonEndOfData},
	})
	assert.InDelta(t, 2100, stats.TotalExposure, 1e-9)
	assert.InDelta(t, 700, stats.AvgPositionSize, 1e-9)
	assert.Equal(t, 1000.0, stats.MaxPositionSize)
	assert.InDelta(t, 10, stats.MaxRiskAmount, 1e-9)
	assert.InDelta(t, 0.6, stats.AvgQuality, 1e-9)
	assert.Equal(t, 1, stats.TakeProfitExits)
	assert.Equal(t, 1, stats.StopLossExits)
	assert.Equal(t, 1, stats.EndOfDataExits)
}

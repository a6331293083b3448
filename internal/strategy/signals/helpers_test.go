package signals

import (
	"time"

	"hybridBacktester/internal/domain"
)

var baseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func flatCandle(i int, price, volume float64) domain.Candle {
	return domain.Candle{
		Timestamp: baseTime.Add(time.Duration(i) * time.Minute),
		Open:      price,
		High:      price + 0.5,
		Low:       price - 0.5,
		Close:     price,
		Volume:    volume,
	}
}

// scenarioCandles builds 25 one-minute bars: 20 quiet bars at 100, a 3% rally on
// triple volume at index 20, then four quiet bars at 103.
func scenarioCandles() []domain.Candle {
	candles := make([]domain.Candle, 0, 25)
	for i := 0; i < 20; i++ {
		candles = append(candles, flatCandle(i, 100, 1000))
	}
	candles = append(candles, domain.Candle{
		Timestamp: baseTime.Add(20 * time.Minute),
		Open:      100,
		High:      103.2,
		Low:       99.9,
		Close:     103,
		Volume:    3000,
	})
	for i := 21; i < 25; i++ {
		candles = append(candles, flatCandle(i, 103, 1000))
	}
	return candles
}

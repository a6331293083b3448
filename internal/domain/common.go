package domain

// Direction is the side a signal or trade points to.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionUnknown Direction = "unknown"
)

// IsLong reports whether the direction is long.
func (d Direction) IsLong() bool {
	return d == DirectionLong
}

// SignalSource identifies which detector produced a signal.
type SignalSource string

const (
	SourceVolume   SignalSource = "volume"
	SourcePrice    SignalSource = "price"
	SourceCombined SignalSource = "combined"
)

// TradeStatus represents the lifecycle state of a simulated trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// ExitReason indicates why a trade was closed.
type ExitReason string

const (
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonEndOfData  ExitReason = "end_of_data"
	ExitReasonUnknown    ExitReason = "unknown"
)

// SupportedIntervals lists the candle intervals the data layer accepts.
var SupportedIntervals = []string{"1m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d"}

// IsSupportedInterval checks an interval against SupportedIntervals.
func IsSupportedInterval(interval string) bool {
	for _, iv := range SupportedIntervals {
		if iv == interval {
			return true
		}
	}
	return false
}

package domain

import (
	"fmt"
	"time"
)

// Trade represents one simulated position from entry to exit.
type Trade struct {
	ID         string
	Symbol     string
	Direction  Direction
	EntryTime  time.Time
	EntryPrice float64
	Size       float64 // Notional committed at entry
	StopLoss   float64
	TakeProfit float64
	Quality    float64 // Quality score of the signal that opened the trade

	ExitTime   time.Time  // Zero while open
	ExitPrice  float64    // 0 while open
	ExitReason ExitReason // Empty while open
	PNL        float64
	Duration   time.Duration
	Status     TradeStatus
}

// IsOpen checks if the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// DurationMinutes returns the holding time in minutes.
func (t *Trade) DurationMinutes() float64 {
	return t.Duration.Minutes()
}

// ValidateLevels checks that the stop loss is adverse and the take profit favourable
// relative to the entry price for the trade's direction.
func (t *Trade) ValidateLevels() error {
	switch t.Direction {
	case DirectionLong:
		if !(t.StopLoss < t.EntryPrice && t.EntryPrice < t.TakeProfit) {
			return fmt.Errorf("long trade %s: want stop %.8f < entry %.8f < target %.8f", t.ID, t.StopLoss, t.EntryPrice, t.TakeProfit)
		}
	case DirectionShort:
		if !(t.TakeProfit < t.EntryPrice && t.EntryPrice < t.StopLoss) {
			return fmt.Errorf("short trade %s: want target %.8f < entry %.8f < stop %.8f", t.ID, t.TakeProfit, t.EntryPrice, t.StopLoss)
		}
	default:
		return fmt.Errorf("trade %s has no direction", t.ID)
	}
	return nil
}

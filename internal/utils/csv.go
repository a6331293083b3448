// Package utils holds CSV import and export of candles and trades.
package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hybridBacktester/internal/domain"
)

var candleHeader = []string{"timestamp", "symbol", "interval", "open", "high", "low", "close", "volume"}

var tradeHeader = []string{
	"id", "symbol", "direction", "entry_time", "entry_price", "size", "stop_loss", "take_profit",
	"quality", "exit_time", "exit_price", "exit_reason", "pnl", "duration_minutes",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCandlesToCSV writes candles to filename, replacing the file.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteCandles(file, candles)
}

// WriteCandles writes a header row and one row per candle.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		if err := writer.Write([]string{
			c.Timestamp.UTC().Format(time.RFC3339),
			c.Symbol,
			c.Interval,
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCandlesFromCSV reads candles from filename. See ReadCandles.
func ReadCandlesFromCSV(filename, symbol, interval string) ([]domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCandles(file, symbol, interval)
}

// ReadCandles parses a CSV with a header row. Columns are matched by name:
// timestamp (or open_time), open, high, low, close and volume are required,
// symbol and interval are optional and default to the given values. Timestamps
// may be RFC3339, "2006-01-02 15:04:05" or Unix milliseconds.
func ReadCandles(r io.Reader, symbol, interval string) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv has no header row")
		}
		return nil, err
	}
	cols := indexColumns(header)
	if _, ok := cols["timestamp"]; !ok {
		if i, ok := cols["open_time"]; ok {
			cols["timestamp"] = i
		}
	}
	for _, name := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", name)
		}
	}

	candles := make([]domain.Candle, 0)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := ParseTime(field(rec, cols, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c := domain.Candle{Timestamp: ts, Symbol: symbol, Interval: interval}
		if s := field(rec, cols, "symbol"); s != "" {
			c.Symbol = s
		}
		if s := field(rec, cols, "interval"); s != "" {
			c.Interval = s
		}

		targets := []struct {
			name string
			dst  *float64
		}{
			{"open", &c.Open}, {"high", &c.High}, {"low", &c.Low}, {"close", &c.Close}, {"volume", &c.Volume},
		}
		for _, t := range targets {
			d, err := decimal.NewFromString(field(rec, cols, t.name))
			if err != nil {
				return nil, fmt.Errorf("line %d: parsing %s: %w", line, t.name, err)
			}
			*t.dst = d.InexactFloat64()
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// WriteTradesToCSV writes trades to filename, replacing the file.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteTrades(file, trades)
}

// WriteTrades writes a header row and one row per trade.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		exitTime, exitPrice := "", ""
		if !t.ExitTime.IsZero() {
			exitTime = t.ExitTime.UTC().Format(time.RFC3339)
			exitPrice = formatFloat(t.ExitPrice)
		}
		if err := writer.Write([]string{
			t.ID,
			t.Symbol,
			string(t.Direction),
			t.EntryTime.UTC().Format(time.RFC3339),
			formatFloat(t.EntryPrice),
			formatFloat(t.Size),
			formatFloat(t.StopLoss),
			formatFloat(t.TakeProfit),
			formatFloat(t.Quality),
			exitTime,
			exitPrice,
			string(t.ExitReason),
			formatFloat(t.PNL),
			formatFloat(t.DurationMinutes()),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTradesFromCSV reads a file produced by WriteTradesToCSV.
func ReadTradesFromCSV(filename string) ([]*domain.Trade, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadTrades(file)
}

// ReadTrades parses trades written by WriteTrades. Duration is recomputed from
// the entry and exit times.
func ReadTrades(r io.Reader) ([]*domain.Trade, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading trade header: %w", err)
	}
	cols := indexColumns(header)
	for _, name := range []string{"entry_time", "entry_price", "pnl"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", name)
		}
	}

	trades := make([]*domain.Trade, 0)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		t := &domain.Trade{
			ID:         field(rec, cols, "id"),
			Symbol:     field(rec, cols, "symbol"),
			Direction:  domain.Direction(field(rec, cols, "direction")),
			ExitReason: domain.ExitReason(field(rec, cols, "exit_reason")),
			Status:     domain.StatusOpen,
		}
		if t.EntryTime, err = ParseTime(field(rec, cols, "entry_time")); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if s := field(rec, cols, "exit_time"); s != "" {
			if t.ExitTime, err = ParseTime(s); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			t.Duration = t.ExitTime.Sub(t.EntryTime)
			t.Status = domain.StatusClosed
		}

		targets := []struct {
			name string
			dst  *float64
		}{
			{"entry_price", &t.EntryPrice}, {"size", &t.Size}, {"stop_loss", &t.StopLoss},
			{"take_profit", &t.TakeProfit}, {"quality", &t.Quality}, {"exit_price", &t.ExitPrice}, {"pnl", &t.PNL},
		}
		for _, tg := range targets {
			s := field(rec, cols, tg.name)
			if s == "" {
				continue
			}
			if *tg.dst, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("line %d: parsing %s: %w", line, tg.name, err)
			}
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ParseTime accepts unix milliseconds, RFC3339, "2006-01-02 15:04:05",
// "2006-01-02T15:04:05" or a bare date, all read as UTC.
func ParseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

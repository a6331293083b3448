package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hybridBacktester/internal/app"
	"hybridBacktester/internal/utils"
)

// marketFlags selects a symbol, an interval and a candle window.
type marketFlags struct {
	symbol   string
	interval string
	start    string
	end      string
	limit    int
}

func (m *marketFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&m.symbol, "symbol", "s", "", "trading pair, e.g. BTCUSDT or BTC/USDT (default SYMBOL)")
	f.StringVarP(&m.interval, "interval", "i", "", "candle interval, e.g. 1h (default INTERVAL)")
	f.StringVar(&m.start, "start", "", "window start: date, RFC3339 or unix ms")
	f.StringVar(&m.end, "end", "", "window end: date, RFC3339 or unix ms")
	f.IntVarP(&m.limit, "limit", "l", app.DefaultLimit, fmt.Sprintf("max candles (1..%d)", app.MaxLimit))
}

// request resolves the flags against the configuration into a validated request.
func (m *marketFlags) request(o *rootOptions) (app.Request, error) {
	req := app.Request{
		Symbol:   m.symbol,
		Interval: m.interval,
		Limit:    m.limit,
		Params:   o.params,
	}
	if req.Symbol == "" {
		req.Symbol = o.cfg.Symbol
	}
	if req.Interval == "" {
		req.Interval = o.cfg.Interval
	}

	var err error
	if m.start != "" {
		if req.Start, err = utils.ParseTime(m.start); err != nil {
			return req, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if m.end != "" {
		if req.End, err = utils.ParseTime(m.end); err != nil {
			return req, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return req.Validate()
}

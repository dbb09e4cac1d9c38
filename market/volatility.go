package market

import (
	"context"
	"sort"
	"sync"

	"riskgate/exchange"
	"riskgate/logs"
	"riskgate/risk"
)

// DataSource is the market data slice of the brokerage client.
type DataSource interface {
	GetLatestPrice(ctx context.Context, ticker string) (float64, error)
	GetBars(ctx context.Context, ticker, timeframe string, limit int) ([]exchange.Bar, error)
}

// VolatilityProvider builds the per-ticker volatility context for a cycle.
// Missing data is reported as zero values, never as an error: the engine
// rejects those tickers with a reason instead of the cycle failing.
type VolatilityProvider struct {
	source    DataSource
	atr       *ATR
	timeframe risk.Timeframe
}

func NewVolatilityProvider(source DataSource, period int, timeframe risk.Timeframe) *VolatilityProvider {
	if timeframe == "" {
		timeframe = risk.Timeframe1D
	}
	return &VolatilityProvider{source: source, atr: NewATR(period), timeframe: timeframe}
}

// Context fetches price and bars for one ticker.
func (p *VolatilityProvider) Context(ctx context.Context, ticker string) risk.VolatilityContext {
	ticker = risk.NormalizeTicker(ticker)
	vc := risk.VolatilityContext{Ticker: ticker, Timeframe: p.timeframe}

	bars, err := p.source.GetBars(ctx, ticker, string(p.timeframe), p.atr.GetRequiredPeriods())
	if err != nil {
		logs.Warnf("[Volatility] failed to get %s bars for %s: %v", p.timeframe, ticker, err)
	} else if atr, err := p.atr.Calculate(bars); err != nil {
		logs.Warnf("[Volatility] no ATR for %s (%d bars): %v", ticker, len(bars), err)
	} else {
		vc.ATR = atr
	}

	price, err := p.source.GetLatestPrice(ctx, ticker)
	switch {
	case err == nil && price > 0:
		vc.ReferencePrice = price
	case len(bars) > 0 && bars[len(bars)-1].Close > 0:
		logs.Warnf("[Volatility] latest price for %s unavailable (%v), using last close", ticker, err)
		vc.ReferencePrice = bars[len(bars)-1].Close
	default:
		logs.Warnf("[Volatility] no reference price for %s: %v", ticker, err)
	}
	return vc
}

// Contexts fetches contexts for every distinct ticker concurrently.
func (p *VolatilityProvider) Contexts(ctx context.Context, tickers []string) map[string]risk.VolatilityContext {
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		seen[risk.NormalizeTicker(t)] = struct{}{}
	}
	unique := make([]string, 0, len(seen))
	for t := range seen {
		if t != "" {
			unique = append(unique, t)
		}
	}
	sort.Strings(unique)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]risk.VolatilityContext, len(unique))
	)
	for _, t := range unique {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			vc := p.Context(ctx, ticker)
			mu.Lock()
			out[ticker] = vc
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return out
}

package exchange

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"riskgate/logs"
	"riskgate/profit"
)

//
// In-memory paper broker for running the full cycle without a real account
//

var _ Client = (*MockClient)(nil)

// MockClient fills market orders immediately at a simulated price.
// Prices follow a per-ticker sine path around the configured base price.
type MockClient struct {
	mu             sync.RWMutex
	cash           float64
	basePrices     map[string]float64
	ledger         *profit.Ledger
	orders         map[string]*Order
	nextOrderID    int64
	simulationTime float64
	amplitude      float64
	marketOpen     bool
	rejectOrders   map[string]bool
	stopChan       chan struct{}
	stopOnce       sync.Once
	now            func() time.Time
}

// NewMockClient creates a paper account with startingCash and a tradable universe.
func NewMockClient(startingCash float64, prices map[string]float64) *MockClient {
	mc := &MockClient{
		cash:         startingCash,
		basePrices:   make(map[string]float64, len(prices)),
		ledger:       profit.NewLedger(),
		orders:       make(map[string]*Order),
		nextOrderID:  1,
		amplitude:    0.02,
		marketOpen:   true,
		rejectOrders: make(map[string]bool),
		stopChan:     make(chan struct{}),
		now:          time.Now,
	}
	for t, p := range prices {
		mc.basePrices[strings.ToUpper(t)] = p
	}
	return mc
}

// Start advances the simulated market once per interval until Stop.
func (c *MockClient) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.Advance(1)
			}
		}
	}()
}

// Stop gracefully stops the simulator goroutine.
func (c *MockClient) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// Advance moves the simulated clock forward by steps.
func (c *MockClient) Advance(steps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulationTime += float64(steps)
}

// SetPriceSimulationParams sets the relative amplitude of the price path.
func (c *MockClient) SetPriceSimulationParams(amplitude float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.amplitude = amplitude
	logs.Infof("[Mock Client] Price simulator configured, amplitude: %.4f", amplitude)
}

func (c *MockClient) SetMarketOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marketOpen = open
}

// SetPrice pins a ticker's base price, adding it to the universe if needed.
func (c *MockClient) SetPrice(ticker string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.basePrices[strings.ToUpper(ticker)] = price
}

// RejectOrdersFor makes every order for ticker fail, for exercising failure paths.
func (c *MockClient) RejectOrdersFor(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectOrders[strings.ToUpper(ticker)] = true
}

// SetInitialPosition seeds a holding bought at avgCost. Cash is not debited.
func (c *MockClient) SetInitialPosition(ticker string, shares int64, avgCost float64) {
	c.ledger.Restore(ticker, shares, avgCost)
}

// Ledger exposes the paper book for summaries.
func (c *MockClient) Ledger() *profit.Ledger {
	return c.ledger
}

// phase spreads tickers across the sine cycle so they do not move in lockstep.
func phase(ticker string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticker))
	return float64(h.Sum32()%628) / 100
}

func (c *MockClient) priceAt_noLock(ticker string, t float64) (float64, bool) {
	base, ok := c.basePrices[ticker]
	if !ok || base <= 0 {
		return 0, false
	}
	p := base * (1 + c.amplitude*math.Sin(t/8+phase(ticker)))
	return math.Round(p*100) / 100, true
}

func (c *MockClient) IsMarketOpen(ctx context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.marketOpen, nil
}

func (c *MockClient) GetLatestPrice(ctx context.Context, ticker string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.priceAt_noLock(strings.ToUpper(ticker), c.simulationTime)
	if !ok {
		return 0, fmt.Errorf("unknown symbol %s", ticker)
	}
	return p, nil
}

// GetBars synthesizes candles along the same price path, one step per bar.
func (c *MockClient) GetBars(ctx context.Context, ticker, timeframe string, limit int) ([]Bar, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("bar limit must be positive")
	}
	var step time.Duration
	switch timeframe {
	case Timeframe15m:
		step = 15 * time.Minute
	case Timeframe1h:
		step = time.Hour
	case Timeframe1D, "":
		step = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key := strings.ToUpper(ticker)
	if _, ok := c.basePrices[key]; !ok {
		return nil, fmt.Errorf("unknown symbol %s", ticker)
	}

	end := c.now().Truncate(step)
	bars := make([]Bar, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		t := c.simulationTime - float64(i)
		closePrice, _ := c.priceAt_noLock(key, t)
		openPrice, _ := c.priceAt_noLock(key, t-1)
		spread := closePrice * c.amplitude / 4
		bars = append(bars, Bar{
			Time:   end.Add(-time.Duration(i) * step),
			Open:   openPrice,
			High:   math.Max(openPrice, closePrice) + spread,
			Low:    math.Min(openPrice, closePrice) - spread,
			Close:  closePrice,
			Volume: 1000,
		})
	}
	return bars, nil
}

func (c *MockClient) GetAccount(ctx context.Context) (*Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	equity := c.cash
	for ticker, ps := range c.ledger.Positions() {
		p, ok := c.priceAt_noLock(ticker, c.simulationTime)
		if !ok {
			p = ps.AverageCost
		}
		equity += float64(ps.Shares) * p
	}
	return &Account{Equity: equity, Cash: c.cash, BuyingPower: c.cash, Status: "ACTIVE"}, nil
}

func (c *MockClient) GetPositions(ctx context.Context) ([]Position, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	held := c.ledger.Positions()
	out := make([]Position, 0, len(held))
	for ticker, ps := range held {
		p, ok := c.priceAt_noLock(ticker, c.simulationTime)
		if !ok {
			p = ps.AverageCost
		}
		out = append(out, Position{
			Ticker:        ticker,
			Shares:        ps.Shares,
			AvgEntryPrice: ps.AverageCost,
			MarketValue:   float64(ps.Shares) * p,
			CurrentPrice:  p,
			UnrealizedPL:  (p - ps.AverageCost) * float64(ps.Shares),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// PlaceOrder fills market orders in full at the current simulated price.
func (c *MockClient) PlaceOrder(ctx context.Context, order *Order) (*Order, error) {
	if order == nil || order.Shares <= 0 {
		return nil, fmt.Errorf("order quantity must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ticker := strings.ToUpper(order.Ticker)
	if c.rejectOrders[ticker] {
		return nil, fmt.Errorf("order for %s rejected by broker", ticker)
	}
	if !c.marketOpen {
		return nil, fmt.Errorf("market is closed")
	}
	price, ok := c.priceAt_noLock(ticker, c.simulationTime)
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", ticker)
	}
	cost := price * float64(order.Shares)

	switch order.Side {
	case Buy:
		if cost > c.cash {
			return nil, fmt.Errorf("insufficient buying power: need %.2f, have %.2f", cost, c.cash)
		}
		c.cash -= cost
	case Sell:
		if held := c.ledger.Position(ticker).Shares; held < order.Shares {
			return nil, fmt.Errorf("insufficient qty available for order (requested: %d, available: %d)", order.Shares, held)
		}
		c.cash += cost
	default:
		return nil, fmt.Errorf("unknown order side %q", order.Side)
	}

	id := fmt.Sprintf("mock-%d", c.nextOrderID)
	c.nextOrderID++
	now := c.now()
	filled := &Order{
		ID:             id,
		ClientOrderID:  order.ClientOrderID,
		Ticker:         ticker,
		Side:           order.Side,
		Type:           Market,
		TimeInForce:    "day",
		Shares:         order.Shares,
		Status:         Filled,
		FilledShares:   order.Shares,
		FilledAvgPrice: price,
		SubmittedAt:    now,
	}
	c.orders[id] = filled

	pnl := c.ledger.RecordFill(profit.Fill{
		Ticker:    ticker,
		Side:      strings.ToUpper(string(order.Side)),
		Price:     price,
		Shares:    order.Shares,
		Timestamp: now,
		OrderID:   id,
	})
	logs.Infof("[Mock Client] filled %s %d %s @ %.2f (realized %.2f), cash %.2f", order.Side, order.Shares, ticker, price, pnl, c.cash)

	out := *filled
	return &out, nil
}

// GetOrder returns a previously placed order.
func (c *MockClient) GetOrder(orderID string) (*Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[orderID]
	if !ok {
		return nil, false
	}
	out := *o
	return &out, true
}

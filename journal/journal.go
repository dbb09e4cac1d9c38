package journal

import (
	"context"
	"errors"
	"time"

	"riskgate/logs"
	"riskgate/risk"

	"github.com/google/uuid"
)

// Entry is the audit record of one decision and what execution did with it.
type Entry struct {
	ID              string    `json:"id"`
	CycleID         string    `json:"cycle_id"`
	Timestamp       time.Time `json:"timestamp"`
	Ticker          string    `json:"ticker"`
	Side            string    `json:"side"`
	RequestedShares int64     `json:"requested_shares"`
	Shares          int64     `json:"shares"`
	ReferencePrice  float64   `json:"reference_price"`
	Notional        float64   `json:"notional"`
	Verdict         string    `json:"verdict"`
	Reason          string    `json:"reason"`
	Adjustments     []string  `json:"adjustments,omitempty"`
	Detail          string    `json:"detail,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
	OrderID         string    `json:"order_id,omitempty"`
	OrderStatus     string    `json:"order_status,omitempty"`
	FillPrice       float64   `json:"fill_price,omitempty"`
}

// NewEntry stamps a decision with identity and time.
func NewEntry(cycleID string, ts time.Time, proposed risk.ProposedTrade, d risk.Decision) Entry {
	e := Entry{
		ID:              uuid.NewString(),
		CycleID:         cycleID,
		Timestamp:       ts.UTC(),
		Ticker:          d.Ticker,
		Side:            string(d.Side),
		RequestedShares: d.RequestedShares,
		Shares:          d.Shares,
		ReferencePrice:  d.ReferencePrice,
		Notional:        d.Notional,
		Verdict:         string(d.Verdict),
		Reason:          string(d.Reason),
		Detail:          d.Detail,
		Reasoning:       proposed.Reasoning,
	}
	for _, a := range d.Adjustments {
		e.Adjustments = append(e.Adjustments, string(a))
	}
	return e
}

// Journal persists entries. Record must not be skipped for rejected decisions.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Multi fans out to several journals. A failing sink does not stop the others.
type Multi struct {
	sinks []Journal
}

func NewMulti(sinks ...Journal) *Multi {
	out := &Multi{}
	for _, s := range sinks {
		if s != nil {
			out.sinks = append(out.sinks, s)
		}
	}
	return out
}

func (m *Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, e); err != nil {
			logs.Errorf("[Journal] failed to record %s %s: %v", e.Ticker, e.ID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"riskgate/risk"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cycleStart = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func sampleEntry(ticker string, ts time.Time) Entry {
	d := risk.Decision{
		Ticker:          ticker,
		Side:            risk.Buy,
		Verdict:         risk.Resize,
		RequestedShares: 400,
		Shares:          250,
		ReferencePrice:  50,
		Notional:        12500,
		Reason:          risk.ReasonVolatilityResized,
		Adjustments:     []risk.ReasonCode{risk.ReasonNotionalTooLarge, risk.ReasonVolatilityResized},
		Detail:          "resized 400 -> 250 shares",
	}
	return NewEntry("cycle-1", ts, risk.ProposedTrade{Ticker: ticker, Side: risk.Buy, Shares: 400, Reasoning: "breakout"}, d)
}

func TestNewEntry(t *testing.T) {
	a := sampleEntry("AAPL", cycleStart)
	b := sampleEntry("AAPL", cycleStart)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "VOLATILITY_RESIZED", a.Reason)
	assert.Equal(t, []string{"NOTIONAL_TOO_LARGE", "VOLATILITY_RESIZED"}, a.Adjustments)
	assert.Equal(t, "breakout", a.Reasoning)
	assert.Equal(t, "resize", a.Verdict)
}

func TestSQLiteJournal(t *testing.T) {
	j, err := NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	for i, tk := range []string{"AAPL", "MSFT", "NVDA"} {
		e := sampleEntry(tk, cycleStart.Add(time.Duration(i)*time.Second))
		if tk == "MSFT" {
			e.Verdict, e.Reason, e.Shares, e.Adjustments = "reject", "COOLDOWN_ACTIVE", 0, nil
		}
		require.NoError(t, j.Record(ctx, e))
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "NVDA", recent[0].Ticker, "newest first")
	assert.Equal(t, "MSFT", recent[1].Ticker)
	assert.Nil(t, recent[1].Adjustments)
	assert.Equal(t, []string{"NOTIONAL_TOO_LARGE", "VOLATILITY_RESIZED"}, recent[0].Adjustments)
	assert.True(t, cycleStart.Add(2*time.Second).Equal(recent[0].Timestamp))

	counts, err := j.CountByReason(ctx, cycleStart)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"VOLATILITY_RESIZED": 2, "COOLDOWN_ACTIVE": 1}, counts)

	dup := recent[0]
	assert.Error(t, j.Record(ctx, dup), "ids are unique")
}

func TestSQLiteJournalOnDisk(t *testing.T) {
	path := t.TempDir() + "/nested/journal.db"
	j, err := NewSQLiteJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), sampleEntry("SPY", cycleStart)))
	require.NoError(t, j.Close())

	reopened, err := NewSQLiteJournal(path)
	require.NoError(t, err)
	defer reopened.Close()
	recent, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestKafkaJournalPublishesEnvelope(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "trading.decisions" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "AAPL" {
			return fmt.Errorf("unexpected key %q", key)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var ev DecisionEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		if ev.EventType != "risk_decision" || ev.Data.Ticker != "AAPL" || ev.Data.Shares != 250 {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	j := NewKafkaJournalWithProducer(producer, "trading.decisions")
	require.NoError(t, j.Record(context.Background(), sampleEntry("AAPL", cycleStart)))
	assert.ErrorContains(t, j.Record(context.Background(), sampleEntry("AAPL", cycleStart)), "broker down")
	require.NoError(t, j.Close())
}

type failingJournal struct{ closed bool }

func (f *failingJournal) Record(ctx context.Context, e Entry) error { return errors.New("disk full") }
func (f *failingJournal) Close() error                             { f.closed = true; return nil }

func TestMultiKeepsGoingWhenOneSinkFails(t *testing.T) {
	good, err := NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	bad := &failingJournal{}
	m := NewMulti(bad, nil, good)

	err = m.Record(context.Background(), sampleEntry("AAPL", cycleStart))
	assert.ErrorContains(t, err, "disk full")

	recent, err := good.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
}

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

const (
	eventType     = "risk_decision"
	eventSource   = "riskgate"
	schemaVersion = "1"
)

// DecisionEvent is the envelope published for every entry, shaped like the
// other events on the trading topics.
type DecisionEvent struct {
	EventType     string    `json:"event_type"`
	Source        string    `json:"source"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	Data          Entry     `json:"data"`
}

// KafkaJournal publishes entries to a topic keyed by ticker, so one ticker's
// decisions stay ordered within a partition.
type KafkaJournal struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducerConfig returns the producer settings used for the decision stream.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Version = sarama.V2_8_0_0
	return config
}

func NewKafkaJournal(brokers []string, topic string) (*KafkaJournal, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewKafkaJournalWithProducer(producer, topic), nil
}

func NewKafkaJournalWithProducer(producer sarama.SyncProducer, topic string) *KafkaJournal {
	return &KafkaJournal{producer: producer, topic: topic}
}

func (k *KafkaJournal) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(DecisionEvent{
		EventType:     eventType,
		Source:        eventSource,
		SchemaVersion: schemaVersion,
		Timestamp:     e.Timestamp,
		Data:          e,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal decision event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.Ticker),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish decision %s: %w", e.ID, err)
	}
	return nil
}

func (k *KafkaJournal) Close() error {
	return k.producer.Close()
}

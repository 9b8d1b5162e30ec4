package sink

import (
	"context"
	"encoding/json"
	"time"

	"influence-monitoring/internal/detector"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// EnvelopeType is the Type of every finding envelope.
const EnvelopeType = "governance_finding"

// Envelope wraps every message published to Kafka.
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"` // unix milli
	Data json.RawMessage `json:"data"`
}

// KafkaSink publishes each finding as one message keyed by proposal id.
type KafkaSink struct {
	topic string
	p     sarama.SyncProducer
}

// ProducerConfig is the producer configuration used by NewKafkaSink.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "influence-monitor"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0
	return cfg
}

// NewKafkaSink connects a synchronous producer to brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	p, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return NewKafkaSinkWithProducer(p, topic), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{topic: topic, p: p}
}

func (s *KafkaSink) Emit(ctx context.Context, fs []detector.Finding) error {
	if len(fs) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(fs))
	now := time.Now().UnixMilli()
	for _, f := range fs {
		data, err := json.Marshal(f)
		if err != nil {
			return errors.Wrapf(err, "marshal finding %v", f.ID)
		}
		b, err := json.Marshal(Envelope{Type: EnvelopeType, TS: now, Data: data})
		if err != nil {
			return errors.Wrap(err, "marshal envelope")
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.StringEncoder(f.ProposalID),
			Value: sarama.ByteEncoder(b),
		})
	}
	// SyncProducer does not take a context.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.p.SendMessages(msgs); err != nil {
		return errors.Wrap(err, "kafka emit")
	}
	log.Debugf("Published %d findings to %v", len(msgs), s.topic)
	return nil
}

func (s *KafkaSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

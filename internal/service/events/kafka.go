package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"detectserver/internal/logger"
	"detectserver/internal/model"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaPublisher produces RecordEvents to a Kafka topic keyed by run id.
type KafkaPublisher struct {
	producer     *kafka.Producer
	topic        string
	deliveryChan chan kafka.Event
	logger       *logger.Logger

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewKafkaPublisher(brokers, topic string, logger *logger.Logger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   brokers,
		"acks":                "all",
		"enable.idempotence":  true,
		"linger.ms":           10,
		"compression.type":    "snappy",
		"delivery.timeout.ms": 120000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	kp := &KafkaPublisher{
		producer:     p,
		topic:        topic,
		deliveryChan: make(chan kafka.Event, 1000),
		logger:       logger,
		cancel:       cancel,
	}

	kp.wg.Add(1)
	go kp.handleDeliveryReports(ctx)

	logger.Info("Kafka publisher initialized - topic: %s, servers: %s", topic, brokers)
	return kp, nil
}

func (kp *KafkaPublisher) handleDeliveryReports(ctx context.Context) {
	defer kp.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-kp.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				kp.failed.Add(1)
				kp.logger.Error("Detection event delivery failed: %v", m.TopicPartition.Error)
				continue
			}
			kp.acked.Add(1)
		}
	}
}

// buildMessage wraps a record into a Kafka message on topic.
func buildMessage(topic string, rec model.DetectionRecord, now time.Time) (*kafka.Message, error) {
	payload, err := RecordEvent{Type: TypeDetectionCreated, EmittedAt: now, Record: rec}.ToJSON()
	if err != nil {
		return nil, err
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(rec.RunID),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeDetectionCreated)},
			{Key: "user_id", Value: []byte(strconv.FormatInt(rec.UserID, 10))},
			{Key: "detection_type", Value: []byte(rec.Kind)},
		},
	}, nil
}

// PublishRecord enqueues the event; delivery is reported asynchronously.
func (kp *KafkaPublisher) PublishRecord(ctx context.Context, rec model.DetectionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildMessage(kp.topic, rec, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := kp.producer.Produce(msg, kp.deliveryChan); err != nil {
		kp.failed.Add(1)
		return fmt.Errorf("failed to enqueue detection event: %w", err)
	}
	kp.sent.Add(1)
	return nil
}

// Close flushes outstanding messages and stops the producer.
func (kp *KafkaPublisher) Close() error {
	remaining := kp.producer.Flush(5000)
	kp.cancel()
	kp.wg.Wait()
	kp.producer.Close()
	kp.logger.Info("Kafka publisher closed: sent=%d acked=%d failed=%d", kp.sent.Load(), kp.acked.Load(), kp.failed.Load())
	if remaining > 0 {
		return fmt.Errorf("%d detection event(s) not delivered before shutdown", remaining)
	}
	return nil
}

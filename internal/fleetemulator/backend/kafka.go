package backend

import (
	"context"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaClient publishes each batch as one message keyed by namespace, so all batches of a namespace land on the
// same partition.
type KafkaClient struct {
	writer messageWriter
}

func NewKafkaClient(ctx *emucontext.Context, config configuration.KafkaConfig) *KafkaClient {
	ctx.Log.Infof("Publishing to kafka topic %s on %v", config.Topic, config.Brokers)
	return &KafkaClient{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        config.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
			WriteTimeout: config.WriteTimeout,
			BatchTimeout: config.BatchTimeout,
		},
	}
}

func (c *KafkaClient) Submit(ctx *emucontext.Context, namespace string, batch []collector.DataPoint) error {
	if err := checkBatch(batch); err != nil {
		return err
	}
	payload, batchId, err := EncodeBatch(namespace, batch)
	if err != nil {
		return err
	}
	err = c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(namespace),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "batchId", Value: []byte(batchId)},
		},
	})
	return errors.WithMessagef(err, "writing batch %s", batchId)
}

func (c *KafkaClient) Close() error {
	return errors.WithStack(c.writer.Close())
}

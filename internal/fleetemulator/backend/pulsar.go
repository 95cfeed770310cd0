package backend

import (
	"fmt"
	"os"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
)

const namespaceProperty = "namespace"

// PulsarClient publishes each batch as one message whose payload is the JSON envelope of the batch.
type PulsarClient struct {
	client   pulsar.Client
	producer pulsar.Producer
}

func NewPulsarClient(ctx *emucontext.Context, config configuration.PulsarConfig) (*PulsarClient, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:                     config.URL,
		MaxConnectionsPerBroker: config.MaxConnectionsPerBroker,
		ConnectionTimeout:       config.ConnectionTimeout,
		OperationTimeout:        config.OperationTimeout,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "creating pulsar client for %s", config.URL)
	}

	hostname, _ := os.Hostname()
	producerName := fmt.Sprintf("idracsim-fleet-%s", hostname)
	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Name:             producerName,
		Topic:            config.Topic,
		CompressionType:  config.CompressionType,
		CompressionLevel: config.CompressionLevel,
		SendTimeout:      config.SendTimeout,
	})
	if err != nil {
		client.Close()
		return nil, errors.WithMessagef(err, "error creating pulsar producer %s", producerName)
	}
	ctx.Log.Infof("Publishing to pulsar topic %s", config.Topic)
	return &PulsarClient{client: client, producer: producer}, nil
}

func (c *PulsarClient) Submit(ctx *emucontext.Context, namespace string, batch []collector.DataPoint) error {
	if err := checkBatch(batch); err != nil {
		return err
	}
	payload, batchId, err := EncodeBatch(namespace, batch)
	if err != nil {
		return err
	}
	_, err = c.producer.Send(ctx, &pulsar.ProducerMessage{
		Payload:    payload,
		Key:        namespace,
		Properties: map[string]string{namespaceProperty: namespace},
	})
	return errors.WithMessagef(err, "sending batch %s", batchId)
}

func (c *PulsarClient) Close() error {
	c.producer.Close()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

package backend

import (
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/emuerrors"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
)

// New creates the client selected by config.Type.
func New(ctx *emucontext.Context, config configuration.BackendConfig) (Client, error) {
	switch config.Type {
	case "cloudwatch":
		client, err := NewCloudWatchClient(ctx, config.CloudWatch)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "pulsar":
		client, err := NewPulsarClient(ctx, config.Pulsar)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "kafka":
		return NewKafkaClient(ctx, config.Kafka), nil
	case "redis":
		return NewRedisClient(ctx, config.Redis), nil
	case "log":
		return NewLogClient(), nil
	default:
		return nil, errors.WithStack(&emuerrors.ErrConfiguration{
			Field:   "backend.type",
			Value:   config.Type,
			Message: "must be one of cloudwatch, pulsar, kafka, redis or log",
		})
	}
}

package backend

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
)

const tagFieldPrefix = "tag:"

// RedisClient appends every data point of a batch to a stream per namespace and keeps a hash of the latest value
// of each metric per server. Each batch is written in one MULTI/EXEC transaction.
type RedisClient struct {
	db           redis.UniversalClient
	streamPrefix string
	streamMaxLen int64
	latestPrefix string
}

func NewRedisClient(ctx *emucontext.Context, config configuration.RedisConfig) *RedisClient {
	ctx.Log.Infof("Publishing to redis at %v", config.Client.Addrs)
	return NewRedisClientFromUniversalClient(redis.NewUniversalClient(config.Client.AsUniversalOptions()), config)
}

func NewRedisClientFromUniversalClient(db redis.UniversalClient, config configuration.RedisConfig) *RedisClient {
	return &RedisClient{
		db:           db,
		streamPrefix: config.StreamPrefix,
		streamMaxLen: config.StreamMaxLen,
		latestPrefix: config.LatestPrefix,
	}
}

func (c *RedisClient) Submit(ctx *emucontext.Context, namespace string, batch []collector.DataPoint) error {
	if err := checkBatch(batch); err != nil {
		return err
	}
	stream := c.StreamKey(namespace)
	_, err := c.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		latest := make(map[string][]interface{})
		for _, point := range batch {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: stream,
				MaxLen: c.streamMaxLen,
				Approx: c.streamMaxLen > 0,
				Values: streamValues(point),
			})
			serverId := point.ServerId()
			latest[serverId] = append(latest[serverId], point.MetricName, formatValue(point.Value))
		}
		for serverId, fields := range latest {
			pipe.HSet(ctx, c.LatestKey(serverId), fields...)
		}
		return nil
	})
	return errors.WithMessagef(err, "writing batch to %s", stream)
}

func (c *RedisClient) Close() error {
	return errors.WithStack(c.db.Close())
}

func (c *RedisClient) StreamKey(namespace string) string {
	return c.streamPrefix + namespace
}

func (c *RedisClient) LatestKey(serverId string) string {
	return c.latestPrefix + serverId
}

func streamValues(point collector.DataPoint) []interface{} {
	values := make([]interface{}, 0, 8+2*len(point.Tags))
	values = append(values,
		"metric", point.MetricName,
		"value", formatValue(point.Value),
		"unit", string(point.Unit),
		"timestamp", point.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	for _, tag := range point.Tags {
		values = append(values, tagFieldPrefix+tag.Key, tag.Value)
	}
	return values
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

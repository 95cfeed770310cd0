package configuration

import (
	"time"

	"github.com/apache/pulsar-client-go/pulsar"

	commonconfig "github.com/G-Research/idracsim/internal/common/config"
)

// Configuration is shared by the fleet publisher and the single server Redfish and SNMP responders.
type Configuration struct {
	// Namespace the fleet metrics are published under, e.g. "iDRAC/Fleet".
	Namespace string `validate:"required"`
	Fleet     FleetConfig
	Publish   PublishConfig
	Backend   BackendConfig
	// Port on which prometheus metrics are served
	Metrics MetricsConfig
	// Port on which the health endpoint is served
	Http    HttpConfig
	Logging LoggingConfig
	Redfish RedfishConfig
	Snmp    SnmpConfig
}

type FleetConfig struct {
	// Number of emulated servers.
	Size int `validate:"gt=0"`
	// Servers are named <IdPrefix>-<zero padded index>.
	IdPrefix string `validate:"required"`
	// Minimum width of the zero padded index.
	IdDigits int `validate:"gte=1,lte=12"`
	// Seed for all entity random streams. Zero means seed from the current time.
	Seed int64
	// Maximum number of entities read concurrently while collecting a snapshot. Zero means unbounded.
	Parallelism int `validate:"gte=0"`
}

type PublishConfig struct {
	// Sleep between the end of one tick and the start of the next.
	IntervalSeconds int `validate:"gt=0"`
	// Maximum number of data points per batch. Can never exceed the backend limit.
	BatchSize int `validate:"gte=1,lte=20"`
	// Maximum number of batches in flight within one tick.
	Parallelism int `validate:"gte=1"`
	// Total attempts per batch, including the first.
	SubmitAttempts uint `validate:"gte=1"`
	// Deadline for a single submit attempt.
	SubmitTimeout time.Duration `validate:"gt=0"`
	// Initial backoff between attempts of the same batch.
	RetryDelay time.Duration `validate:"gte=0"`
	// Extra tags added to every data point after ServerID and MetricType.
	StaticTags map[string]string
}

func (c PublishConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type BackendConfig struct {
	Type       string           `validate:"oneof=cloudwatch pulsar kafka redis log"`
	CloudWatch CloudWatchConfig `validate:"-"`
	Pulsar     PulsarConfig     `validate:"-"`
	Kafka      KafkaConfig      `validate:"-"`
	Redis      RedisConfig      `validate:"-"`
}

type CloudWatchConfig struct {
	Region string `validate:"required"`
	// Overrides the service endpoint, e.g. to point at LocalStack.
	Endpoint string
}

type PulsarConfig struct {
	URL                     string `validate:"required"`
	Topic                   string `validate:"required"`
	CompressionType         pulsar.CompressionType
	CompressionLevel        pulsar.CompressionLevel
	MaxConnectionsPerBroker int
	ConnectionTimeout       time.Duration
	OperationTimeout        time.Duration
	SendTimeout             time.Duration
}

type KafkaConfig struct {
	Brokers []string `validate:"required,min=1"`
	Topic   string   `validate:"required"`
	// -1 waits for all in-sync replicas, 1 for the leader only.
	RequiredAcks int `validate:"oneof=-1 0 1"`
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

type RedisConfig struct {
	Client commonconfig.RedisConfig
	// Data points are appended to the stream <StreamPrefix><namespace>.
	StreamPrefix string `validate:"required"`
	// Approximate maximum stream length. Zero disables trimming.
	StreamMaxLen int64 `validate:"gte=0"`
	// Latest values per server are kept in the hash <LatestPrefix><server id>.
	LatestPrefix string `validate:"required"`
}

type MetricsConfig struct {
	Port uint16
}

type HttpConfig struct {
	Port uint16
	// A tick must have completed within this window for the publisher to report healthy.
	// Zero derives the window from the publish interval.
	MaxTickAge time.Duration
}

type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"oneof=text json"`
}

type RedfishConfig struct {
	Port uint16 `validate:"gt=0"`
	// Identity of the single emulated server.
	ServerID string `validate:"required"`
	// username -> password accepted by basic auth
	Credentials map[string]string `validate:"min=1"`
	// Also publish the server's readings to the backend every publish interval.
	Publish bool
}

type SnmpConfig struct {
	Port           uint16 `validate:"gt=0"`
	ReadCommunity  string `validate:"required"`
	WriteCommunity string
	// How often the OID table is regenerated.
	RefreshInterval time.Duration `validate:"gt=0"`
}

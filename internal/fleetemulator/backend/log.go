package backend

import (
	"github.com/sirupsen/logrus"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
)

// LogClient writes batches to the log instead of a remote backend. It never fails.
// Each batch is summarised in one info line; individual points are only logged at debug.
type LogClient struct{}

func NewLogClient() *LogClient {
	return &LogClient{}
}

func (c *LogClient) Submit(ctx *emucontext.Context, namespace string, batch []collector.DataPoint) error {
	if err := checkBatch(batch); err != nil {
		return err
	}
	servers := map[string]bool{}
	for _, point := range batch {
		servers[point.ServerId()] = true
	}
	log := ctx.Log.WithField("namespace", namespace)
	log.Infof("Received batch of %d data points from %d servers", len(batch), len(servers))

	if !ctx.Log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return nil
	}
	for _, point := range batch {
		log.WithFields(logrus.Fields{
			"server":    point.ServerId(),
			"metric":    point.MetricName,
			"value":     point.Value,
			"unit":      point.Unit,
			"timestamp": point.Timestamp,
		}).Debug("Data point")
	}
	return nil
}

func (c *LogClient) Close() error {
	return nil
}

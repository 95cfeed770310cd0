package collector

import (
	"time"

	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
)

const (
	ServerIdTag   = "ServerID"
	MetricTypeTag = "MetricType"
)

type Tag struct {
	Key   string
	Value string
}

// DataPoint is one reading in the shape the backends ingest.
type DataPoint struct {
	MetricName string
	Value      float64
	Unit       metricmodel.Unit
	Timestamp  time.Time
	// Always starts with ServerID then MetricType.
	Tags []Tag
}

// Tag returns the value of the first tag with the given key.
func (p DataPoint) Tag(key string) (string, bool) {
	for _, tag := range p.Tags {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// ServerId is a shortcut for the value of the ServerID tag.
func (p DataPoint) ServerId() string {
	id, _ := p.Tag(ServerIdTag)
	return id
}

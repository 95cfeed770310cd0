package backend

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
)

// Envelope is the wire format of one batch on the message bus backends.
type Envelope struct {
	BatchId   string          `json:"batchId"`
	Namespace string          `json:"namespace"`
	Points    []EnvelopePoint `json:"points"`
}

type EnvelopePoint struct {
	MetricName string              `json:"metricName"`
	Value      float64             `json:"value"`
	Unit       string              `json:"unit"`
	Timestamp  time.Time           `json:"timestamp"`
	Dimensions []EnvelopeDimension `json:"dimensions"`
}

type EnvelopeDimension struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EncodeBatch serialises batch into a JSON envelope with a fresh batch id.
func EncodeBatch(namespace string, batch []collector.DataPoint) ([]byte, string, error) {
	envelope := Envelope{
		BatchId:   uuid.NewString(),
		Namespace: namespace,
		Points:    make([]EnvelopePoint, len(batch)),
	}
	for i, point := range batch {
		dimensions := make([]EnvelopeDimension, len(point.Tags))
		for j, tag := range point.Tags {
			dimensions[j] = EnvelopeDimension{Name: tag.Key, Value: tag.Value}
		}
		envelope.Points[i] = EnvelopePoint{
			MetricName: point.MetricName,
			Value:      point.Value,
			Unit:       string(point.Unit),
			Timestamp:  point.Timestamp.UTC(),
			Dimensions: dimensions,
		}
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, "", errors.WithStack(err)
	}
	return payload, envelope.BatchId, nil
}

// DecodeBatch is the inverse of EncodeBatch.
func DecodeBatch(payload []byte) (string, []collector.DataPoint, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", nil, errors.WithStack(err)
	}
	points := make([]collector.DataPoint, len(envelope.Points))
	for i, p := range envelope.Points {
		tags := make([]collector.Tag, len(p.Dimensions))
		for j, d := range p.Dimensions {
			tags[j] = collector.Tag{Key: d.Name, Value: d.Value}
		}
		points[i] = collector.DataPoint{
			MetricName: p.MetricName,
			Value:      p.Value,
			Unit:       metricmodel.Unit(p.Unit),
			Timestamp:  p.Timestamp,
			Tags:       tags,
		}
	}
	return envelope.Namespace, points, nil
}

// Package backend contains the clients the fleet publisher submits batches of data points to.
package backend

import (
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/emuerrors"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
)

// MaxBatchSize is the largest number of data points accepted by a single Submit. It is the per request limit of
// CloudWatch PutMetricData, applied to every backend so that switching backends never changes batching.
const MaxBatchSize = 20

// Client accepts batches of data points. A batch is accepted or rejected as a whole.
type Client interface {
	// Submit sends one batch. Batches larger than MaxBatchSize are rejected with *emuerrors.ErrInvalidArgument
	// before any I/O happens.
	Submit(ctx *emucontext.Context, namespace string, batch []collector.DataPoint) error
	Close() error
}

func checkBatch(batch []collector.DataPoint) error {
	if len(batch) > MaxBatchSize {
		return errors.WithStack(&emuerrors.ErrInvalidArgument{
			Name:    "batch",
			Value:   len(batch),
			Message: "batch exceeds the backend limit of 20 data points",
		})
	}
	return nil
}

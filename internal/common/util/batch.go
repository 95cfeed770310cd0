package util

import (
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emuerrors"
)

// Batch partitions elements by position into consecutive batches of at most batchSize elements.
// Batch i holds elements[i*batchSize : min((i+1)*batchSize, len(elements))], so every batch except possibly
// the last is full. Order is preserved and nothing is deduplicated. The returned batches share the backing array
// of elements.
func Batch[T any](elements []T, batchSize int) ([][]T, error) {
	if batchSize <= 0 {
		return nil, errors.WithStack(&emuerrors.ErrInvalidArgument{
			Name:    "batchSize",
			Value:   batchSize,
			Message: "batch size must be greater than zero",
		})
	}

	total := len(elements)
	n := total / batchSize
	lastBatchSize := total % batchSize
	totalBatches := n
	if lastBatchSize != 0 {
		totalBatches++
	}

	batches := make([][]T, totalBatches)

	for i := 0; i < n; i++ {
		batches[i] = elements[i*batchSize : (i+1)*batchSize : (i+1)*batchSize]
	}

	if lastBatchSize != 0 {
		batches[n] = elements[n*batchSize : total : total]
	}

	return batches, nil
}

package indexer

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// PendingRanges splits [next, head] into ranges of at most batchSize blocks.
// It returns no ranges when next is already past head.
func PendingRanges(next, head, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if next > head {
		return nil, nil
	}

	ranges := make([]BlockRange, 0, (head-next)/batchSize+1)
	from := next
	for {
		to := head
		if head-from >= batchSize {
			to = from + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: from, To: to})
		if to == head {
			return ranges, nil
		}
		from = to + 1
	}
}

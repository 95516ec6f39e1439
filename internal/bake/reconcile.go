package bake

import (
	"errors"
	"fmt"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// reconcile compares the rendered length n against the destination capacity
// and prepares the destination for the write at offset 0.
//
// The policy never resizes or truncates the rendered buffer:
//   - n > capacity: warn and let the full buffer be written anyway.
//   - n < capacity: clear [n, capacity) so no stale samples survive.
//   - n == capacity: nothing to do.
//
// In remote mode the capacity cannot be queried and the write is unchecked.
func (s *Scheduler) reconcile(array string, n int) (int, ReconcileAction, error) {
	if s.remote {
		s.logger.Warn("unable to retrieve array size in remote mode, assuming destination array is big enough",
			"array", array,
			"samples", n,
		)
		return UnknownCapacity, ReconcileUnchecked, nil
	}

	size, err := s.shared.ArraySize(array)
	if errors.Is(err, audio.ErrArraySizeUnavailable) {
		s.logger.Warn("array size unavailable, assuming destination array is big enough",
			"array", array,
			"samples", n,
		)
		return UnknownCapacity, ReconcileUnchecked, nil
	}
	if err != nil {
		return UnknownCapacity, "", &TaskError{
			Code:  CodeArrayUnavailable,
			Array: array,
			Err:   fmt.Errorf("array size: %w", err),
		}
	}

	switch {
	case n > size:
		s.logger.Warn("destination array too short for baked data, writing full buffer",
			"array", array,
			"capacity", size,
			"samples", n,
		)
		return size, ReconcileOverflow, nil

	case n < size:
		s.logger.Warn("destination array bigger than baked data, clearing tail",
			"array", array,
			"capacity", size,
			"samples", n,
		)
		zeros := make([]float32, size-n)
		if err := s.shared.WriteArray(array, n, zeros, 0, len(zeros)); err != nil {
			return size, ReconcileZeroFill, &TaskError{
				Code:  CodeWriteFailed,
				Array: array,
				Err:   fmt.Errorf("clear tail [%d,%d): %w", n, size, err),
			}
		}
		return size, ReconcileZeroFill, nil

	default:
		return size, ReconcileNone, nil
	}
}

package domain

// SequenceValidator checks update id ranges the way Binance diff-depth and
// KuCoin level2 streams define them: [first, last] per update, contiguous.
type SequenceValidator struct{}

func (v *SequenceValidator) IsValidUpd(update *OrderBookUpdate, orderBookLastUpdId uint64, aligned bool) error {
	next := orderBookLastUpdId + 1

	if aligned {
		// While listening to the stream, each new event's first id should be equal to the previous event's last id + 1.
		// A replayed or stale update is as much a break of the chain as a gap.
		if update.FirstUpdateID != next {
			return ErrOrderBookUpdateIsOutOfSequence
		}
		return nil
	}

	// Drop any event where last id is <= lastUpdateId in the snapshot
	if update.LastUpdateID < next {
		return ErrOrderBookUpdateIsOutdated
	}

	// The first processed event should have first <= lastUpdateId+1 AND last >= lastUpdateId+1
	if update.FirstUpdateID > next {
		return ErrOrderBookUpdateIsOutOfSequence
	}

	return nil
}

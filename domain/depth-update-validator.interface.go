package domain

import "errors"

var (
	// The book has lost the update chain and must be rebuilt from a fresh snapshot.
	ErrOrderBookUpdateIsOutOfSequence = errors.New("order book update is out of sequence")
	// should just skip them
	ErrOrderBookUpdateIsOutdated = errors.New("order book update is outdated")
)

type IDepthUpdateValidator interface {
	// if return nil, the update is valid
	// aligned is true once an update has been applied on top of the snapshot.
	IsValidUpd(update *OrderBookUpdate, orderBookLastUpdId uint64, aligned bool) error
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceValidator(t *testing.T) {
	v := &SequenceValidator{}

	tests := []struct {
		name        string
		first, last uint64
		bookLast    uint64
		aligned     bool
		expected    error
	}{
		{"first update straddles snapshot", 120, 130, 123, false, nil},
		{"first update starts right after snapshot", 124, 130, 123, false, nil},
		{"first update ends right after snapshot", 110, 124, 123, false, nil},
		{"covered by snapshot", 110, 123, 123, false, ErrOrderBookUpdateIsOutdated},
		{"gap after snapshot", 125, 136, 123, false, ErrOrderBookUpdateIsOutOfSequence},
		{"contiguous", 124, 126, 123, true, nil},
		{"gap while aligned", 125, 126, 123, true, ErrOrderBookUpdateIsOutOfSequence},
		{"replay while aligned", 120, 123, 123, true, ErrOrderBookUpdateIsOutOfSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd := &OrderBookUpdate{
				FirstUpdateID: tt.first,
				LastUpdateID:  tt.last,
				Bids:          [][]string{{"10000", "1"}},
				Asks:          [][]string{{"10100", "1.5"}},
			}

			assert.Equal(t, tt.expected, v.IsValidUpd(upd, tt.bookLast, tt.aligned))
		})
	}
}

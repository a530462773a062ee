package node

import (
	"context"

	"github.com/bobg/multichan"

	"smartcoin.dev/node/node/store"
)

// BlockSubscription receives every block farmed after it was created.
type BlockSubscription struct {
	r *multichan.R
}

// Next blocks until the next block or until ctx is done or the chain closes.
func (s *BlockSubscription) Next(ctx context.Context) (*store.BlockRecord, bool) {
	item, ok := s.r.Read(ctx)
	if !ok {
		return nil, false
	}
	b, _ := item.(*store.BlockRecord)
	return b, b != nil
}

func (s *BlockSubscription) Close() {
	s.r.Dispose()
}

func newBlockFeed() *multichan.W {
	return multichan.New((*store.BlockRecord)(nil))
}

package worker

import (
	"context"

	"github.com/messari/subgraphs-sub014/internal/types"
)

// SliceSource serves a fixed, pre-ordered slice of events. Used by offline
// replay and tests.
type SliceSource struct {
	events []*types.Event
}

// NewSliceSource creates a source over events, which must already be in
// (block, log index) order
func NewSliceSource(events []*types.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns up to limit events strictly after the given position
func (s *SliceSource) Next(ctx context.Context, after types.EventContext, limit int) ([]*types.Event, error) {
	var out []*types.Event
	for _, ev := range s.events {
		if !after.Before(ev.Context) {
			continue
		}
		out = append(out, ev)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

package status

import (
	"context"

	"github.com/rollward-systems/rollward/internal/store"
	"github.com/rollward-systems/rollward/pkg/types"
)

// EventTap wraps a Store so every appended event is also pushed into an
// Aggregator. This is the push delivery path; Rebuild over the same store is
// the pull path, and both arrive at the same snapshot.
type EventTap struct {
	store.Store
	agg *Aggregator
}

// NewEventTap wraps st so appended events also feed agg.
func NewEventTap(st store.Store, agg *Aggregator) *EventTap {
	return &EventTap{Store: st, agg: agg}
}

// AppendEvent appends to the underlying store and, when that succeeds, folds
// the event into the aggregate.
func (t *EventTap) AppendEvent(ctx context.Context, event types.Event) error {
	if err := t.Store.AppendEvent(ctx, event); err != nil {
		return err
	}
	t.agg.Ingest(event)
	return nil
}

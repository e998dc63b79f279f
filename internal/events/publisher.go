// README: Ledger event fan-out to any number of sinks (Redis, websocket hub).
package events

import (
	"context"
	"errors"

	"taxihub/internal/modules/ledger"
)

// Fanout delivers each event to every publisher in order. All publishers are
// tried; their errors are joined.
type Fanout []ledger.Publisher

func (f Fanout) Publish(ctx context.Context, e ledger.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFunc adapts a function to ledger.Publisher.
type PublisherFunc func(ctx context.Context, e ledger.Event) error

func (fn PublisherFunc) Publish(ctx context.Context, e ledger.Event) error {
	return fn(ctx, e)
}

package events

import (
	"context"
	"errors"
)

// Fanout delivers each entry to every handler and reports all failures.
type Fanout []DeliveryHandler

func (f Fanout) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard acknowledges entries without forwarding them. Used when no
// transport is configured.
var Discard = HandlerFunc(func(context.Context, OutboxEntry) error { return nil })

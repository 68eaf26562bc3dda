package service

import (
	"context"
	"errors"

	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
)

// Fanout delivers every event to each sink and joins their errors.
type Fanout []auditdomain.Emitter

func (f Fanout) Emit(ctx context.Context, evt auditdomain.Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

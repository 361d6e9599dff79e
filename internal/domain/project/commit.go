package project

import (
	"context"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/event"
)

// effect is a side effect on an external collaborator applied inside the
// storage transaction, after all writes succeeded.
type effect struct {
	name  string
	apply func(ctx context.Context) error
	// undo is nil when the effect cannot be reversed by the engine.
	undo func(ctx context.Context) error
}

// change is the outcome of a unit of work: events to append and effects to apply.
type change struct {
	events  []event.Event
	effects []effect
}

func (e *Engine) emit(ch *change, typ event.Type, projectID, packageID string, payload any) error {
	evt, err := event.New(typ, projectID, packageID, payload, e.clock().UTC())
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", typ, err)
	}
	ch.events = append(ch.events, evt)
	return nil
}

// commit runs fn in one storage transaction. Events are appended in the same
// transaction and published only after it commits. Effects that were applied
// before a failure are compensated in reverse order.
func (e *Engine) commit(ctx context.Context, fn func(ctx context.Context, tx Store) (*change, error)) error {
	var applied []effect
	var committed []event.Event

	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		ch, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		for i := range ch.events {
			if err := tx.AppendEvent(ctx, &ch.events[i]); err != nil {
				return fmt.Errorf("appending event: %w", err)
			}
		}
		for _, eff := range ch.effects {
			if err := eff.apply(ctx); err != nil {
				return err
			}
			applied = append(applied, eff)
		}
		committed = ch.events
		return nil
	})
	if err != nil {
		e.compensate(ctx, applied)
		return err
	}

	for _, evt := range committed {
		e.publish(ctx, evt)
	}
	return nil
}

func (e *Engine) compensate(ctx context.Context, applied []effect) {
	ctx = context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		eff := applied[i]
		if eff.undo == nil {
			e.logger.Error("irreversible effect applied before failed commit", "effect", eff.name)
			continue
		}
		if err := eff.undo(ctx); err != nil {
			e.logger.Error("compensation failed", "effect", eff.name, "error", err)
		}
	}
}

func (e *Engine) publish(ctx context.Context, evt event.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.Warn("publishing event", "type", evt.Type, "seq", evt.Seq, "error", err)
	}
}

// transferEffect moves tokens out of custody. It cannot be undone; when paid
// is set it accumulates the amount once the transfer succeeds.
func (e *Engine) transferEffect(name, token, to string, amount uint64, paid *uint64) effect {
	return effect{
		name: name,
		apply: func(ctx context.Context) error {
			if err := e.tokens.Transfer(ctx, token, e.custody, to, amount); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrTokenTransferFailed, name, err)
			}
			if paid != nil {
				*paid += amount
			}
			return nil
		},
	}
}

package project

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpggio/fundflow/internal/domain/event"
)

// Authority returns the current governing authority.
func (e *Engine) Authority() string {
	e.authMu.RLock()
	defer e.authMu.RUnlock()
	return e.authority
}

// TransferAuthority hands the approval role to another identity.
func (e *Engine) TransferAuthority(ctx context.Context, caller, next string) (err error) {
	ctx, done := e.observe(ctx, "transfer_authority")
	defer func() { done(err) }()

	e.authMu.Lock()
	defer e.authMu.Unlock()

	if caller == "" || caller != e.authority {
		return ErrNotAuthorized
	}
	next = strings.TrimSpace(next)
	if next == "" {
		return ErrInvalidInput
	}

	err = e.commit(ctx, func(ctx context.Context, tx Store) (*change, error) {
		if err := tx.SetAuthority(ctx, next); err != nil {
			return nil, fmt.Errorf("storing authority: %w", err)
		}
		ch := &change{}
		err := e.emit(ch, event.TypeAuthorityTransferred, "", "", event.AuthorityTransferred{
			From: caller,
			To:   next,
			At:   e.timestamp(),
		})
		return ch, err
	})
	if err != nil {
		return err
	}

	e.authority = next
	e.logger.Info("authority transferred", "from", caller, "to", next)
	return nil
}

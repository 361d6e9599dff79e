package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/rpggio/fundflow/internal/repository"
)

var (
	// ErrUnknownToken is returned for a token that was never issued
	ErrUnknownToken = errors.New("unknown token")

	// ErrInsufficientBalance is returned when a holder cannot cover a debit
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned when a spender exceeds its allowance
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrAmountOutOfRange is returned for amounts SQLite cannot store
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// TokenLedger is a fungible token ledger with balances and allowances.
// It should live in its own database so that its transactions never wait on
// the project store's connection.
type TokenLedger struct {
	db *DB
}

// NewTokenLedger creates a TokenLedger backed by db.
func NewTokenLedger(db *DB) *TokenLedger {
	return &TokenLedger{db: db}
}

// Issue creates token with its whole supply credited to holder.
func (l *TokenLedger) Issue(ctx context.Context, token, holder string, supply uint64) error {
	if err := checkAmount(supply); err != nil {
		return err
	}
	return l.withinTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tokens (id, supply) VALUES (?, ?)`, token, supply)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrConflict
			}
			return fmt.Errorf("failed to issue token: %w", err)
		}
		return credit(ctx, tx, token, holder, supply)
	})
}

// Mint increases the supply of token and credits to.
func (l *TokenLedger) Mint(ctx context.Context, token, to string, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.withinTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE tokens SET supply = supply + ?
			WHERE id = ? AND supply <= ? - ?
		`, amount, token, int64(math.MaxInt64), amount)
		if err != nil {
			return fmt.Errorf("failed to mint: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			if err := requireToken(ctx, tx, token); err != nil {
				return err
			}
			return ErrAmountOutOfRange
		}
		return credit(ctx, tx, token, to, amount)
	})
}

// Approve sets the amount spender may move out of owner's balance.
func (l *TokenLedger) Approve(ctx context.Context, token, owner, spender string, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.withinTx(ctx, func(tx *sql.Tx) error {
		if err := requireToken(ctx, tx, token); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO token_allowances (token, owner, spender, amount) VALUES (?, ?, ?, ?)
			ON CONFLICT(token, owner, spender) DO UPDATE SET amount = excluded.amount
		`, token, owner, spender, amount)
		if err != nil {
			return fmt.Errorf("failed to approve: %w", err)
		}
		return nil
	})
}

// BalanceOf returns holder's balance of token.
func (l *TokenLedger) BalanceOf(ctx context.Context, token, holder string) (uint64, error) {
	if err := requireToken(ctx, l.db, token); err != nil {
		return 0, err
	}
	var amount uint64
	err := l.db.QueryRowContext(ctx, `SELECT amount FROM token_balances WHERE token = ? AND holder = ?`, token, holder).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return amount, nil
}

// Allowance returns what spender may still move out of owner's balance.
func (l *TokenLedger) Allowance(ctx context.Context, token, owner, spender string) (uint64, error) {
	if err := requireToken(ctx, l.db, token); err != nil {
		return 0, err
	}
	var amount uint64
	err := l.db.QueryRowContext(ctx, `
		SELECT amount FROM token_allowances WHERE token = ? AND owner = ? AND spender = ?
	`, token, owner, spender).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get allowance: %w", err)
	}
	return amount, nil
}

// Transfer moves amount of token from one holder to another.
func (l *TokenLedger) Transfer(ctx context.Context, token, from, to string, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.withinTx(ctx, func(tx *sql.Tx) error {
		if err := requireToken(ctx, tx, token); err != nil {
			return err
		}
		return move(ctx, tx, token, from, to, amount)
	})
}

// TransferFrom moves amount of owner's token to to, spending spender's allowance.
func (l *TokenLedger) TransferFrom(ctx context.Context, token, owner, spender, to string, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.withinTx(ctx, func(tx *sql.Tx) error {
		if err := requireToken(ctx, tx, token); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE token_allowances SET amount = amount - ?
			WHERE token = ? AND owner = ? AND spender = ? AND amount >= ?
		`, amount, token, owner, spender, amount)
		if err != nil {
			return fmt.Errorf("failed to spend allowance: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 && amount > 0 {
			return ErrInsufficientAllowance
		}
		return move(ctx, tx, token, owner, to, amount)
	})
}

func (l *TokenLedger) withinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func move(ctx context.Context, tx *sql.Tx, token, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE token_balances SET amount = amount - ?
		WHERE token = ? AND holder = ? AND amount >= ?
	`, amount, token, from, amount)
	if err != nil {
		return fmt.Errorf("failed to debit: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrInsufficientBalance
	}
	return credit(ctx, tx, token, to, amount)
}

func credit(ctx context.Context, tx *sql.Tx, token, holder string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO token_balances (token, holder, amount) VALUES (?, ?, ?)
		ON CONFLICT(token, holder) DO UPDATE SET amount = amount + excluded.amount
	`, token, holder, amount)
	if err != nil {
		return fmt.Errorf("failed to credit: %w", err)
	}
	return nil
}

func requireToken(ctx context.Context, q querier, token string) error {
	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE id = ?`, token).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check token: %w", err)
	}
	if exists == 0 {
		return ErrUnknownToken
	}
	return nil
}

func checkAmount(amount uint64) error {
	if amount > math.MaxInt64 {
		return ErrAmountOutOfRange
	}
	return nil
}

// TokenProvisioner issues a dedicated token per project into a custody account.
type TokenProvisioner struct {
	ledger  *TokenLedger
	custody string
}

// NewTokenProvisioner creates a provisioner minting into custody.
func NewTokenProvisioner(ledger *TokenLedger, custody string) *TokenProvisioner {
	return &TokenProvisioner{ledger: ledger, custody: custody}
}

// MintProjectToken issues the project's token with supply credited to
// custody. The token id derives from the project, so a repeated call returns
// the already issued token without minting more.
func (p *TokenProvisioner) MintProjectToken(ctx context.Context, projectID string, supply uint64) (string, error) {
	token := "prj-" + projectID
	if err := p.ledger.Issue(ctx, token, p.custody, supply); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return token, nil
		}
		return "", fmt.Errorf("failed to provision token for project %s: %w", projectID, err)
	}
	return token, nil
}

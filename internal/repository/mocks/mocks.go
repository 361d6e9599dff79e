package mocks

import (
	"context"

	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/stretchr/testify/mock"
)

// TokenLedger is a mock for project.TokenLedger.
type TokenLedger struct {
	mock.Mock
}

func (m *TokenLedger) TransferFrom(ctx context.Context, token, owner, spender, to string, amount uint64) error {
	args := m.Called(ctx, token, owner, spender, to, amount)
	return args.Error(0)
}

func (m *TokenLedger) Transfer(ctx context.Context, token, from, to string, amount uint64) error {
	args := m.Called(ctx, token, from, to, amount)
	return args.Error(0)
}

// TokenProvisioner is a mock for project.TokenProvisioner.
type TokenProvisioner struct {
	mock.Mock
}

func (m *TokenProvisioner) MintProjectToken(ctx context.Context, projectID string, supply uint64) (string, error) {
	args := m.Called(ctx, projectID, supply)
	return args.String(0), args.Error(1)
}

// Publisher is a mock for event.Publisher.
type Publisher struct {
	mock.Mock
}

func (m *Publisher) Publish(ctx context.Context, evt event.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// Recorder is a mock for project.Recorder.
type Recorder struct {
	mock.Mock
}

func (m *Recorder) ObserveOperation(op string, err error, seconds float64) {
	m.Called(op, err, seconds)
}

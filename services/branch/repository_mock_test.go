package main

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// MockBranchOrderRepository simula o repositório de pedidos da filial
type MockBranchOrderRepository struct {
	mock.Mock
}

func (m *MockBranchOrderRepository) Create(ctx context.Context, order *BranchOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockBranchOrderRepository) Get(ctx context.Context, id string) (*BranchOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BranchOrder), args.Error(1)
}

func (m *MockBranchOrderRepository) ListByBranch(ctx context.Context, branchID string) ([]BranchOrder, error) {
	args := m.Called(ctx, branchID)
	return args.Get(0).([]BranchOrder), args.Error(1)
}

func (m *MockBranchOrderRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*BranchOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BranchOrder), args.Error(1)
}

func (m *MockBranchOrderRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, order *BranchOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// CallInBarrier devolve (primeiraEntrega bool, err): só a primeira entrega executa fn
func (m *MockBranchOrderRepository) CallInBarrier(ctx context.Context, query url.Values, fn func(tx *sql.Tx) error) error {
	args := m.Called(ctx, query)
	if err := args.Error(1); err != nil {
		return err
	}
	if !args.Bool(0) {
		return nil
	}
	return fn(nil)
}

var _ BranchOrderRepository = (*MockBranchOrderRepository)(nil)

func barrierQuery(gid string) url.Values {
	return url.Values{
		"trans_type": {"msg"},
		"gid":        {gid},
		"branch_id":  {"01"},
		"op":         {"action"},
	}
}

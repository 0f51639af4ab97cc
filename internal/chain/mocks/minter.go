// Package mocks содержит testify-моки внешних коллабораторов.
package mocks

import (
	"context"
	"math/big"

	"github.com/stretchr/testify/mock"

	"github.com/mmeshcher/greenledger/internal/chain"
)

// Minter реализует chain.Minter на testify/mock.
type Minter struct {
	mock.Mock
}

var _ chain.Minter = (*Minter)(nil)

// Mint provides a mock function with given fields: ctx, to, amount
func (m *Minter) Mint(ctx context.Context, to string, amount *big.Int) (*chain.Receipt, error) {
	ret := m.Called(ctx, to, amount)

	var r0 *chain.Receipt
	if rf, ok := ret.Get(0).(func(context.Context, string, *big.Int) *chain.Receipt); ok {
		r0 = rf(ctx, to, amount)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*chain.Receipt)
	}

	return r0, ret.Error(1)
}

// BalanceOf provides a mock function with given fields: ctx, address
func (m *Minter) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	ret := m.Called(ctx, address)

	var r0 *big.Int
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*big.Int)
	}

	return r0, ret.Error(1)
}

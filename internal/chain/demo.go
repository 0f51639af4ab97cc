package chain

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenledger/internal/model"
)

// TokenDecimals — число знаков после запятой у токенов контрактов.
const TokenDecimals = 18

// ToBaseUnits переводит количество токенов в минимальные единицы (10^18).
func ToBaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).BigInt()
}

// DemoMinter имитирует выпуск токенов без обращения к блокчейну.
// Возвращает синтетический хэш и блок 0, балансы хранит в памяти.
type DemoMinter struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

var _ Minter = (*DemoMinter)(nil)

// NewDemoMinter создаёт демонстрационный эмитент.
func NewDemoMinter() *DemoMinter {
	return &DemoMinter{balances: make(map[string]*big.Int)}
}

// Mint увеличивает баланс адреса и возвращает синтетический хэш транзакции.
func (d *DemoMinter) Mint(_ context.Context, to string, amount *big.Int) (*Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, model.ErrInvalidAmount
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.balances[to]
	if !ok {
		current = new(big.Int)
	}
	d.balances[to] = new(big.Int).Add(current, amount)

	return &Receipt{TxHash: syntheticHash(), BlockNumber: 0}, nil
}

// BalanceOf возвращает сумму, выпущенную на адрес этим эмитентом.
func (d *DemoMinter) BalanceOf(_ context.Context, address string) (*big.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// syntheticHash собирает 32 случайных байта из двух UUID.
func syntheticHash() string {
	a, b := uuid.New(), uuid.New()
	return "0x" + hex.EncodeToString(a[:]) + hex.EncodeToString(b[:])
}

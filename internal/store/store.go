// Package store описывает контракт хранилища, общий для PostgreSQL и in-memory реализаций.
//
// Каждая внешняя операция выполняется как одна единица работы через Store.InTx.
// Все чтения и записи внутри fn изолированы от параллельных единиц работы,
// затрагивающих те же строки. Ошибка fn откатывает все изменения.
package store

import (
	"context"
	"time"

	"github.com/mmeshcher/greenledger/internal/model"
)

// Store является корневым интерфейсом слоя данных.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx объединяет все операции, доступные внутри единицы работы.
type Tx interface {
	WalletStore
	FinanceStore
	ReferenceStore
	CarbonStore
	PointsStore
	GamificationStore
	TokenStore
	MarketStore
}

// WalletStore хранит кошельки и журнал переводов.
type WalletStore interface {
	// GetWalletByHandle ищет кошелёк по точному совпадению платёжного идентификатора.
	GetWalletByHandle(ctx context.Context, handle string, forUpdate bool) (*model.Wallet, error)
	GetWalletByOwner(ctx context.Context, owner model.OwnerType, ownerID int64) (*model.Wallet, error)
	CreateWallet(ctx context.Context, w model.Wallet) (*model.Wallet, error)
	HandleTaken(ctx context.Context, handle string) (bool, error)
	SetWalletBalance(ctx context.Context, walletID int64, balance int64) error
	SumWalletBalances(ctx context.Context) (int64, error)
	CreateLedgerTransaction(ctx context.Context, t model.LedgerTransaction) (*model.LedgerTransaction, error)
	ListLedgerTransactions(ctx context.Context, handle string, limit int) ([]model.LedgerTransaction, error)
}

// FinanceStore хранит финансовые операции пользователей.
type FinanceStore interface {
	CreateFinancialTransaction(ctx context.Context, t model.FinancialTransaction) (*model.FinancialTransaction, error)
	GetFinancialTransactionByPaymentRef(ctx context.Context, ref string) (*model.FinancialTransaction, error)
	CountFinancialTransactions(ctx context.Context, userID int64) (int64, error)
	ListFinancialTransactions(ctx context.Context, userID int64, limit int) ([]model.FinancialTransaction, error)
}

// ReferenceStore хранит справочные данные и версии фикстур.
type ReferenceStore interface {
	GetEmissionFactor(ctx context.Context, category string) (*model.EmissionFactor, error)
	ListEmissionFactors(ctx context.Context) ([]model.EmissionFactor, error)
	UpsertEmissionFactor(ctx context.Context, f model.EmissionFactor) error
	UpsertBadge(ctx context.Context, b model.Badge) error
	UpsertChallenge(ctx context.Context, c model.Challenge) error
	GetFixtureVersion(ctx context.Context, name string) (int, error)
	SetFixtureVersion(ctx context.Context, name string, version int) error
}

// CarbonStore хранит углеродные записи и экономию.
type CarbonStore interface {
	CreateCarbonRecord(ctx context.Context, r model.CarbonRecord) (*model.CarbonRecord, error)
	GetCarbonRecord(ctx context.Context, id int64) (*model.CarbonRecord, error)
	CreateCarbonSaving(ctx context.Context, s model.CarbonSaving) (*model.CarbonSaving, error)
	GetSavingByRecord(ctx context.Context, recordID int64) (*model.CarbonSaving, error)
	GetSaving(ctx context.Context, id int64, forUpdate bool) (*model.CarbonSaving, error)
	ListSavings(ctx context.Context, userID int64) ([]model.CarbonSaving, error)
	SumSavings(ctx context.Context, userID int64) (float64, error)
	SumAllSavings(ctx context.Context) (float64, error)
	ListUsersWithSavings(ctx context.Context) ([]int64, error)
	ReassignSaving(ctx context.Context, savingID int64, owner model.OwnerType, ownerID int64) error
}

// PointsStore хранит баланс и журнал эко-баллов.
type PointsStore interface {
	// LockPointsBalance возвращает баланс, создавая его при отсутствии, и блокирует строку до конца единицы работы.
	LockPointsBalance(ctx context.Context, userID int64) (*model.PointsBalance, error)
	GetPointsBalance(ctx context.Context, userID int64) (*model.PointsBalance, error)
	SavePointsBalance(ctx context.Context, b model.PointsBalance) error
	CreatePointsTransaction(ctx context.Context, t model.PointsTransaction) (*model.PointsTransaction, error)
	ListPointsTransactions(ctx context.Context, userID int64, limit int) ([]model.PointsTransaction, error)
	// PointsTransactionExists проверяет наличие записи с заданным типом и описанием не ранее since.
	PointsTransactionExists(ctx context.Context, userID int64, action model.PointsAction, description string, since time.Time) (bool, error)
}

// GamificationStore хранит производное состояние геймификации.
type GamificationStore interface {
	GetEcoScore(ctx context.Context, userID int64) (*model.EcoScore, error)
	SaveEcoScore(ctx context.Context, s model.EcoScore) error
	GetUserLevel(ctx context.Context, userID int64) (*model.UserLevel, error)
	SaveUserLevel(ctx context.Context, l model.UserLevel) error
	ListBadges(ctx context.Context) ([]model.Badge, error)
	ListUserBadges(ctx context.Context, userID int64) ([]model.UserBadge, error)
	// GrantBadge выдаёт значок и возвращает false, если он уже был выдан.
	GrantBadge(ctx context.Context, userID int64, code string, at time.Time) (bool, error)
	GetStreak(ctx context.Context, userID int64) (*model.Streak, error)
	SaveStreak(ctx context.Context, s model.Streak) error
	ListActiveChallenges(ctx context.Context) ([]model.Challenge, error)
	GetChallengeProgress(ctx context.Context, userID, challengeID int64) (*model.ChallengeProgress, error)
	SaveChallengeProgress(ctx context.Context, p model.ChallengeProgress) error
	ListChallengeProgress(ctx context.Context, userID int64) ([]model.ChallengeProgress, error)
}

// TokenStore хранит адреса в блокчейне и конвертации баллов в токены.
type TokenStore interface {
	GetChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64) (string, error)
	SetChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64, address string) error
	CreateConversion(ctx context.Context, c model.Conversion) (*model.Conversion, error)
	GetConversion(ctx context.Context, id int64, forUpdate bool) (*model.Conversion, error)
	UpdateConversion(ctx context.Context, c model.Conversion) error
	ListConversions(ctx context.Context, userID int64, limit int) ([]model.Conversion, error)
	ListConversionsByStatus(ctx context.Context, status model.ConversionStatus, limit int) ([]model.Conversion, error)
}

// MarketStore хранит кредиты, лоты и заказы маркетплейса вместе с журналом расчётов.
type MarketStore interface {
	GetHolding(ctx context.Context, userID int64) (*model.CreditHolding, error)
	SaveHolding(ctx context.Context, h model.CreditHolding) error
	SumCredits(ctx context.Context) (float64, error)
	CreateListing(ctx context.Context, l model.Listing) (*model.Listing, error)
	GetListing(ctx context.Context, id int64, forUpdate bool) (*model.Listing, error)
	SetListingStatus(ctx context.Context, id int64, status model.ListingStatus) error
	ListListings(ctx context.Context, status model.ListingStatus, offset, limit int) ([]model.Listing, error)
	CreateOrder(ctx context.Context, o model.MarketOrder) (*model.MarketOrder, error)
	GetOrder(ctx context.Context, id int64, forUpdate bool) (*model.MarketOrder, error)
	SaveOrder(ctx context.Context, o model.MarketOrder) error
	ListOrders(ctx context.Context, buyerID int64) ([]model.MarketOrder, error)
	ListUnsettledOrders(ctx context.Context, limit int) ([]model.MarketOrder, error)
	CreateMarketTransaction(ctx context.Context, t model.MarketTransaction) (*model.MarketTransaction, error)
	SetCreditPrice(ctx context.Context, pricePerCredit int64, at time.Time) error
	GetCreditPrice(ctx context.Context) (int64, error)
}

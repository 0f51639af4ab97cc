// Package model содержит доменные сущности учётного ядра greenledger.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerType описывает тип владельца кошелька или углеродной экономии.
type OwnerType string

const (
	OwnerUser     OwnerType = "user"
	OwnerMerchant OwnerType = "merchant"
	OwnerCompany  OwnerType = "company"
)

// ExternalHandle обозначает внешний источник средств в журнале переводов.
const ExternalHandle = "external"

// Wallet представляет внутренний кошелёк с балансом в минимальных единицах валюты.
type Wallet struct {
	ID        int64
	OwnerType OwnerType
	OwnerID   int64
	Handle    string
	Balance   int64
	CreatedAt time.Time
}

// LedgerStatus описывает статус перевода между кошельками.
type LedgerStatus string

const (
	LedgerPending LedgerStatus = "pending"
	LedgerSuccess LedgerStatus = "success"
	LedgerFailed  LedgerStatus = "failed"
)

// LedgerTransaction описывает перевод между двумя кошельками.
type LedgerTransaction struct {
	ID             int64
	Reference      string
	SenderHandle   string
	ReceiverHandle string
	Amount         int64
	Status         LedgerStatus
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// Direction описывает направление финансовой операции.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// FinancialTransaction описывает реальный платёж пользователя.
type FinancialTransaction struct {
	ID          int64
	UserID      int64
	Amount      int64
	Currency    string
	Direction   Direction
	Category    string
	Description string
	Status      string
	PaymentRef  *string
	CreatedAt   time.Time
}

// TransactionCompleted — конечный статус финансовой операции.
const TransactionCompleted = "completed"

// EmissionFactor содержит коэффициент выбросов для категории трат.
type EmissionFactor struct {
	Category           string
	CO2PerUnit         float64
	BaselineCO2PerUnit *float64
	Unit               string
}

// CarbonRecord фиксирует рассчитанные выбросы по финансовой операции.
type CarbonRecord struct {
	ID             int64
	UserID         int64
	TransactionID  int64
	Category       string
	Amount         int64
	EmissionFactor float64
	Emission       float64
	CreatedAt      time.Time
}

// CarbonSaving фиксирует сэкономленные относительно базовой линии килограммы CO2.
type CarbonSaving struct {
	ID             int64
	UserID         int64
	CarbonRecordID int64
	SavedAmount    float64
	OwnerType      *OwnerType
	OwnerID        *int64
	CreatedAt      time.Time
}

// PointsBalance содержит баланс эко-баллов пользователя.
type PointsBalance struct {
	UserID         int64
	TotalPoints    int64
	LifetimePoints int64
	UpdatedAt      time.Time
}

// PointsAction описывает тип операции с эко-баллами.
type PointsAction string

const (
	ActionReward     PointsAction = "reward"
	ActionBonus      PointsAction = "bonus"
	ActionPenalty    PointsAction = "penalty"
	ActionRedemption PointsAction = "redemption"
)

// PointsTransaction — запись журнала изменений эко-баллов.
type PointsTransaction struct {
	ID            int64
	UserID        int64
	TransactionID *int64
	Points        int64
	Action        PointsAction
	Description   string
	CreatedAt     time.Time
}

// EcoScore — итоговая эко-оценка пользователя в диапазоне [0, 100].
type EcoScore struct {
	UserID    int64
	Score     float64
	UpdatedAt time.Time
}

// UserLevel — текущий уровень пользователя.
type UserLevel struct {
	UserID         int64
	Level          string
	PointsRequired int64
	UpdatedAt      time.Time
}

// Badge — элемент каталога значков.
type Badge struct {
	Code        string
	Name        string
	Description string
}

// UserBadge фиксирует первое получение значка пользователем.
type UserBadge struct {
	UserID    int64
	Code      string
	AwardedAt time.Time
}

// Streak — серия дней с эко-активностью.
type Streak struct {
	UserID       int64
	Current      int
	Longest      int
	LastActivity time.Time
}

// ChallengeType описывает метрику, по которой считается прогресс челленджа.
type ChallengeType string

const (
	ChallengeTransactions ChallengeType = "transactions_count"
	ChallengeCarbonSaved  ChallengeType = "carbon_saved"
	ChallengePointsEarned ChallengeType = "points_earned"
)

// Challenge — элемент каталога челленджей.
type Challenge struct {
	ID           int64
	Code         string
	Name         string
	Description  string
	Type         ChallengeType
	Goal         float64
	RewardPoints int64
	Active       bool
}

// ChallengeProgress — прогресс пользователя по челленджу.
type ChallengeProgress struct {
	UserID      int64
	ChallengeID int64
	Progress    float64
	Completed   bool
	CompletedAt *time.Time
}

// CreditHolding — производное от экономии количество углеродных кредитов пользователя.
type CreditHolding struct {
	UserID    int64
	CarbonKg  float64
	Credits   float64
	UpdatedAt time.Time
}

// ListingStatus описывает статус лота на маркетплейсе.
type ListingStatus string

const (
	ListingPending   ListingStatus = "pending"
	ListingAvailable ListingStatus = "available"
	ListingSold      ListingStatus = "sold"
	ListingRejected  ListingStatus = "rejected"
)

// Listing — лот продажи углеродных кредитов. Цена указана в минимальных единицах за кредит.
type Listing struct {
	ID             int64
	SellerID       int64
	SavingID       int64
	CreditAmount   float64
	PricePerCredit int64
	Status         ListingStatus
	CreatedAt      time.Time
}

// OrderStatus описывает статус заказа на покупку кредитов.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

// MarketOrder — заказ компании на покупку лота.
type MarketOrder struct {
	ID           int64
	BuyerID      int64
	ListingID    int64
	CreditAmount float64
	TotalPrice   int64
	Status       OrderStatus
	PaymentRef   *string
	TransferHash *string
	Settled      bool
	// Момент захвата заказа для выпуска кредитов; nil, если расчёт не выполняется.
	SettlingAt  *time.Time
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// MarketTransaction — запись журнала расчётов маркетплейса.
type MarketTransaction struct {
	ID           int64
	OrderID      int64
	ListingID    int64
	SellerID     int64
	BuyerID      int64
	CreditAmount float64
	TotalPrice   int64
	TransferHash string
	CreatedAt    time.Time
}

// ConversionStatus описывает состояние конвертации баллов в токены.
type ConversionStatus string

const (
	ConversionRequested  ConversionStatus = "requested"
	ConversionDebited    ConversionStatus = "debited"
	ConversionMinted     ConversionStatus = "minted"
	ConversionMintFailed ConversionStatus = "mint_failed"
)

// Conversion — конвертация эко-баллов в токены.
type Conversion struct {
	ID          int64
	UserID      int64
	Points      int64
	TokenAmount decimal.Decimal
	Address     string
	TxHash      string
	BlockNumber uint64
	Status      ConversionStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

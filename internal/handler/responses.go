package handler

import (
	"time"

	"github.com/mmeshcher/greenledger/internal/gamification"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/service"
)

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

type walletResponse struct {
	Handle  string `json:"handle"`
	Balance int64  `json:"balance"`
}

type ledgerResponse struct {
	Reference   string `json:"reference"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func toLedger(t model.LedgerTransaction) ledgerResponse {
	return ledgerResponse{
		Reference:   t.Reference,
		Sender:      t.SenderHandle,
		Receiver:    t.ReceiverHandle,
		Amount:      t.Amount,
		Status:      string(t.Status),
		CreatedAt:   formatTime(t.CreatedAt),
		CompletedAt: formatTimePtr(t.CompletedAt),
	}
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Direction   string `json:"direction"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Status      string `json:"status"`
	PaymentRef  string `json:"payment_ref,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toTransaction(t model.FinancialTransaction) transactionResponse {
	res := transactionResponse{
		ID:          t.ID,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Direction:   string(t.Direction),
		Category:    t.Category,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   formatTime(t.CreatedAt),
	}
	if t.PaymentRef != nil {
		res.PaymentRef = *t.PaymentRef
	}
	return res
}

type paymentResponse struct {
	Transaction   transactionResponse `json:"transaction"`
	Transfer      *ledgerResponse     `json:"transfer,omitempty"`
	Emission      float64             `json:"emission_kg"`
	Saved         float64             `json:"saved_kg"`
	PointsAwarded int64               `json:"points_awarded"`
	Duplicate     bool                `json:"duplicate"`
}

func toPayment(p *service.PaymentResult) paymentResponse {
	res := paymentResponse{
		Transaction:   toTransaction(*p.Transaction),
		PointsAwarded: p.PointsAwarded,
		Duplicate:     p.Duplicate,
	}
	if p.Transfer != nil {
		lt := toLedger(*p.Transfer)
		res.Transfer = &lt
	}
	if p.Record != nil {
		res.Emission = p.Record.Emission
	}
	if p.Saving != nil {
		res.Saved = p.Saving.SavedAmount
	}
	return res
}

type savingResponse struct {
	ID        int64   `json:"id"`
	RecordID  int64   `json:"record_id"`
	Saved     float64 `json:"saved_kg"`
	Owner     string  `json:"owner,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type savingsResponse struct {
	TotalKg float64          `json:"total_kg"`
	Items   []savingResponse `json:"items"`
}

func toSavings(s *service.Savings) savingsResponse {
	res := savingsResponse{TotalKg: s.TotalKg, Items: make([]savingResponse, 0, len(s.Items))}
	for _, sv := range s.Items {
		item := savingResponse{
			ID:        sv.ID,
			RecordID:  sv.CarbonRecordID,
			Saved:     sv.SavedAmount,
			CreatedAt: formatTime(sv.CreatedAt),
		}
		if sv.OwnerType != nil {
			item.Owner = string(*sv.OwnerType)
		}
		res.Items = append(res.Items, item)
	}
	return res
}

type pointsBalanceResponse struct {
	Total    int64 `json:"total"`
	Lifetime int64 `json:"lifetime"`
}

type pointsTxResponse struct {
	ID            int64  `json:"id"`
	Points        int64  `json:"points"`
	Action        string `json:"action"`
	Description   string `json:"description"`
	TransactionID *int64 `json:"transaction_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type convertibleResponse struct {
	Available int64 `json:"available"`
	Remainder int64 `json:"remainder"`
	Threshold int64 `json:"threshold"`
}

type conversionResponse struct {
	ID          int64  `json:"id"`
	Points      int64  `json:"points"`
	Tokens      string `json:"tokens"`
	Address     string `json:"address"`
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Attempts    int    `json:"attempts"`
	CreatedAt   string `json:"created_at"`
}

func toConversion(c model.Conversion) conversionResponse {
	return conversionResponse{
		ID:          c.ID,
		Points:      c.Points,
		Tokens:      c.TokenAmount.String(),
		Address:     c.Address,
		Status:      string(c.Status),
		TxHash:      c.TxHash,
		BlockNumber: c.BlockNumber,
		Attempts:    c.Attempts,
		CreatedAt:   formatTime(c.CreatedAt),
	}
}

type badgeResponse struct {
	Code      string `json:"code"`
	AwardedAt string `json:"awarded_at"`
}

type challengeResponse struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Goal      float64 `json:"goal"`
	Reward    int64   `json:"reward_points"`
	Progress  float64 `json:"progress"`
	Completed bool    `json:"completed"`
}

type profileResponse struct {
	Score          float64             `json:"eco_score"`
	Level          string              `json:"level"`
	LevelThreshold int64               `json:"level_threshold"`
	CurrentStreak  int                 `json:"current_streak"`
	LongestStreak  int                 `json:"longest_streak"`
	Badges         []badgeResponse     `json:"badges"`
	Challenges     []challengeResponse `json:"challenges"`
}

func toProfile(p *gamification.Profile) profileResponse {
	res := profileResponse{
		Score:          p.Score,
		Level:          p.Level.Name,
		LevelThreshold: p.Level.Threshold,
		CurrentStreak:  p.Streak.Current,
		LongestStreak:  p.Streak.Longest,
		Badges:         make([]badgeResponse, 0, len(p.Badges)),
		Challenges:     make([]challengeResponse, 0, len(p.Challenges)),
	}
	for _, b := range p.Badges {
		res.Badges = append(res.Badges, badgeResponse{Code: b.Code, AwardedAt: formatTime(b.AwardedAt)})
	}
	for _, c := range p.Challenges {
		res.Challenges = append(res.Challenges, challengeResponse{
			Code:      c.Challenge.Code,
			Name:      c.Challenge.Name,
			Type:      string(c.Challenge.Type),
			Goal:      c.Challenge.Goal,
			Reward:    c.Challenge.RewardPoints,
			Progress:  c.Progress.Progress,
			Completed: c.Progress.Completed,
		})
	}
	return res
}

type listingResponse struct {
	ID             int64   `json:"id"`
	SellerID       int64   `json:"seller_id"`
	SavingID       int64   `json:"saving_id"`
	Credits        float64 `json:"credits"`
	PricePerCredit int64   `json:"price_per_credit"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
}

func toListing(l model.Listing) listingResponse {
	return listingResponse{
		ID:             l.ID,
		SellerID:       l.SellerID,
		SavingID:       l.SavingID,
		Credits:        l.CreditAmount,
		PricePerCredit: l.PricePerCredit,
		Status:         string(l.Status),
		CreatedAt:      formatTime(l.CreatedAt),
	}
}

type orderResponse struct {
	ID           int64   `json:"id"`
	ListingID    int64   `json:"listing_id"`
	Credits      float64 `json:"credits"`
	TotalPrice   int64   `json:"total_price"`
	Status       string  `json:"status"`
	Settled      bool    `json:"settled"`
	TransferHash string  `json:"transfer_hash,omitempty"`
	CreatedAt    string  `json:"created_at"`
	CompletedAt  string  `json:"completed_at,omitempty"`
}

func toOrder(o model.MarketOrder) orderResponse {
	res := orderResponse{
		ID:          o.ID,
		ListingID:   o.ListingID,
		Credits:     o.CreditAmount,
		TotalPrice:  o.TotalPrice,
		Status:      string(o.Status),
		Settled:     o.Settled,
		CreatedAt:   formatTime(o.CreatedAt),
		CompletedAt: formatTimePtr(o.CompletedAt),
	}
	if o.TransferHash != nil {
		res.TransferHash = *o.TransferHash
	}
	return res
}

type creditsResponse struct {
	CarbonKg float64 `json:"carbon_kg"`
	Credits  float64 `json:"credits"`
}

type mintResponse struct {
	Minted string `json:"minted"`
	TxHash string `json:"tx_hash,omitempty"`
}

type summaryResponse struct {
	TotalSavedKg  float64 `json:"total_saved_kg"`
	TotalCredits  float64 `json:"total_credits"`
	IssuedCredits float64 `json:"issued_credits"`
	KgPerCredit   float64 `json:"kg_per_credit"`
}

type priceResponse struct {
	PricePerCredit int64 `json:"price_per_credit"`
}

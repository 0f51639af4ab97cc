// Package memstore реализует store.Store в памяти процесса.
//
// Используется, когда DATABASE_URI не задан, и в тестах бизнес-логики.
// Единицы работы выполняются строго последовательно; каждая работает с копией состояния,
// которая публикуется только при успешном завершении.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
)

type ownerKey struct {
	owner model.OwnerType
	id    int64
}

type badgeKey struct {
	userID int64
	code   string
}

type progressKey struct {
	userID      int64
	challengeID int64
}

type priceEntry struct {
	price int64
	at    time.Time
}

type state struct {
	seq         map[string]int64
	wallets     map[int64]model.Wallet
	ledger      []model.LedgerTransaction
	finTxs      []model.FinancialTransaction
	factors     map[string]model.EmissionFactor
	badges      map[string]model.Badge
	challenges  map[int64]model.Challenge
	fixtures    map[string]int
	records     map[int64]model.CarbonRecord
	savings     map[int64]model.CarbonSaving
	balances    map[int64]model.PointsBalance
	pointsTxs   []model.PointsTransaction
	scores      map[int64]model.EcoScore
	levels      map[int64]model.UserLevel
	userBadges  map[badgeKey]time.Time
	streaks     map[int64]model.Streak
	progress    map[progressKey]model.ChallengeProgress
	addresses   map[ownerKey]string
	conversions map[int64]model.Conversion
	holdings    map[int64]model.CreditHolding
	listings    map[int64]model.Listing
	orders      map[int64]model.MarketOrder
	marketTxs   []model.MarketTransaction
	prices      []priceEntry
}

func newState() *state {
	return &state{
		seq:         map[string]int64{},
		wallets:     map[int64]model.Wallet{},
		factors:     map[string]model.EmissionFactor{},
		badges:      map[string]model.Badge{},
		challenges:  map[int64]model.Challenge{},
		fixtures:    map[string]int{},
		records:     map[int64]model.CarbonRecord{},
		savings:     map[int64]model.CarbonSaving{},
		balances:    map[int64]model.PointsBalance{},
		scores:      map[int64]model.EcoScore{},
		levels:      map[int64]model.UserLevel{},
		userBadges:  map[badgeKey]time.Time{},
		streaks:     map[int64]model.Streak{},
		progress:    map[progressKey]model.ChallengeProgress{},
		addresses:   map[ownerKey]string{},
		conversions: map[int64]model.Conversion{},
		holdings:    map[int64]model.CreditHolding{},
		listings:    map[int64]model.Listing{},
		orders:      map[int64]model.MarketOrder{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:         maps.Clone(s.seq),
		wallets:     maps.Clone(s.wallets),
		ledger:      slices.Clone(s.ledger),
		finTxs:      slices.Clone(s.finTxs),
		factors:     maps.Clone(s.factors),
		badges:      maps.Clone(s.badges),
		challenges:  maps.Clone(s.challenges),
		fixtures:    maps.Clone(s.fixtures),
		records:     maps.Clone(s.records),
		savings:     maps.Clone(s.savings),
		balances:    maps.Clone(s.balances),
		pointsTxs:   slices.Clone(s.pointsTxs),
		scores:      maps.Clone(s.scores),
		levels:      maps.Clone(s.levels),
		userBadges:  maps.Clone(s.userBadges),
		streaks:     maps.Clone(s.streaks),
		progress:    maps.Clone(s.progress),
		addresses:   maps.Clone(s.addresses),
		conversions: maps.Clone(s.conversions),
		holdings:    maps.Clone(s.holdings),
		listings:    maps.Clone(s.listings),
		orders:      maps.Clone(s.orders),
		marketTxs:   slices.Clone(s.marketTxs),
		prices:      slices.Clone(s.prices),
	}
}

func (s *state) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

// Store реализует store.Store в памяти процесса.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{state: newState()}
}

// InTx выполняет fn над копией состояния и публикует её, если fn не вернула ошибку.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.state.clone()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.state = t.st
	return nil
}

// Close ничего не делает.
func (s *Store) Close() error {
	return nil
}

type tx struct {
	st *state
}

var _ store.Tx = (*tx)(nil)

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// --- кошельки ---

func (t *tx) GetWalletByHandle(_ context.Context, handle string, _ bool) (*model.Wallet, error) {
	for _, w := range t.st.wallets {
		if w.Handle == handle {
			return &w, nil
		}
	}
	return nil, model.ErrNotFound
}

func (t *tx) GetWalletByOwner(_ context.Context, owner model.OwnerType, ownerID int64) (*model.Wallet, error) {
	for _, w := range t.st.wallets {
		if w.OwnerType == owner && w.OwnerID == ownerID {
			return &w, nil
		}
	}
	return nil, model.ErrNotFound
}

func (t *tx) CreateWallet(ctx context.Context, w model.Wallet) (*model.Wallet, error) {
	for _, existing := range t.st.wallets {
		if existing.Handle == w.Handle || (existing.OwnerType == w.OwnerType && existing.OwnerID == w.OwnerID) {
			return nil, model.ErrConflict
		}
	}
	w.ID = t.st.next("wallets")
	w.CreatedAt = stamp(w.CreatedAt)
	t.st.wallets[w.ID] = w
	return &w, nil
}

func (t *tx) HandleTaken(ctx context.Context, handle string) (bool, error) {
	_, err := t.GetWalletByHandle(ctx, handle, false)
	return err == nil, nil
}

func (t *tx) SetWalletBalance(_ context.Context, walletID int64, balance int64) error {
	w, ok := t.st.wallets[walletID]
	if !ok {
		return model.ErrNotFound
	}
	w.Balance = balance
	t.st.wallets[walletID] = w
	return nil
}

func (t *tx) SumWalletBalances(context.Context) (int64, error) {
	var sum int64
	for _, w := range t.st.wallets {
		sum += w.Balance
	}
	return sum, nil
}

func (t *tx) CreateLedgerTransaction(_ context.Context, lt model.LedgerTransaction) (*model.LedgerTransaction, error) {
	lt.ID = t.st.next("ledger")
	lt.CreatedAt = stamp(lt.CreatedAt)
	t.st.ledger = append(t.st.ledger, lt)
	return &lt, nil
}

func (t *tx) ListLedgerTransactions(_ context.Context, handle string, limit int) ([]model.LedgerTransaction, error) {
	var res []model.LedgerTransaction
	for i := len(t.st.ledger) - 1; i >= 0; i-- {
		lt := t.st.ledger[i]
		if lt.SenderHandle == handle || lt.ReceiverHandle == handle {
			res = append(res, lt)
		}
	}
	return limitSlice(res, limit), nil
}

// --- финансовые операции ---

func (t *tx) CreateFinancialTransaction(_ context.Context, ft model.FinancialTransaction) (*model.FinancialTransaction, error) {
	if ft.PaymentRef != nil {
		for _, existing := range t.st.finTxs {
			if existing.PaymentRef != nil && *existing.PaymentRef == *ft.PaymentRef {
				return nil, model.ErrConflict
			}
		}
	}
	ft.ID = t.st.next("financial_transactions")
	ft.CreatedAt = stamp(ft.CreatedAt)
	t.st.finTxs = append(t.st.finTxs, ft)
	return &ft, nil
}

func (t *tx) GetFinancialTransactionByPaymentRef(_ context.Context, ref string) (*model.FinancialTransaction, error) {
	for _, ft := range t.st.finTxs {
		if ft.PaymentRef != nil && *ft.PaymentRef == ref {
			return &ft, nil
		}
	}
	return nil, model.ErrNotFound
}

func (t *tx) CountFinancialTransactions(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, ft := range t.st.finTxs {
		if ft.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *tx) ListFinancialTransactions(_ context.Context, userID int64, limit int) ([]model.FinancialTransaction, error) {
	var res []model.FinancialTransaction
	for i := len(t.st.finTxs) - 1; i >= 0; i-- {
		if t.st.finTxs[i].UserID == userID {
			res = append(res, t.st.finTxs[i])
		}
	}
	return limitSlice(res, limit), nil
}

// --- справочники ---

func (t *tx) GetEmissionFactor(_ context.Context, category string) (*model.EmissionFactor, error) {
	f, ok := t.st.factors[category]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &f, nil
}

func (t *tx) ListEmissionFactors(context.Context) ([]model.EmissionFactor, error) {
	res := slices.Collect(maps.Values(t.st.factors))
	sort.Slice(res, func(i, j int) bool { return res[i].Category < res[j].Category })
	return res, nil
}

func (t *tx) UpsertEmissionFactor(_ context.Context, f model.EmissionFactor) error {
	t.st.factors[f.Category] = f
	return nil
}

func (t *tx) UpsertBadge(_ context.Context, b model.Badge) error {
	t.st.badges[b.Code] = b
	return nil
}

func (t *tx) UpsertChallenge(_ context.Context, c model.Challenge) error {
	for id, existing := range t.st.challenges {
		if existing.Code == c.Code {
			c.ID = id
			t.st.challenges[id] = c
			return nil
		}
	}
	c.ID = t.st.next("challenges")
	t.st.challenges[c.ID] = c
	return nil
}

func (t *tx) GetFixtureVersion(_ context.Context, name string) (int, error) {
	return t.st.fixtures[name], nil
}

func (t *tx) SetFixtureVersion(_ context.Context, name string, version int) error {
	t.st.fixtures[name] = version
	return nil
}

// --- углерод ---

func (t *tx) CreateCarbonRecord(_ context.Context, r model.CarbonRecord) (*model.CarbonRecord, error) {
	for _, existing := range t.st.records {
		if existing.TransactionID == r.TransactionID {
			return nil, model.ErrConflict
		}
	}
	r.ID = t.st.next("carbon_records")
	r.CreatedAt = stamp(r.CreatedAt)
	t.st.records[r.ID] = r
	return &r, nil
}

func (t *tx) GetCarbonRecord(_ context.Context, id int64) (*model.CarbonRecord, error) {
	r, ok := t.st.records[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (t *tx) CreateCarbonSaving(_ context.Context, s model.CarbonSaving) (*model.CarbonSaving, error) {
	if s.SavedAmount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	for _, existing := range t.st.savings {
		if existing.CarbonRecordID == s.CarbonRecordID {
			return nil, model.ErrConflict
		}
	}
	s.ID = t.st.next("carbon_savings")
	s.CreatedAt = stamp(s.CreatedAt)
	t.st.savings[s.ID] = s
	return &s, nil
}

func (t *tx) GetSavingByRecord(_ context.Context, recordID int64) (*model.CarbonSaving, error) {
	for _, s := range t.st.savings {
		if s.CarbonRecordID == recordID {
			return &s, nil
		}
	}
	return nil, model.ErrNotFound
}

func (t *tx) GetSaving(_ context.Context, id int64, _ bool) (*model.CarbonSaving, error) {
	s, ok := t.st.savings[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &s, nil
}

func (t *tx) ListSavings(_ context.Context, userID int64) ([]model.CarbonSaving, error) {
	var res []model.CarbonSaving
	for _, s := range t.st.savings {
		if s.UserID == userID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (t *tx) SumSavings(_ context.Context, userID int64) (float64, error) {
	var sum float64
	for _, s := range t.st.savings {
		if s.UserID == userID {
			sum += s.SavedAmount
		}
	}
	return sum, nil
}

func (t *tx) SumAllSavings(context.Context) (float64, error) {
	var sum float64
	for _, s := range t.st.savings {
		sum += s.SavedAmount
	}
	return sum, nil
}

func (t *tx) ListUsersWithSavings(context.Context) ([]int64, error) {
	seen := map[int64]struct{}{}
	for _, s := range t.st.savings {
		seen[s.UserID] = struct{}{}
	}
	res := slices.Collect(maps.Keys(seen))
	slices.Sort(res)
	return res, nil
}

func (t *tx) ReassignSaving(_ context.Context, savingID int64, owner model.OwnerType, ownerID int64) error {
	s, ok := t.st.savings[savingID]
	if !ok {
		return model.ErrNotFound
	}
	s.OwnerType = &owner
	s.OwnerID = &ownerID
	t.st.savings[savingID] = s
	return nil
}

// --- эко-баллы ---

func (t *tx) LockPointsBalance(_ context.Context, userID int64) (*model.PointsBalance, error) {
	b, ok := t.st.balances[userID]
	if !ok {
		b = model.PointsBalance{UserID: userID, UpdatedAt: time.Now().UTC()}
		t.st.balances[userID] = b
	}
	return &b, nil
}

func (t *tx) GetPointsBalance(_ context.Context, userID int64) (*model.PointsBalance, error) {
	b, ok := t.st.balances[userID]
	if !ok {
		return &model.PointsBalance{UserID: userID}, nil
	}
	return &b, nil
}

func (t *tx) SavePointsBalance(_ context.Context, b model.PointsBalance) error {
	b.UpdatedAt = stamp(b.UpdatedAt)
	t.st.balances[b.UserID] = b
	return nil
}

func (t *tx) CreatePointsTransaction(_ context.Context, pt model.PointsTransaction) (*model.PointsTransaction, error) {
	pt.ID = t.st.next("points_transactions")
	pt.CreatedAt = stamp(pt.CreatedAt)
	t.st.pointsTxs = append(t.st.pointsTxs, pt)
	return &pt, nil
}

func (t *tx) ListPointsTransactions(_ context.Context, userID int64, limit int) ([]model.PointsTransaction, error) {
	var res []model.PointsTransaction
	for i := len(t.st.pointsTxs) - 1; i >= 0; i-- {
		if t.st.pointsTxs[i].UserID == userID {
			res = append(res, t.st.pointsTxs[i])
		}
	}
	return limitSlice(res, limit), nil
}

func (t *tx) PointsTransactionExists(_ context.Context, userID int64, action model.PointsAction, description string, since time.Time) (bool, error) {
	for _, pt := range t.st.pointsTxs {
		if pt.UserID == userID && pt.Action == action && pt.Description == description && !pt.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// --- геймификация ---

func (t *tx) GetEcoScore(_ context.Context, userID int64) (*model.EcoScore, error) {
	s, ok := t.st.scores[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &s, nil
}

func (t *tx) SaveEcoScore(_ context.Context, s model.EcoScore) error {
	t.st.scores[s.UserID] = s
	return nil
}

func (t *tx) GetUserLevel(_ context.Context, userID int64) (*model.UserLevel, error) {
	l, ok := t.st.levels[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &l, nil
}

func (t *tx) SaveUserLevel(_ context.Context, l model.UserLevel) error {
	t.st.levels[l.UserID] = l
	return nil
}

func (t *tx) ListBadges(context.Context) ([]model.Badge, error) {
	res := slices.Collect(maps.Values(t.st.badges))
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (t *tx) ListUserBadges(_ context.Context, userID int64) ([]model.UserBadge, error) {
	var res []model.UserBadge
	for k, at := range t.st.userBadges {
		if k.userID == userID {
			res = append(res, model.UserBadge{UserID: userID, Code: k.code, AwardedAt: at})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (t *tx) GrantBadge(_ context.Context, userID int64, code string, at time.Time) (bool, error) {
	if _, ok := t.st.badges[code]; !ok {
		return false, model.ErrNotFound
	}
	key := badgeKey{userID: userID, code: code}
	if _, ok := t.st.userBadges[key]; ok {
		return false, nil
	}
	t.st.userBadges[key] = stamp(at)
	return true, nil
}

func (t *tx) GetStreak(_ context.Context, userID int64) (*model.Streak, error) {
	s, ok := t.st.streaks[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &s, nil
}

func (t *tx) SaveStreak(_ context.Context, s model.Streak) error {
	t.st.streaks[s.UserID] = s
	return nil
}

func (t *tx) ListActiveChallenges(context.Context) ([]model.Challenge, error) {
	var res []model.Challenge
	for _, c := range t.st.challenges {
		if c.Active {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (t *tx) GetChallengeProgress(_ context.Context, userID, challengeID int64) (*model.ChallengeProgress, error) {
	p, ok := t.st.progress[progressKey{userID: userID, challengeID: challengeID}]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

func (t *tx) SaveChallengeProgress(_ context.Context, p model.ChallengeProgress) error {
	t.st.progress[progressKey{userID: p.UserID, challengeID: p.ChallengeID}] = p
	return nil
}

func (t *tx) ListChallengeProgress(_ context.Context, userID int64) ([]model.ChallengeProgress, error) {
	var res []model.ChallengeProgress
	for k, p := range t.st.progress {
		if k.userID == userID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ChallengeID < res[j].ChallengeID })
	return res, nil
}

// --- токены ---

func (t *tx) GetChainAddress(_ context.Context, owner model.OwnerType, ownerID int64) (string, error) {
	addr, ok := t.st.addresses[ownerKey{owner: owner, id: ownerID}]
	if !ok {
		return "", model.ErrNotFound
	}
	return addr, nil
}

func (t *tx) SetChainAddress(_ context.Context, owner model.OwnerType, ownerID int64, address string) error {
	t.st.addresses[ownerKey{owner: owner, id: ownerID}] = address
	return nil
}

func (t *tx) CreateConversion(_ context.Context, c model.Conversion) (*model.Conversion, error) {
	c.ID = t.st.next("conversions")
	c.CreatedAt = stamp(c.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	t.st.conversions[c.ID] = c
	return &c, nil
}

func (t *tx) GetConversion(_ context.Context, id int64, _ bool) (*model.Conversion, error) {
	c, ok := t.st.conversions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &c, nil
}

func (t *tx) UpdateConversion(_ context.Context, c model.Conversion) error {
	if _, ok := t.st.conversions[c.ID]; !ok {
		return model.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	t.st.conversions[c.ID] = c
	return nil
}

func (t *tx) ListConversions(_ context.Context, userID int64, limit int) ([]model.Conversion, error) {
	var res []model.Conversion
	for _, c := range t.st.conversions {
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return limitSlice(res, limit), nil
}

func (t *tx) ListConversionsByStatus(_ context.Context, status model.ConversionStatus, limit int) ([]model.Conversion, error) {
	var res []model.Conversion
	for _, c := range t.st.conversions {
		if c.Status == status {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return limitSlice(res, limit), nil
}

// --- маркетплейс ---

func (t *tx) GetHolding(_ context.Context, userID int64) (*model.CreditHolding, error) {
	h, ok := t.st.holdings[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &h, nil
}

func (t *tx) SaveHolding(_ context.Context, h model.CreditHolding) error {
	t.st.holdings[h.UserID] = h
	return nil
}

func (t *tx) SumCredits(context.Context) (float64, error) {
	var sum float64
	for _, h := range t.st.holdings {
		sum += h.Credits
	}
	return sum, nil
}

func (t *tx) CreateListing(_ context.Context, l model.Listing) (*model.Listing, error) {
	l.ID = t.st.next("listings")
	l.CreatedAt = stamp(l.CreatedAt)
	t.st.listings[l.ID] = l
	return &l, nil
}

func (t *tx) GetListing(_ context.Context, id int64, _ bool) (*model.Listing, error) {
	l, ok := t.st.listings[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &l, nil
}

func (t *tx) SetListingStatus(_ context.Context, id int64, status model.ListingStatus) error {
	l, ok := t.st.listings[id]
	if !ok {
		return model.ErrNotFound
	}
	l.Status = status
	t.st.listings[id] = l
	return nil
}

func (t *tx) ListListings(_ context.Context, status model.ListingStatus, offset, limit int) ([]model.Listing, error) {
	var res []model.Listing
	for _, l := range t.st.listings {
		if l.Status == status {
			res = append(res, l)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	if offset >= len(res) {
		return nil, nil
	}
	return limitSlice(res[offset:], limit), nil
}

func (t *tx) CreateOrder(_ context.Context, o model.MarketOrder) (*model.MarketOrder, error) {
	for _, existing := range t.st.orders {
		if existing.ListingID == o.ListingID {
			return nil, model.ErrConflict
		}
	}
	o.ID = t.st.next("orders")
	o.CreatedAt = stamp(o.CreatedAt)
	t.st.orders[o.ID] = o
	return &o, nil
}

func (t *tx) GetOrder(_ context.Context, id int64, _ bool) (*model.MarketOrder, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &o, nil
}

func (t *tx) SaveOrder(_ context.Context, o model.MarketOrder) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return model.ErrNotFound
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) ListOrders(_ context.Context, buyerID int64) ([]model.MarketOrder, error) {
	var res []model.MarketOrder
	for _, o := range t.st.orders {
		if o.BuyerID == buyerID {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (t *tx) ListUnsettledOrders(_ context.Context, limit int) ([]model.MarketOrder, error) {
	var res []model.MarketOrder
	for _, o := range t.st.orders {
		if o.Status == model.OrderCompleted && !o.Settled {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return limitSlice(res, limit), nil
}

func (t *tx) CreateMarketTransaction(_ context.Context, mt model.MarketTransaction) (*model.MarketTransaction, error) {
	mt.ID = t.st.next("market_transactions")
	mt.CreatedAt = stamp(mt.CreatedAt)
	t.st.marketTxs = append(t.st.marketTxs, mt)
	return &mt, nil
}

func (t *tx) SetCreditPrice(_ context.Context, pricePerCredit int64, at time.Time) error {
	t.st.prices = append(t.st.prices, priceEntry{price: pricePerCredit, at: stamp(at)})
	return nil
}

func (t *tx) GetCreditPrice(context.Context) (int64, error) {
	if len(t.st.prices) == 0 {
		return 0, model.ErrNotFound
	}
	return t.st.prices[len(t.st.prices)-1].price, nil
}

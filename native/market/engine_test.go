package market

import (
	"errors"
	"math/big"
	"testing"

	"premarket/core/events"
	"premarket/native/ledger"
)

var (
	makerAddr    = [20]byte{0x01}
	takerAddr    = [20]byte{0x02}
	referrerAddr = [20]byte{0x03}
	operatorAddr = [20]byte{0x04}
	tokenAddr    = [20]byte{0xA0}
	pointToken   = [20]byte{0xB0}
)

type mockState struct {
	seq    uint64
	offers map[[32]byte]*Offer
	stocks map[[32]byte]*Stock
	makers map[[32]byte]*Maker
}

func newMockState() *mockState {
	return &mockState{
		offers: make(map[[32]byte]*Offer),
		stocks: make(map[[32]byte]*Stock),
		makers: make(map[[32]byte]*Maker),
	}
}

func (m *mockState) NextSequence() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) OfferPut(offer *Offer) error {
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return err
	}
	m.offers[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) OfferGet(id [32]byte) (*Offer, bool, error) {
	offer, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return offer.Clone(), true, nil
}

func (m *mockState) StockPut(stock *Stock) error {
	sanitized, err := SanitizeStock(stock)
	if err != nil {
		return err
	}
	m.stocks[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) StockGet(id [32]byte) (*Stock, bool, error) {
	stock, ok := m.stocks[id]
	if !ok {
		return nil, false, nil
	}
	return stock.Clone(), true, nil
}

func (m *mockState) MakerPut(maker *Maker) error {
	m.makers[maker.ID] = maker.Clone()
	return nil
}

func (m *mockState) MakerGet(id [32]byte) (*Maker, bool, error) {
	maker, ok := m.makers[id]
	if !ok {
		return nil, false, nil
	}
	return maker.Clone(), true, nil
}

type mockRegistry struct {
	markets   map[[32]byte]*MarketPlace
	referrals map[[20]byte]*ReferralInfo
	feeRates  map[[20]byte]uint64
	baseFee   uint64
	taxCap    uint64
	operators map[[20]byte]bool
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		markets:   make(map[[32]byte]*MarketPlace),
		referrals: make(map[[20]byte]*ReferralInfo),
		feeRates:  make(map[[20]byte]uint64),
		baseFee:   100,
		taxCap:    500,
		operators: make(map[[20]byte]bool),
	}
}

func (m *mockRegistry) MarketPlaceInfo(id [32]byte) (*MarketPlace, bool, error) {
	mp, ok := m.markets[id]
	if !ok {
		return nil, false, nil
	}
	return mp.Clone(), true, nil
}

func (m *mockRegistry) ReferralInfo(user [20]byte) (*ReferralInfo, bool, error) {
	info, ok := m.referrals[user]
	if !ok {
		return nil, false, nil
	}
	return info, true, nil
}

func (m *mockRegistry) PlatformFeeRate(user [20]byte) (uint64, error) {
	if rate, ok := m.feeRates[user]; ok {
		return rate, nil
	}
	return m.baseFee, nil
}

func (m *mockRegistry) TradeTaxCap() uint64 { return m.taxCap }

func (m *mockRegistry) IsOperator(user [20]byte) bool { return m.operators[user] }

type tillCall struct {
	payer      [20]byte
	token      [20]byte
	amount     *big.Int
	pointToken bool
}

type creditCall struct {
	category ledger.BalanceCategory
	to       [20]byte
	token    [20]byte
	amount   *big.Int
}

type mockLedger struct {
	tills   []tillCall
	credits []creditCall
}

func (l *mockLedger) TillIn(payer, token [20]byte, amount *big.Int, isPointToken bool) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	l.tills = append(l.tills, tillCall{payer: payer, token: token, amount: new(big.Int).Set(amount), pointToken: isPointToken})
	return nil
}

func (l *mockLedger) AddTokenBalance(category ledger.BalanceCategory, to, token [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	l.credits = append(l.credits, creditCall{category: category, to: to, token: token, amount: new(big.Int).Set(amount)})
	return nil
}

func (l *mockLedger) tilled(payer [20]byte) *big.Int {
	total := big.NewInt(0)
	for _, call := range l.tills {
		if call.payer == payer {
			total.Add(total, call.amount)
		}
	}
	return total
}

func (l *mockLedger) credited(category string, to [20]byte) *big.Int {
	total := big.NewInt(0)
	for _, call := range l.credits {
		if call.category.String() == category && call.to == to {
			total.Add(total, call.amount)
		}
	}
	return total
}

type testEnv struct {
	state    *mockState
	registry *mockRegistry
	ledger   *mockLedger
	engine   *Engine
	delivery *DeliveryEngine
	mp       *MarketPlace
	now      int64
}

const (
	testTGE    int64 = 2_000
	testPeriod int64 = 1_000
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:    newMockState(),
		registry: newMockRegistry(),
		ledger:   &mockLedger{},
		now:      1_000,
	}
	env.mp = &MarketPlace{
		ID:               MarketPlaceID("pts"),
		Name:             "pts",
		Status:           MarketOnline,
		TokenAddress:     pointToken,
		TokenPerPoint:    big.NewInt(2),
		TGE:              testTGE,
		SettlementPeriod: testPeriod,
	}
	env.registry.markets[env.mp.ID] = env.mp
	env.registry.operators[operatorAddr] = true

	clock := func() int64 { return env.now }
	env.engine = NewEngine()
	env.engine.SetState(env.state)
	env.engine.SetRegistry(env.registry)
	env.engine.SetLedger(env.ledger)
	env.engine.SetNowFunc(clock)

	env.delivery = NewDeliveryEngine()
	env.delivery.SetState(env.state)
	env.delivery.SetRegistry(env.registry)
	env.delivery.SetLedger(env.ledger)
	env.delivery.SetNowFunc(clock)
	return env
}

func (env *testEnv) createOffer(t *testing.T, offerType OfferType, points, amount int64, rate uint64, settleType OfferSettleType) (*Offer, *Stock) {
	t.Helper()
	offer, stock, err := env.engine.CreateOffer(CreateOfferParams{
		MarketPlace:     env.mp.ID,
		Authority:       makerAddr,
		OfferType:       offerType,
		Points:          big.NewInt(points),
		Amount:          big.NewInt(amount),
		CollateralRate:  rate,
		EachTradeTax:    200,
		SettleType:      settleType,
		CollateralToken: tokenAddr,
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return offer, stock
}

func TestCreateOfferAskDeposit(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	if offer.Status != OfferStatusVirgin {
		t.Fatalf("expected virgin offer, got %v", offer.Status)
	}
	if stock.StockType != StockTypeBid {
		t.Fatalf("expected bid stock against an ask offer, got %v", stock.StockType)
	}
	if got := env.ledger.tilled(makerAddr); got.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected maker deposit 1500, got %s", got)
	}
}

func TestCreateOfferBidDepositIsMargin(t *testing.T) {
	env := newTestEnv(t)
	env.createOffer(t, OfferTypeBid, 1_000, 1_000, 15_000, SettleTypeTurbo)

	// A bid maker buys points, so only the margin above par is posted.
	if got := env.ledger.tilled(makerAddr); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected maker deposit 500, got %s", got)
	}
}

func TestCreateOfferValidation(t *testing.T) {
	env := newTestEnv(t)
	base := CreateOfferParams{
		MarketPlace:     env.mp.ID,
		Authority:       makerAddr,
		OfferType:       OfferTypeAsk,
		Points:          big.NewInt(100),
		Amount:          big.NewInt(100),
		CollateralRate:  12_000,
		SettleType:      SettleTypeTurbo,
		CollateralToken: tokenAddr,
	}

	zeroPoints := base
	zeroPoints.Points = big.NewInt(0)
	if _, _, err := env.engine.CreateOffer(zeroPoints); !errors.Is(err, ErrInvalidPoints) {
		t.Fatalf("expected ErrInvalidPoints, got %v", err)
	}
	lowRate := base
	lowRate.CollateralRate = RateScaler - 1
	if _, _, err := env.engine.CreateOffer(lowRate); !errors.Is(err, ErrCollateralRateTooLow) {
		t.Fatalf("expected ErrCollateralRateTooLow, got %v", err)
	}
	highTax := base
	highTax.EachTradeTax = env.registry.taxCap + 1
	if _, _, err := env.engine.CreateOffer(highTax); !errors.Is(err, ErrTradeTaxTooHigh) {
		t.Fatalf("expected ErrTradeTaxTooHigh, got %v", err)
	}

	if len(env.state.offers) != 0 || len(env.state.stocks) != 0 || len(env.state.makers) != 0 {
		t.Fatal("rejected offers must not leave records behind")
	}
	if len(env.ledger.tills) != 0 {
		t.Fatal("rejected offers must not move funds")
	}
}

func TestCreateOfferRequiresOnlineMarket(t *testing.T) {
	env := newTestEnv(t)
	env.now = testTGE + 1
	_, _, err := env.engine.CreateOffer(CreateOfferParams{
		MarketPlace:     env.mp.ID,
		Authority:       makerAddr,
		OfferType:       OfferTypeAsk,
		Points:          big.NewInt(100),
		Amount:          big.NewInt(100),
		CollateralRate:  12_000,
		SettleType:      SettleTypeTurbo,
		CollateralToken: tokenAddr,
	})
	if !errors.Is(err, ErrMarketStatus) {
		t.Fatalf("expected ErrMarketStatus after tge, got %v", err)
	}
}

func TestCreateTakerEconomics(t *testing.T) {
	env := newTestEnv(t)
	offer, _ := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	stock, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}
	if stock.Amount.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected deposit amount 400, got %s", stock.Amount)
	}
	if stock.StockType != StockTypeBid {
		t.Fatalf("expected bid stock, got %v", stock.StockType)
	}

	// margin 200 + platform fee 4 (1%) + trade tax 8 (2%)
	if got := env.ledger.tilled(takerAddr); got.Cmp(big.NewInt(212)) != 0 {
		t.Fatalf("expected taker transfer 212, got %s", got)
	}
	if got := env.ledger.credited("sales_revenue", makerAddr); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected sales revenue 400 for the ask maker, got %s", got)
	}
	if got := env.ledger.credited("tax_income", makerAddr); got.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("expected trade tax 8, got %s", got)
	}

	stored := env.state.offers[offer.ID]
	if stored.UsedPoints.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected used points 400, got %s", stored.UsedPoints)
	}
	maker := env.state.makers[offer.Maker]
	if maker.PlatformFee.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected retained platform fee 4, got %s", maker.PlatformFee)
	}
}

func TestCreateTakerOnBidOffer(t *testing.T) {
	env := newTestEnv(t)
	offer, _ := env.createOffer(t, OfferTypeBid, 1_000, 1_000, 15_000, SettleTypeTurbo)

	stock, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(500))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}
	if stock.StockType != StockTypeAsk {
		t.Fatalf("expected ask stock against a bid offer, got %v", stock.StockType)
	}
	// The taker sells into the bid: full collateral 750 plus fee 5 and tax 10.
	if got := env.ledger.tilled(takerAddr); got.Cmp(big.NewInt(765)) != 0 {
		t.Fatalf("expected taker transfer 765, got %s", got)
	}
	if got := env.ledger.credited("sales_revenue", takerAddr); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected sales revenue 500 for the selling taker, got %s", got)
	}
}

func TestCreateTakerDepositRoundsUp(t *testing.T) {
	env := newTestEnv(t)
	offer, _ := env.createOffer(t, OfferTypeAsk, 3, 10, 10_000, SettleTypeTurbo)

	stock, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(1))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}
	// 1*10/3 rounds up to 4: the payer covers the fractional unit.
	if stock.Amount.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected deposit 4, got %s", stock.Amount)
	}
}

func TestCreateTakerCapacity(t *testing.T) {
	env := newTestEnv(t)
	offer, _ := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(700)); err != nil {
		t.Fatalf("first taker: %v", err)
	}
	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(301)); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(300)); err != nil {
		t.Fatalf("exact fill: %v", err)
	}
}

func TestCreateTakerReferralSplit(t *testing.T) {
	env := newTestEnv(t)
	env.registry.feeRates[takerAddr] = 1_000 // 10%
	env.registry.referrals[takerAddr] = &ReferralInfo{
		Referrer:      referrerAddr,
		ReferrerRate:  3_333,
		AuthorityRate: 1_111,
	}
	offer, _ := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400)); err != nil {
		t.Fatalf("create taker: %v", err)
	}

	fee := big.NewInt(40)
	referrerBonus := env.ledger.credited("referral_bonus", referrerAddr)
	takerBonus := env.ledger.credited("referral_bonus", takerAddr)
	remainder := env.state.makers[offer.Maker].PlatformFee

	if referrerBonus.Cmp(big.NewInt(13)) != 0 {
		t.Fatalf("expected referrer bonus 13, got %s", referrerBonus)
	}
	if takerBonus.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected taker bonus 4, got %s", takerBonus)
	}
	sum := new(big.Int).Add(referrerBonus, takerBonus)
	sum.Add(sum, remainder)
	if sum.Cmp(fee) != 0 {
		t.Fatalf("split must sum to the fee exactly: %s + %s + %s != %s", referrerBonus, takerBonus, remainder, fee)
	}
}

func TestCreateTakerRequiresVirginOffer(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)
	if err := env.engine.CloseOffer(stock.ID, offer.ID, makerAddr); err != nil {
		t.Fatalf("close offer: %v", err)
	}
	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(1)); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("expected ErrInvalidOfferStatus, got %v", err)
	}
}

func TestListOfferTurbo(t *testing.T) {
	env := newTestEnv(t)
	origin, _ := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)
	takerStock, err := env.engine.CreateTaker(origin.ID, takerAddr, big.NewInt(400))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}

	tilledBefore := env.ledger.tilled(takerAddr)
	if _, err := env.engine.ListOffer(takerStock.ID, takerAddr, big.NewInt(500), 14_000); !errors.Is(err, ErrTurboRateMismatch) {
		t.Fatalf("expected ErrTurboRateMismatch, got %v", err)
	}

	listed, err := env.engine.ListOffer(takerStock.ID, takerAddr, big.NewInt(500), 15_000)
	if err != nil {
		t.Fatalf("list offer: %v", err)
	}
	if listed.Points.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected listed points 400, got %s", listed.Points)
	}
	// Turbo sub-offers ride the origin collateral: no fresh deposit.
	if got := env.ledger.tilled(takerAddr); got.Cmp(tilledBefore) != 0 {
		t.Fatalf("expected no deposit for turbo listing, got extra %s", new(big.Int).Sub(got, tilledBefore))
	}
	if env.state.offers[origin.ID].Abort != AbortStatusSubOfferListed {
		t.Fatalf("expected origin abort path blocked")
	}
	if _, err := env.engine.ListOffer(takerStock.ID, takerAddr, big.NewInt(500), 15_000); !errors.Is(err, ErrStockAlreadyListed) {
		t.Fatalf("expected ErrStockAlreadyListed, got %v", err)
	}
}

func TestListOfferProtectedUsesParentRate(t *testing.T) {
	env := newTestEnv(t)
	origin, _ := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeProtected)
	takerStock, err := env.engine.CreateTaker(origin.ID, takerAddr, big.NewInt(400))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}

	tilledBefore := env.ledger.tilled(takerAddr)
	if _, err := env.engine.ListOffer(takerStock.ID, takerAddr, big.NewInt(600), 20_000); err != nil {
		t.Fatalf("list offer: %v", err)
	}
	// The deposit is priced at the parent's 150% rate, not the supplied 200%.
	deposit := new(big.Int).Sub(env.ledger.tilled(takerAddr), tilledBefore)
	if deposit.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("expected protected deposit 900, got %s", deposit)
	}
}

func TestListOfferRejectsAskStock(t *testing.T) {
	env := newTestEnv(t)
	offer, _ := env.createOffer(t, OfferTypeBid, 1_000, 1_000, 15_000, SettleTypeTurbo)
	stock, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}
	if _, err := env.engine.ListOffer(stock.ID, takerAddr, big.NewInt(100), 15_000); !errors.Is(err, ErrInvalidStockType) {
		t.Fatalf("expected ErrInvalidStockType, got %v", err)
	}
}

func TestCloseOfferRefundsUnusedCollateral(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	if err := env.engine.CloseOffer(stock.ID, offer.ID, makerAddr); err != nil {
		t.Fatalf("close offer: %v", err)
	}
	// No fills: the entire 1500 deposit comes back.
	if got := env.ledger.credited("maker_refund", makerAddr); got.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected full refund 1500, got %s", got)
	}
	if env.state.offers[offer.ID].Status != OfferStatusCanceled {
		t.Fatal("expected canceled offer")
	}
	if err := env.engine.CloseOffer(stock.ID, offer.ID, makerAddr); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("closing twice must fail, got %v", err)
	}
}

func TestCloseOfferPartialFill(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)
	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400)); err != nil {
		t.Fatalf("create taker: %v", err)
	}
	if err := env.engine.CloseOffer(stock.ID, offer.ID, makerAddr); err != nil {
		t.Fatalf("close offer: %v", err)
	}
	// 600 unused amount at 150% rate.
	if got := env.ledger.credited("maker_refund", makerAddr); got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("expected refund 900, got %s", got)
	}
}

func TestRelistOfferRestoresDeposit(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 3, 10, 15_000, SettleTypeTurbo)
	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(1)); err != nil {
		t.Fatalf("create taker: %v", err)
	}
	if err := env.engine.CloseOffer(stock.ID, offer.ID, makerAddr); err != nil {
		t.Fatalf("close offer: %v", err)
	}
	refund := env.ledger.credited("maker_refund", makerAddr)

	tilledBefore := env.ledger.tilled(makerAddr)
	if err := env.engine.RelistOffer(stock.ID, offer.ID, makerAddr); err != nil {
		t.Fatalf("relist offer: %v", err)
	}
	redeposit := new(big.Int).Sub(env.ledger.tilled(makerAddr), tilledBefore)
	if redeposit.Cmp(refund) < 0 {
		t.Fatalf("relist deposit %s must cover the refund %s", redeposit, refund)
	}
	if env.state.offers[offer.ID].Status != OfferStatusVirgin {
		t.Fatal("expected virgin offer after relist")
	}
}

func TestCreateTakerEmitsAuditEvent(t *testing.T) {
	env := newTestEnv(t)
	offer, _ := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	recorder := events.NewRecorder(16)
	env.engine.SetEmitter(recorder)
	stock, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}

	var emitted *TakerCreated
	for _, evt := range recorder.Snapshot() {
		if taker, ok := evt.(*TakerCreated); ok {
			emitted = taker
		}
	}
	if emitted == nil {
		t.Fatal("expected a taker event")
	}
	if emitted.Offer != offer.ID || emitted.Stock != stock.ID || emitted.Taker != takerAddr {
		t.Fatalf("event identifies the wrong entities: %+v", emitted)
	}

	// The payload carries every computed amount of the fill.
	attrs := emitted.Event().Attributes
	want := map[string]string{
		"points":         "400",
		"depositAmount":  "400",
		"platformFee":    "4",
		"tradeTax":       "8",
		"referrerBonus":  "0",
		"authorityBonus": "0",
		"transferAmount": "212",
	}
	for key, value := range want {
		if attrs[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, attrs[key], value)
		}
	}
	if attrs["taker"] == "" || attrs["offer"] == "" {
		t.Fatal("payload must identify the parties")
	}
}

func TestRecorderKeepsMostRecent(t *testing.T) {
	recorder := events.NewRecorder(2)
	for i := int64(1); i <= 4; i++ {
		recorder.Emit(&TakerCreated{Points: big.NewInt(i)})
	}
	kept := recorder.Snapshot()
	if len(kept) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(kept))
	}
	first := kept[0].(*TakerCreated)
	last := kept[1].(*TakerCreated)
	if first.Points.Cmp(big.NewInt(3)) != 0 || last.Points.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected the newest events retained, got %s and %s", first.Points, last.Points)
	}
}

func TestAbortAskOffer(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)
	if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400)); err != nil {
		t.Fatalf("create taker: %v", err)
	}

	if err := env.engine.AbortAskOffer(stock.ID, offer.ID, makerAddr); err != nil {
		t.Fatalf("abort ask offer: %v", err)
	}
	// Remaining 600 at 150% = 900, minus used 400 at 150% = 600: refund 300.
	if got := env.ledger.credited("maker_refund", makerAddr); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected abort refund 300, got %s", got)
	}
	stored := env.state.offers[offer.ID]
	if stored.Abort != AbortStatusAborted || stored.Status != OfferStatusSettled {
		t.Fatalf("expected aborted terminal offer, got abort=%v status=%v", stored.Abort, stored.Status)
	}
	if err := env.engine.AbortAskOffer(stock.ID, offer.ID, makerAddr); !errors.Is(err, ErrInvalidOfferStatus) {
		t.Fatalf("aborting twice must fail, got %v", err)
	}
}

func TestAbortAskOfferBlockedAfterTGE(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	// Once the settlement clock starts the maker exits through delivery,
	// not the abort path.
	env.now = testTGE + 1
	if err := env.engine.AbortAskOffer(stock.ID, offer.ID, makerAddr); !errors.Is(err, ErrMarketStatus) {
		t.Fatalf("expected ErrMarketStatus after tge, got %v", err)
	}
	if got := env.ledger.credited("maker_refund", makerAddr); got.Sign() != 0 {
		t.Fatalf("blocked abort must not refund, got %s", got)
	}
}

func TestAbortAskOfferBlockedBySubOffer(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)
	takerStock, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}
	if _, err := env.engine.ListOffer(takerStock.ID, takerAddr, big.NewInt(500), 15_000); err != nil {
		t.Fatalf("list offer: %v", err)
	}
	if err := env.engine.AbortAskOffer(stock.ID, offer.ID, makerAddr); !errors.Is(err, ErrInvalidAbortStatus) {
		t.Fatalf("expected ErrInvalidAbortStatus, got %v", err)
	}
}

func TestAbortBidTaker(t *testing.T) {
	env := newTestEnv(t)
	offer, stock := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)
	takerStock, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(400))
	if err != nil {
		t.Fatalf("create taker: %v", err)
	}

	if err := env.engine.AbortBidTaker(takerStock.ID, offer.ID, takerAddr); !errors.Is(err, ErrInvalidAbortStatus) {
		t.Fatalf("abort requires an aborted offer, got %v", err)
	}
	if err := env.engine.AbortAskOffer(stock.ID, offer.ID, makerAddr); err != nil {
		t.Fatalf("abort ask offer: %v", err)
	}
	if err := env.engine.AbortBidTaker(takerStock.ID, offer.ID, takerAddr); err != nil {
		t.Fatalf("abort bid taker: %v", err)
	}
	// 400 points * 1000/1000 margin share at 50%: 200 back to the taker.
	if got := env.ledger.credited("maker_refund", takerAddr); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected taker refund 200, got %s", got)
	}
	if env.state.stocks[takerStock.ID].Status != StockStatusFinished {
		t.Fatal("expected finished stock")
	}
	if err := env.engine.AbortBidTaker(takerStock.ID, offer.ID, takerAddr); !errors.Is(err, ErrInvalidStockStatus) {
		t.Fatalf("aborting twice must fail, got %v", err)
	}
}

func TestPointConservation(t *testing.T) {
	env := newTestEnv(t)
	offer, _ := env.createOffer(t, OfferTypeAsk, 1_000, 1_000, 15_000, SettleTypeTurbo)

	taken := []int64{250, 250, 400, 100}
	total := big.NewInt(0)
	for _, points := range taken {
		if _, err := env.engine.CreateTaker(offer.ID, takerAddr, big.NewInt(points)); err != nil {
			t.Fatalf("take %d: %v", points, err)
		}
		total.Add(total, big.NewInt(points))
	}
	stored := env.state.offers[offer.ID]
	if stored.UsedPoints.Cmp(total) != 0 {
		t.Fatalf("used points %s diverged from the sum of fills %s", stored.UsedPoints, total)
	}
	if stored.UsedPoints.Cmp(stored.Points) != 0 {
		t.Fatalf("expected fully used offer")
	}
}

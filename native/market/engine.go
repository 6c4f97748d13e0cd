package market

import (
	"math/big"
	"time"

	"premarket/core/events"
	nativecommon "premarket/native/common"
	"premarket/native/ledger"
)

const marketModuleName = "market"

type engineState interface {
	NextSequence() (uint64, error)
	OfferPut(*Offer) error
	OfferGet(id [32]byte) (*Offer, bool, error)
	StockPut(*Stock) error
	StockGet(id [32]byte) (*Stock, bool, error)
	MakerPut(*Maker) error
	MakerGet(id [32]byte) (*Maker, bool, error)
}

// ConfigRegistry is the read-only view of marketplace metadata and fee and
// referral rates owned by the config registry.
type ConfigRegistry interface {
	MarketPlaceInfo(id [32]byte) (*MarketPlace, bool, error)
	ReferralInfo(user [20]byte) (*ReferralInfo, bool, error)
	PlatformFeeRate(user [20]byte) (uint64, error)
	TradeTaxCap() uint64
	IsOperator(user [20]byte) bool
}

// CustodialLedger moves value on the engine's behalf. The engine never holds
// funds itself: TillIn pulls collateral into custody and AddTokenBalance
// credits withdrawable balance buckets.
type CustodialLedger interface {
	TillIn(payer [20]byte, token [20]byte, amount *big.Int, isPointToken bool) error
	AddTokenBalance(category ledger.BalanceCategory, to [20]byte, token [20]byte, amount *big.Int) error
}

// Engine creates and mutates offer, stock and maker records: the
// transactional heart of position-taking. Settlement-phase transitions live
// in DeliveryEngine.
type Engine struct {
	state    engineState
	registry ConfigRegistry
	ledger   CustodialLedger
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewEngine creates a markets engine with a no-op emitter. Callers override
// collaborators via the Set helpers.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the config registry lookup.
func (e *Engine) SetRegistry(reg ConfigRegistry) { e.registry = reg }

// SetLedger configures the custodial ledger driven by the engine.
func (e *Engine) SetLedger(l CustodialLedger) { e.ledger = l }

// SetPauses configures the administrative pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) loadOffer(id [32]byte) (*Offer, error) {
	offer, ok, err := e.state.OfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return SanitizeOffer(offer)
}

func (e *Engine) loadStock(id [32]byte) (*Stock, error) {
	stock, ok, err := e.state.StockGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStockNotFound
	}
	return SanitizeStock(stock)
}

func (e *Engine) loadMaker(id [32]byte) (*Maker, error) {
	maker, ok, err := e.state.MakerGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMakerNotFound
	}
	return maker, nil
}

func (e *Engine) loadMarketPlace(id [32]byte) (*MarketPlace, error) {
	mp, ok, err := e.registry.MarketPlaceInfo(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMarketPlaceNotFound
	}
	return mp, nil
}

// CreateOfferParams carries the caller-supplied terms of a new offer.
type CreateOfferParams struct {
	MarketPlace     [32]byte
	Authority       [20]byte
	OfferType       OfferType
	Points          *big.Int
	Amount          *big.Int
	CollateralRate  uint64
	EachTradeTax    uint64
	SettleType      OfferSettleType
	CollateralToken [20]byte
}

// CreateOffer mints a maker, an offer and the origin stock as an atomic
// trio, then pulls the maker's collateral into custody. Ask makers post full
// notional times the collateral rate; bid makers post only the margin above
// par.
func (e *Engine) CreateOffer(p CreateOfferParams) (*Offer, *Stock, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, nil, err
	}
	if p.Points == nil || p.Points.Sign() <= 0 {
		return nil, nil, ErrInvalidPoints
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if p.CollateralRate < RateScaler {
		return nil, nil, ErrCollateralRateTooLow
	}
	if p.EachTradeTax > e.registry.TradeTaxCap() {
		return nil, nil, ErrTradeTaxTooHigh
	}
	mp, err := e.loadMarketPlace(p.MarketPlace)
	if err != nil {
		return nil, nil, err
	}
	if mp.LiveStatus(e.now()) != MarketOnline {
		return nil, nil, ErrMarketStatus
	}
	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, nil, err
	}
	offerID := OfferID(seq)
	maker := &Maker{
		ID:           MakerID(seq),
		SeqID:        seq,
		Authority:    p.Authority,
		MarketPlace:  mp.ID,
		TokenAddress: p.CollateralToken,
		OriginOffer:  offerID,
		SettleType:   p.SettleType,
		EachTradeTax: p.EachTradeTax,
		PlatformFee:  big.NewInt(0),
	}
	offer := &Offer{
		ID:                      offerID,
		SeqID:                   seq,
		Authority:               p.Authority,
		Maker:                   maker.ID,
		OfferType:               p.OfferType,
		Status:                  OfferStatusVirgin,
		Abort:                   AbortStatusInitialized,
		CollateralRate:          p.CollateralRate,
		Points:                  new(big.Int).Set(p.Points),
		Amount:                  new(big.Int).Set(p.Amount),
		UsedPoints:              big.NewInt(0),
		SettledPoints:           big.NewInt(0),
		SettledPointTokenAmount: big.NewInt(0),
	}
	stock := &Stock{
		ID:        StockID(seq),
		SeqID:     seq,
		Authority: p.Authority,
		Maker:     maker.ID,
		StockType: p.OfferType.Opposite(),
		Status:    StockStatusInitialized,
		Offer:     offerID,
		Points:    new(big.Int).Set(p.Points),
		Amount:    new(big.Int).Set(p.Amount),
	}
	depositAmount := collateralPortion(p.OfferType, p.CollateralRate, p.Amount, true, true)
	if err := e.state.MakerPut(maker); err != nil {
		return nil, nil, err
	}
	if err := e.state.OfferPut(offer); err != nil {
		return nil, nil, err
	}
	if err := e.state.StockPut(stock); err != nil {
		return nil, nil, err
	}
	if err := e.ledger.TillIn(p.Authority, maker.TokenAddress, depositAmount, false); err != nil {
		return nil, nil, err
	}
	e.emit(&OfferCreated{
		Offer:         offer.ID,
		Stock:         stock.ID,
		Maker:         maker.ID,
		MarketPlace:   mp.ID,
		Authority:     p.Authority,
		OfferType:     p.OfferType,
		Points:        cloneBigInt(p.Points),
		Amount:        cloneBigInt(p.Amount),
		DepositAmount: depositAmount,
	})
	return offer.Clone(), stock.Clone(), nil
}

// CreateTaker fills part of a virgin offer: it pulls the taker's deposit plus
// platform fee and trade tax, splits the fee across any registered referral,
// routes the tax and sales revenue to the seller of record and mints the
// taker's stock.
func (e *Engine) CreateTaker(offerID [32]byte, taker [20]byte, points *big.Int) (*Stock, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	if points == nil || points.Sign() <= 0 {
		return nil, ErrInvalidPoints
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != OfferStatusVirgin {
		return nil, ErrInvalidOfferStatus
	}
	maker, err := e.loadMaker(offer.Maker)
	if err != nil {
		return nil, err
	}
	mp, err := e.loadMarketPlace(maker.MarketPlace)
	if err != nil {
		return nil, err
	}
	if mp.LiveStatus(e.now()) != MarketOnline {
		return nil, ErrMarketStatus
	}
	feeRate, err := e.registry.PlatformFeeRate(taker)
	if err != nil {
		return nil, err
	}
	referral, _, err := e.registry.ReferralInfo(taker)
	if err != nil {
		return nil, err
	}

	depositAmount := mulDivUp(points, offer.Amount, offer.Points)
	platformFee := rateAmount(depositAmount, feeRate, true)
	tradeTax := rateAmount(depositAmount, maker.EachTradeTax, true)
	transferAmount := collateralPortion(offer.OfferType, offer.CollateralRate, depositAmount, false, true)
	transferAmount = new(big.Int).Add(transferAmount, platformFee)
	transferAmount.Add(transferAmount, tradeTax)
	split := splitPlatformFee(platformFee, referral)

	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, err
	}
	stock := &Stock{
		ID:        StockID(seq),
		SeqID:     seq,
		Authority: taker,
		Maker:     maker.ID,
		StockType: offer.OfferType.Opposite(),
		Status:    StockStatusInitialized,
		PreOffer:  offer.ID,
		Points:    new(big.Int).Set(points),
		Amount:    depositAmount,
	}

	// Capacity is the last gate before the mutating write.
	newUsed := new(big.Int).Add(offer.UsedPoints, points)
	if newUsed.Cmp(offer.Points) > 0 {
		return nil, ErrInsufficientPoints
	}
	offer.UsedPoints = newUsed
	maker.PlatformFee = new(big.Int).Add(cloneBigInt(maker.PlatformFee), split.Remainder)
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	if err := e.state.MakerPut(maker); err != nil {
		return nil, err
	}
	if err := e.state.StockPut(stock); err != nil {
		return nil, err
	}

	if err := e.ledger.TillIn(taker, maker.TokenAddress, transferAmount, false); err != nil {
		return nil, err
	}
	if split.ReferrerBonus.Sign() > 0 {
		if err := e.ledger.AddTokenBalance(ledger.BalanceReferralBonus, split.Referrer, maker.TokenAddress, split.ReferrerBonus); err != nil {
			return nil, err
		}
	}
	if split.AuthorityBonus.Sign() > 0 {
		if err := e.ledger.AddTokenBalance(ledger.BalanceReferralBonus, taker, maker.TokenAddress, split.AuthorityBonus); err != nil {
			return nil, err
		}
	}
	taxRecipient := maker.Authority
	if maker.SettleType == SettleTypeProtected || offer.ID == maker.OriginOffer {
		taxRecipient = offer.Authority
	}
	if tradeTax.Sign() > 0 {
		if err := e.ledger.AddTokenBalance(ledger.BalanceTaxIncome, taxRecipient, maker.TokenAddress, tradeTax); err != nil {
			return nil, err
		}
	}
	revenueRecipient := offer.Authority
	if offer.OfferType == OfferTypeBid {
		// On a bid offer the taker is the seller of the points.
		revenueRecipient = taker
	}
	if err := e.ledger.AddTokenBalance(ledger.BalanceSalesRevenue, revenueRecipient, maker.TokenAddress, depositAmount); err != nil {
		return nil, err
	}

	e.emit(&TakerCreated{
		Offer:          offer.ID,
		Stock:          stock.ID,
		Maker:          maker.ID,
		Taker:          taker,
		Points:         cloneBigInt(points),
		DepositAmount:  cloneBigInt(depositAmount),
		PlatformFee:    cloneBigInt(platformFee),
		TradeTax:       cloneBigInt(tradeTax),
		ReferrerBonus:  cloneBigInt(split.ReferrerBonus),
		AuthorityBonus: cloneBigInt(split.AuthorityBonus),
		TransferAmount: cloneBigInt(transferAmount),
	})
	return stock.Clone(), nil
}

// ListOffer carves a new sub-offer out of a held bid stock. Turbo sub-offers
// keep the origin collateral rate and block the origin's abort path;
// protected sub-offers post fresh collateral priced at the original offer's
// rate regardless of the newly supplied one.
func (e *Engine) ListOffer(stockID [32]byte, caller [20]byte, amount *big.Int, collateralRate uint64) (*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if collateralRate < RateScaler {
		return nil, ErrCollateralRateTooLow
	}
	stock, err := e.loadStock(stockID)
	if err != nil {
		return nil, err
	}
	if stock.Authority != caller {
		return nil, ErrUnauthorized
	}
	if stock.Status != StockStatusInitialized {
		return nil, ErrInvalidStockStatus
	}
	if stock.Offer != ([32]byte{}) {
		return nil, ErrStockAlreadyListed
	}
	if stock.StockType != StockTypeBid {
		return nil, ErrInvalidStockType
	}
	if stock.PreOffer == ([32]byte{}) {
		return nil, ErrStockOfferMismatch
	}
	preOffer, err := e.loadOffer(stock.PreOffer)
	if err != nil {
		return nil, err
	}
	maker, err := e.loadMaker(stock.Maker)
	if err != nil {
		return nil, err
	}
	mp, err := e.loadMarketPlace(maker.MarketPlace)
	if err != nil {
		return nil, err
	}
	if mp.LiveStatus(e.now()) != MarketOnline {
		return nil, ErrMarketStatus
	}

	depositAmount := big.NewInt(0)
	switch maker.SettleType {
	case SettleTypeTurbo:
		origin, err := e.loadOffer(maker.OriginOffer)
		if err != nil {
			return nil, err
		}
		if collateralRate != origin.CollateralRate {
			return nil, ErrTurboRateMismatch
		}
		if origin.Abort == AbortStatusAborted {
			return nil, ErrInvalidAbortStatus
		}
		if origin.Abort == AbortStatusInitialized {
			origin.Abort = AbortStatusSubOfferListed
			if err := e.state.OfferPut(origin); err != nil {
				return nil, err
			}
		}
	case SettleTypeProtected:
		// Protected settlement guarantees the parent's terms, so the fresh
		// collateral is priced at the preceding offer's rate.
		depositAmount = collateralPortion(preOffer.OfferType, preOffer.CollateralRate, amount, true, true)
	}

	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, err
	}
	offer := &Offer{
		ID:                      OfferID(seq),
		SeqID:                   seq,
		Authority:               caller,
		Maker:                   maker.ID,
		OfferType:               preOffer.OfferType,
		Status:                  OfferStatusVirgin,
		Abort:                   AbortStatusInitialized,
		CollateralRate:          collateralRate,
		Points:                  cloneBigInt(stock.Points),
		Amount:                  new(big.Int).Set(amount),
		UsedPoints:              big.NewInt(0),
		SettledPoints:           big.NewInt(0),
		SettledPointTokenAmount: big.NewInt(0),
	}
	stock.Offer = offer.ID
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	if err := e.state.StockPut(stock); err != nil {
		return nil, err
	}
	if err := e.ledger.TillIn(caller, maker.TokenAddress, depositAmount, false); err != nil {
		return nil, err
	}
	e.emit(&OfferListed{
		Offer:          offer.ID,
		Stock:          stock.ID,
		Maker:          maker.ID,
		Authority:      caller,
		Amount:         cloneBigInt(amount),
		Points:         cloneBigInt(offer.Points),
		CollateralRate: collateralRate,
		DepositAmount:  cloneBigInt(depositAmount),
	})
	return offer.Clone(), nil
}

// refundEligible reports whether the offer carries its own collateral: it
// does for every original offer and for protected sub-offers. Listed turbo
// sub-offers settle through their parent.
func refundEligible(maker *Maker, stock *Stock) bool {
	return maker.SettleType == SettleTypeProtected || stock.PreOffer == ([32]byte{})
}

func (e *Engine) loadOfferPair(stockID, offerID [32]byte, caller [20]byte) (*Stock, *Offer, *Maker, error) {
	stock, err := e.loadStock(stockID)
	if err != nil {
		return nil, nil, nil, err
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return nil, nil, nil, err
	}
	if stock.Offer != offer.ID {
		return nil, nil, nil, ErrStockOfferMismatch
	}
	if offer.Authority != caller {
		return nil, nil, nil, ErrUnauthorized
	}
	maker, err := e.loadMaker(offer.Maker)
	if err != nil {
		return nil, nil, nil, err
	}
	return stock, offer, maker, nil
}

// CloseOffer cancels a virgin offer and refunds the collateral attributable
// to its unused capacity.
func (e *Engine) CloseOffer(stockID, offerID [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	stock, offer, maker, err := e.loadOfferPair(stockID, offerID, caller)
	if err != nil {
		return err
	}
	if offer.Status != OfferStatusVirgin {
		return ErrInvalidOfferStatus
	}
	refundAmount := big.NewInt(0)
	if refundEligible(maker, stock) {
		refundAmount = unusedCollateral(offer, false)
	}
	offer.Status = OfferStatusCanceled
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	if refundAmount.Sign() > 0 {
		if err := e.ledger.AddTokenBalance(ledger.BalanceMakerRefund, offer.Authority, maker.TokenAddress, refundAmount); err != nil {
			return err
		}
	}
	e.emit(&OfferClosed{Offer: offer.ID, Stock: stock.ID, Authority: caller, RefundAmount: refundAmount})
	return nil
}

// RelistOffer restores a canceled offer to virgin status after the maker
// re-deposits the collateral previously refunded on close.
func (e *Engine) RelistOffer(stockID, offerID [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	stock, offer, maker, err := e.loadOfferPair(stockID, offerID, caller)
	if err != nil {
		return err
	}
	if offer.Status != OfferStatusCanceled {
		return ErrInvalidOfferStatus
	}
	depositAmount := big.NewInt(0)
	if refundEligible(maker, stock) {
		depositAmount = unusedCollateral(offer, true)
	}
	offer.Status = OfferStatusVirgin
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	if err := e.ledger.TillIn(caller, maker.TokenAddress, depositAmount, false); err != nil {
		return err
	}
	e.emit(&OfferRelisted{Offer: offer.ID, Stock: stock.ID, Authority: caller, DepositAmount: depositAmount})
	return nil
}

// AbortAskOffer is the maker's early exit from an ask offer. It is blocked
// once a turbo sub-offer has been listed against the offer and is permanent:
// the offer never enters normal settlement afterwards.
func (e *Engine) AbortAskOffer(stockID, offerID [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	stock, offer, maker, err := e.loadOfferPair(stockID, offerID, caller)
	if err != nil {
		return err
	}
	if offer.OfferType != OfferTypeAsk {
		return ErrInvalidOfferType
	}
	if offer.Status != OfferStatusVirgin && offer.Status != OfferStatusCanceled {
		return ErrInvalidOfferStatus
	}
	if offer.Abort != AbortStatusInitialized {
		return ErrInvalidAbortStatus
	}
	mp, err := e.loadMarketPlace(maker.MarketPlace)
	if err != nil {
		return err
	}
	if mp.LiveStatus(e.now()) != MarketOnline {
		return ErrMarketStatus
	}
	refundAmount := big.NewInt(0)
	if refundEligible(maker, stock) {
		refundAmount = abortRefund(offer)
	}
	offer.Abort = AbortStatusAborted
	offer.Status = OfferStatusSettled
	stock.Status = StockStatusFinished
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	if err := e.state.StockPut(stock); err != nil {
		return err
	}
	if refundAmount.Sign() > 0 {
		if err := e.ledger.AddTokenBalance(ledger.BalanceMakerRefund, offer.Authority, maker.TokenAddress, refundAmount); err != nil {
			return err
		}
	}
	e.emit(&AskOfferAborted{Offer: offer.ID, Stock: stock.ID, Authority: caller, RefundAmount: refundAmount})
	return nil
}

// AbortBidTaker lets the taker of an aborted ask offer reclaim their margin
// pro rata and finishes the stock.
func (e *Engine) AbortBidTaker(stockID, offerID [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	stock, err := e.loadStock(stockID)
	if err != nil {
		return err
	}
	if stock.Authority != caller {
		return ErrUnauthorized
	}
	if stock.Status != StockStatusInitialized {
		return ErrInvalidStockStatus
	}
	if stock.StockType != StockTypeBid {
		return ErrInvalidStockType
	}
	if stock.PreOffer == ([32]byte{}) || stock.PreOffer != offerID {
		return ErrStockOfferMismatch
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return err
	}
	if offer.Abort != AbortStatusAborted {
		return ErrInvalidAbortStatus
	}
	maker, err := e.loadMaker(stock.Maker)
	if err != nil {
		return err
	}
	// Margin-per-point share: the ratio is deliberately points over amount.
	depositAmount := mulDivDown(stock.Points, offer.Points, offer.Amount)
	transferAmount := collateralPortion(offer.OfferType, offer.CollateralRate, depositAmount, false, false)
	stock.Status = StockStatusFinished
	if err := e.state.StockPut(stock); err != nil {
		return err
	}
	if transferAmount.Sign() > 0 {
		if err := e.ledger.AddTokenBalance(ledger.BalanceMakerRefund, caller, maker.TokenAddress, transferAmount); err != nil {
			return err
		}
	}
	e.emit(&BidTakerAborted{Offer: offer.ID, Stock: stock.ID, Authority: caller, RefundAmount: transferAmount})
	return nil
}

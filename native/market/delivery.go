package market

import (
	"math/big"
	"time"

	"premarket/core/events"
	nativecommon "premarket/native/common"
	"premarket/native/ledger"
)

const deliveryModuleName = "delivery"

// DeliveryEngine finalizes outstanding positions once a marketplace enters
// its settlement window: it converts settled points into token amounts,
// releases collateral and distributes proceeds. It shares the markets
// engine's storage and drives its terminal-state writes directly; none of
// those mutations are reachable as public entry points.
type DeliveryEngine struct {
	state    engineState
	registry ConfigRegistry
	ledger   CustodialLedger
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewDeliveryEngine creates a settlement engine with a no-op emitter.
func NewDeliveryEngine() *DeliveryEngine {
	return &DeliveryEngine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend shared with the markets engine.
func (d *DeliveryEngine) SetState(state engineState) { d.state = state }

// SetRegistry configures the config registry lookup.
func (d *DeliveryEngine) SetRegistry(reg ConfigRegistry) { d.registry = reg }

// SetLedger configures the custodial ledger driven by the engine.
func (d *DeliveryEngine) SetLedger(l CustodialLedger) { d.ledger = l }

// SetPauses configures the administrative pause switches.
func (d *DeliveryEngine) SetPauses(p nativecommon.PauseView) { d.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (d *DeliveryEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		d.emitter = events.NoopEmitter{}
		return
	}
	d.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (d *DeliveryEngine) SetNowFunc(now func() int64) {
	if now == nil {
		d.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	d.nowFn = now
}

func (d *DeliveryEngine) emit(evt events.Event) {
	if d == nil || d.emitter == nil || evt == nil {
		return
	}
	d.emitter.Emit(evt)
}

func (d *DeliveryEngine) now() int64 {
	if d == nil || d.nowFn == nil {
		return time.Now().Unix()
	}
	return d.nowFn()
}

func (d *DeliveryEngine) ready() error {
	if d == nil || d.state == nil {
		return errNilState
	}
	if d.registry == nil {
		return errNilRegistry
	}
	if d.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (d *DeliveryEngine) loadOffer(id [32]byte) (*Offer, error) {
	offer, ok, err := d.state.OfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return SanitizeOffer(offer)
}

func (d *DeliveryEngine) loadStock(id [32]byte) (*Stock, error) {
	stock, ok, err := d.state.StockGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStockNotFound
	}
	return SanitizeStock(stock)
}

// resolveOffer is the shared lookup every settlement entry point starts
// from: the offer, its maker, the marketplace and the live status.
func (d *DeliveryEngine) resolveOffer(offerID [32]byte) (*Offer, *Maker, *MarketPlace, MarketStatus, error) {
	offer, err := d.loadOffer(offerID)
	if err != nil {
		return nil, nil, nil, MarketUninitialized, err
	}
	maker, ok, err := d.state.MakerGet(offer.Maker)
	if err != nil {
		return nil, nil, nil, MarketUninitialized, err
	}
	if !ok {
		return nil, nil, nil, MarketUninitialized, ErrMakerNotFound
	}
	mp, ok, err := d.registry.MarketPlaceInfo(maker.MarketPlace)
	if err != nil {
		return nil, nil, nil, MarketUninitialized, err
	}
	if !ok {
		return nil, nil, nil, MarketUninitialized, ErrMarketPlaceNotFound
	}
	return offer, maker, mp, mp.LiveStatus(d.now()), nil
}

func inSettlement(status MarketStatus) bool {
	return status == MarketAskSettling || status == MarketBidSettling
}

// settleCaller enforces the settlement authorization rule: the recorded
// authority acts self-service during the ask-settling window, and only the
// privileged operator acts afterwards, always with zero settled points.
func (d *DeliveryEngine) settleCaller(status MarketStatus, authority, caller [20]byte, settledPoints *big.Int) error {
	switch status {
	case MarketAskSettling:
		if caller != authority {
			return ErrUnauthorized
		}
		return nil
	case MarketBidSettling:
		if !d.registry.IsOperator(caller) {
			return ErrNotOperator
		}
		if settledPoints.Sign() != 0 {
			return ErrForcedSettleNonZero
		}
		return nil
	default:
		return ErrMarketStatus
	}
}

// CloseBidOffer is the bid maker's exit once the marketplace is settling:
// the unused collateral is refunded exactly as a pre-settlement close would,
// and the offer moves straight to its terminal state.
func (d *DeliveryEngine) CloseBidOffer(offerID [32]byte, caller [20]byte) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(d.pauses, deliveryModuleName); err != nil {
		return err
	}
	offer, maker, _, status, err := d.resolveOffer(offerID)
	if err != nil {
		return err
	}
	if offer.Authority != caller {
		return ErrUnauthorized
	}
	if offer.OfferType != OfferTypeBid {
		return ErrInvalidOfferType
	}
	if offer.Status != OfferStatusVirgin {
		return ErrInvalidOfferStatus
	}
	if !inSettlement(status) {
		return ErrMarketStatus
	}
	refundAmount := unusedCollateral(offer, false)
	offer.Status = OfferStatusSettled
	if err := d.state.OfferPut(offer); err != nil {
		return err
	}
	if refundAmount.Sign() > 0 {
		if err := d.ledger.AddTokenBalance(ledger.BalanceMakerRefund, offer.Authority, maker.TokenAddress, refundAmount); err != nil {
			return err
		}
	}
	d.emit(&BidOfferClosed{Offer: offer.ID, Authority: caller, RefundAmount: refundAmount})
	return nil
}

// CloseBidTaker pays a bid-side stock holder their pro-rata share of the
// referenced offer's unsettled collateral and settled point tokens, then
// finishes the stock. For turbo chains the distribution base is the origin
// offer and a listed child offer fragments the claim to its unused points.
func (d *DeliveryEngine) CloseBidTaker(stockID [32]byte, caller [20]byte) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(d.pauses, deliveryModuleName); err != nil {
		return err
	}
	stock, err := d.loadStock(stockID)
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
	if stock.PreOffer == ([32]byte{}) {
		return ErrStockOfferMismatch
	}
	preOffer, maker, mp, status, err := d.resolveOffer(stock.PreOffer)
	if err != nil {
		return err
	}
	if !inSettlement(status) {
		return ErrMarketStatus
	}

	referenced := preOffer
	remainingPoints := cloneBigInt(stock.Points)
	if maker.SettleType != SettleTypeProtected {
		referenced, err = d.loadOffer(maker.OriginOffer)
		if err != nil {
			return err
		}
		if stock.Offer != ([32]byte{}) {
			listed, err := d.loadOffer(stock.Offer)
			if err != nil {
				return err
			}
			remainingPoints = new(big.Int).Sub(listed.Points, listed.UsedPoints)
		}
	}
	if remainingPoints.Sign() == 0 {
		return ErrNoRemainingPoints
	}
	if referenced.Status != OfferStatusSettled {
		return ErrInvalidOfferStatus
	}
	if referenced.UsedPoints.Sign() == 0 {
		return ErrNoRemainingPoints
	}

	collateralFee := big.NewInt(0)
	if referenced.UsedPoints.Cmp(referenced.SettledPoints) > 0 {
		collateralFee = usedCollateral(referenced, false)
	}
	userCollateralFee := mulDivDown(collateralFee, remainingPoints, referenced.UsedPoints)
	pointTokenAmount := mulDivDown(referenced.SettledPointTokenAmount, remainingPoints, referenced.UsedPoints)

	stock.Status = StockStatusFinished
	if err := d.state.StockPut(stock); err != nil {
		return err
	}
	if userCollateralFee.Sign() > 0 {
		if err := d.ledger.AddTokenBalance(ledger.BalanceRemainingCash, caller, maker.TokenAddress, userCollateralFee); err != nil {
			return err
		}
	}
	if pointTokenAmount.Sign() > 0 {
		if err := d.ledger.AddTokenBalance(ledger.BalancePointToken, caller, mp.TokenAddress, pointTokenAmount); err != nil {
			return err
		}
	}
	d.emit(&BidTakerClosed{
		Stock:            stock.ID,
		Offer:            referenced.ID,
		Authority:        caller,
		RemainingPoints:  remainingPoints,
		CollateralFee:    userCollateralFee,
		PointTokenAmount: pointTokenAmount,
	})
	return nil
}

// SettleAskMaker delivers the maker side of an ask offer: the caller pays in
// tokenPerPoint for every settled point, and when every used point settles
// in this call the collateral covering the used amount is released as sales
// revenue. The offer terminates regardless of a prior cancel.
func (d *DeliveryEngine) SettleAskMaker(offerID [32]byte, caller [20]byte, settledPoints *big.Int) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(d.pauses, deliveryModuleName); err != nil {
		return err
	}
	if settledPoints == nil || settledPoints.Sign() < 0 {
		return ErrInvalidSettledPoints
	}
	offer, maker, mp, status, err := d.resolveOffer(offerID)
	if err != nil {
		return err
	}
	if mp.FixedRatio {
		return ErrFixedRatioUnsupported
	}
	if offer.OfferType != OfferTypeAsk {
		return ErrInvalidOfferType
	}
	if offer.Status != OfferStatusVirgin && offer.Status != OfferStatusCanceled {
		return ErrInvalidOfferStatus
	}
	if settledPoints.Cmp(offer.UsedPoints) > 0 {
		return ErrInvalidSettledPoints
	}
	if err := d.settleCaller(status, offer.Authority, caller, settledPoints); err != nil {
		return err
	}

	settledPointTokenAmount := new(big.Int).Mul(cloneBigInt(mp.TokenPerPoint), settledPoints)
	makerRefundAmount := big.NewInt(0)
	if settledPoints.Cmp(offer.UsedPoints) == 0 &&
		(maker.SettleType == SettleTypeProtected || offer.ID == maker.OriginOffer) {
		makerRefundAmount = usedCollateral(offer, false)
	}

	offer.SettledPoints = new(big.Int).Set(settledPoints)
	offer.SettledPointTokenAmount = settledPointTokenAmount
	offer.Status = OfferStatusSettled
	if err := d.state.OfferPut(offer); err != nil {
		return err
	}
	if err := d.ledger.TillIn(caller, mp.TokenAddress, settledPointTokenAmount, true); err != nil {
		return err
	}
	if makerRefundAmount.Sign() > 0 {
		if err := d.ledger.AddTokenBalance(ledger.BalanceSalesRevenue, offer.Authority, maker.TokenAddress, makerRefundAmount); err != nil {
			return err
		}
	}
	d.emit(&AskMakerSettled{
		Offer:                   offer.ID,
		Caller:                  caller,
		SettledPoints:           cloneBigInt(settledPoints),
		SettledPointTokenAmount: cloneBigInt(settledPointTokenAmount),
		CollateralRelease:       cloneBigInt(makerRefundAmount),
	})
	return nil
}

// SettleAskTaker delivers a taker-held ask stock against its bid offer: the
// caller pays in the point tokens, the bid maker is credited the proceeds,
// and the stock's margin is released to the taker on full settlement or
// reverts to the maker on partial settlement.
func (d *DeliveryEngine) SettleAskTaker(stockID [32]byte, caller [20]byte, settledPoints *big.Int) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(d.pauses, deliveryModuleName); err != nil {
		return err
	}
	if settledPoints == nil || settledPoints.Sign() < 0 {
		return ErrInvalidSettledPoints
	}
	stock, err := d.loadStock(stockID)
	if err != nil {
		return err
	}
	if stock.Status != StockStatusInitialized {
		return ErrInvalidStockStatus
	}
	if stock.StockType != StockTypeAsk {
		return ErrInvalidStockType
	}
	if stock.PreOffer == ([32]byte{}) {
		return ErrStockOfferMismatch
	}
	if settledPoints.Cmp(stock.Points) > 0 {
		return ErrInvalidSettledPoints
	}
	offer, maker, mp, status, err := d.resolveOffer(stock.PreOffer)
	if err != nil {
		return err
	}
	if mp.FixedRatio {
		return ErrFixedRatioUnsupported
	}
	if err := d.settleCaller(status, stock.Authority, caller, settledPoints); err != nil {
		return err
	}

	settledPointTokenAmount := new(big.Int).Mul(cloneBigInt(mp.TokenPerPoint), settledPoints)
	collateralFee := collateralPortion(offer.OfferType, offer.CollateralRate, stock.Amount, false, false)

	stock.Status = StockStatusFinished
	offer.SettledPoints = new(big.Int).Add(offer.SettledPoints, settledPoints)
	offer.SettledPointTokenAmount = new(big.Int).Add(offer.SettledPointTokenAmount, settledPointTokenAmount)
	if err := d.state.StockPut(stock); err != nil {
		return err
	}
	if err := d.state.OfferPut(offer); err != nil {
		return err
	}
	if err := d.ledger.TillIn(caller, mp.TokenAddress, settledPointTokenAmount, true); err != nil {
		return err
	}
	if settledPointTokenAmount.Sign() > 0 {
		if err := d.ledger.AddTokenBalance(ledger.BalancePointToken, offer.Authority, mp.TokenAddress, settledPointTokenAmount); err != nil {
			return err
		}
	}
	if collateralFee.Sign() > 0 {
		if settledPoints.Cmp(stock.Points) == 0 {
			if err := d.ledger.AddTokenBalance(ledger.BalanceRemainingCash, stock.Authority, maker.TokenAddress, collateralFee); err != nil {
				return err
			}
		} else {
			// The unsettled portion's margin reverts to the maker, not the
			// taker, reflecting the forfeited but unexercised claim.
			if err := d.ledger.AddTokenBalance(ledger.BalanceMakerRefund, offer.Authority, maker.TokenAddress, collateralFee); err != nil {
				return err
			}
		}
	}
	d.emit(&AskTakerSettled{
		Stock:                   stock.ID,
		Offer:                   offer.ID,
		Caller:                  caller,
		SettledPoints:           cloneBigInt(settledPoints),
		SettledPointTokenAmount: cloneBigInt(settledPointTokenAmount),
		CollateralRelease:       cloneBigInt(collateralFee),
	})
	return nil
}

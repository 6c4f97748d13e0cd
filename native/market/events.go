package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"premarket/core/types"
	"premarket/crypto"
)

const (
	EventTypeOfferCreated    = "market.offer.created"
	EventTypeTakerCreated    = "market.taker.created"
	EventTypeOfferListed     = "market.offer.listed"
	EventTypeOfferClosed     = "market.offer.closed"
	EventTypeOfferRelisted   = "market.offer.relisted"
	EventTypeAskOfferAborted = "market.offer.ask_aborted"
	EventTypeBidTakerAborted = "market.stock.bid_aborted"
	EventTypeBidOfferClosed  = "delivery.bid_offer.closed"
	EventTypeBidTakerClosed  = "delivery.bid_taker.closed"
	EventTypeAskMakerSettled = "delivery.ask_maker.settled"
	EventTypeAskTakerSettled = "delivery.ask_taker.settled"
)

func idAttr(id [32]byte) string { return hex.EncodeToString(id[:]) }

func addrAttr(addr [20]byte) string {
	return crypto.NewAddress(crypto.PMPrefix, addr[:]).String()
}

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// OfferCreated is emitted when a maker posts a new offer.
type OfferCreated struct {
	Offer         [32]byte
	Stock         [32]byte
	Maker         [32]byte
	MarketPlace   [32]byte
	Authority     [20]byte
	OfferType     OfferType
	Points        *big.Int
	Amount        *big.Int
	DepositAmount *big.Int
}

func (OfferCreated) EventType() string { return EventTypeOfferCreated }

func (e OfferCreated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOfferCreated,
		Attributes: map[string]string{
			"offer":         idAttr(e.Offer),
			"stock":         idAttr(e.Stock),
			"maker":         idAttr(e.Maker),
			"marketPlace":   idAttr(e.MarketPlace),
			"authority":     addrAttr(e.Authority),
			"offerType":     strconv.FormatUint(uint64(e.OfferType), 10),
			"points":        amountAttr(e.Points),
			"amount":        amountAttr(e.Amount),
			"depositAmount": amountAttr(e.DepositAmount),
		},
	}
}

// TakerCreated is emitted when a taker fills part of an offer. It carries
// every amount computed during the fill as the audit trail.
type TakerCreated struct {
	Offer          [32]byte
	Stock          [32]byte
	Maker          [32]byte
	Taker          [20]byte
	Points         *big.Int
	DepositAmount  *big.Int
	PlatformFee    *big.Int
	TradeTax       *big.Int
	ReferrerBonus  *big.Int
	AuthorityBonus *big.Int
	TransferAmount *big.Int
}

func (TakerCreated) EventType() string { return EventTypeTakerCreated }

func (e TakerCreated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeTakerCreated,
		Attributes: map[string]string{
			"offer":          idAttr(e.Offer),
			"stock":          idAttr(e.Stock),
			"maker":          idAttr(e.Maker),
			"taker":          addrAttr(e.Taker),
			"points":         amountAttr(e.Points),
			"depositAmount":  amountAttr(e.DepositAmount),
			"platformFee":    amountAttr(e.PlatformFee),
			"tradeTax":       amountAttr(e.TradeTax),
			"referrerBonus":  amountAttr(e.ReferrerBonus),
			"authorityBonus": amountAttr(e.AuthorityBonus),
			"transferAmount": amountAttr(e.TransferAmount),
		},
	}
}

// OfferListed is emitted when a stock holder lists a sub-offer.
type OfferListed struct {
	Offer          [32]byte
	Stock          [32]byte
	Maker          [32]byte
	Authority      [20]byte
	Points         *big.Int
	Amount         *big.Int
	CollateralRate uint64
	DepositAmount  *big.Int
}

func (OfferListed) EventType() string { return EventTypeOfferListed }

func (e OfferListed) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOfferListed,
		Attributes: map[string]string{
			"offer":          idAttr(e.Offer),
			"stock":          idAttr(e.Stock),
			"maker":          idAttr(e.Maker),
			"authority":      addrAttr(e.Authority),
			"points":         amountAttr(e.Points),
			"amount":         amountAttr(e.Amount),
			"collateralRate": strconv.FormatUint(e.CollateralRate, 10),
			"depositAmount":  amountAttr(e.DepositAmount),
		},
	}
}

// OfferClosed is emitted when a virgin offer is canceled.
type OfferClosed struct {
	Offer        [32]byte
	Stock        [32]byte
	Authority    [20]byte
	RefundAmount *big.Int
}

func (OfferClosed) EventType() string { return EventTypeOfferClosed }

func (e OfferClosed) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOfferClosed,
		Attributes: map[string]string{
			"offer":        idAttr(e.Offer),
			"stock":        idAttr(e.Stock),
			"authority":    addrAttr(e.Authority),
			"refundAmount": amountAttr(e.RefundAmount),
		},
	}
}

// OfferRelisted is emitted when a canceled offer returns to virgin status.
type OfferRelisted struct {
	Offer         [32]byte
	Stock         [32]byte
	Authority     [20]byte
	DepositAmount *big.Int
}

func (OfferRelisted) EventType() string { return EventTypeOfferRelisted }

func (e OfferRelisted) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOfferRelisted,
		Attributes: map[string]string{
			"offer":         idAttr(e.Offer),
			"stock":         idAttr(e.Stock),
			"authority":     addrAttr(e.Authority),
			"depositAmount": amountAttr(e.DepositAmount),
		},
	}
}

// AskOfferAborted is emitted on the maker's early exit from an ask offer.
type AskOfferAborted struct {
	Offer        [32]byte
	Stock        [32]byte
	Authority    [20]byte
	RefundAmount *big.Int
}

func (AskOfferAborted) EventType() string { return EventTypeAskOfferAborted }

func (e AskOfferAborted) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAskOfferAborted,
		Attributes: map[string]string{
			"offer":        idAttr(e.Offer),
			"stock":        idAttr(e.Stock),
			"authority":    addrAttr(e.Authority),
			"refundAmount": amountAttr(e.RefundAmount),
		},
	}
}

// BidTakerAborted is emitted when a taker reclaims margin from an aborted
// ask offer.
type BidTakerAborted struct {
	Offer        [32]byte
	Stock        [32]byte
	Authority    [20]byte
	RefundAmount *big.Int
}

func (BidTakerAborted) EventType() string { return EventTypeBidTakerAborted }

func (e BidTakerAborted) Event() *types.Event {
	return &types.Event{
		Type: EventTypeBidTakerAborted,
		Attributes: map[string]string{
			"offer":        idAttr(e.Offer),
			"stock":        idAttr(e.Stock),
			"authority":    addrAttr(e.Authority),
			"refundAmount": amountAttr(e.RefundAmount),
		},
	}
}

// BidOfferClosed is emitted when a bid maker exits during settlement.
type BidOfferClosed struct {
	Offer        [32]byte
	Authority    [20]byte
	RefundAmount *big.Int
}

func (BidOfferClosed) EventType() string { return EventTypeBidOfferClosed }

func (e BidOfferClosed) Event() *types.Event {
	return &types.Event{
		Type: EventTypeBidOfferClosed,
		Attributes: map[string]string{
			"offer":        idAttr(e.Offer),
			"authority":    addrAttr(e.Authority),
			"refundAmount": amountAttr(e.RefundAmount),
		},
	}
}

// BidTakerClosed is emitted when a bid stock holder collects their pro-rata
// settlement share.
type BidTakerClosed struct {
	Stock            [32]byte
	Offer            [32]byte
	Authority        [20]byte
	RemainingPoints  *big.Int
	CollateralFee    *big.Int
	PointTokenAmount *big.Int
}

func (BidTakerClosed) EventType() string { return EventTypeBidTakerClosed }

func (e BidTakerClosed) Event() *types.Event {
	return &types.Event{
		Type: EventTypeBidTakerClosed,
		Attributes: map[string]string{
			"stock":            idAttr(e.Stock),
			"offer":            idAttr(e.Offer),
			"authority":        addrAttr(e.Authority),
			"remainingPoints":  amountAttr(e.RemainingPoints),
			"collateralFee":    amountAttr(e.CollateralFee),
			"pointTokenAmount": amountAttr(e.PointTokenAmount),
		},
	}
}

// AskMakerSettled is emitted when the maker side of an ask offer settles.
type AskMakerSettled struct {
	Offer                   [32]byte
	Caller                  [20]byte
	SettledPoints           *big.Int
	SettledPointTokenAmount *big.Int
	CollateralRelease       *big.Int
}

func (AskMakerSettled) EventType() string { return EventTypeAskMakerSettled }

func (e AskMakerSettled) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAskMakerSettled,
		Attributes: map[string]string{
			"offer":                   idAttr(e.Offer),
			"caller":                  addrAttr(e.Caller),
			"settledPoints":           amountAttr(e.SettledPoints),
			"settledPointTokenAmount": amountAttr(e.SettledPointTokenAmount),
			"collateralRelease":       amountAttr(e.CollateralRelease),
		},
	}
}

// AskTakerSettled is emitted when a taker-held ask stock settles.
type AskTakerSettled struct {
	Stock                   [32]byte
	Offer                   [32]byte
	Caller                  [20]byte
	SettledPoints           *big.Int
	SettledPointTokenAmount *big.Int
	CollateralRelease       *big.Int
}

func (AskTakerSettled) EventType() string { return EventTypeAskTakerSettled }

func (e AskTakerSettled) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAskTakerSettled,
		Attributes: map[string]string{
			"stock":                   idAttr(e.Stock),
			"offer":                   idAttr(e.Offer),
			"caller":                  addrAttr(e.Caller),
			"settledPoints":           amountAttr(e.SettledPoints),
			"settledPointTokenAmount": amountAttr(e.SettledPointTokenAmount),
			"collateralRelease":       amountAttr(e.CollateralRelease),
		},
	}
}

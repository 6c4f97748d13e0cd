package registry

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"premarket/core/types"
	"premarket/crypto"
	"premarket/native/market"
)

const (
	EventTypeMarketPlaceCreated  = "registry.marketplace.created"
	EventTypeMarketUpdated       = "registry.marketplace.updated"
	EventTypeMarketStatusUpdated = "registry.marketplace.status_updated"
	EventTypePlatformFeeRateSet  = "registry.platform_fee.set"
	EventTypeReferrerUpdated     = "registry.referrer.updated"
	EventTypeOperatorSet         = "registry.operator.set"
	EventTypeModulePauseSet      = "registry.module_pause.set"
)

func idAttr(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

func addrAttr(raw [20]byte) string {
	return crypto.NewAddress(crypto.PMPrefix, raw[:]).String()
}

type MarketPlaceCreated struct {
	ID         [32]byte
	Name       string
	FixedRatio bool
}

func (MarketPlaceCreated) EventType() string { return EventTypeMarketPlaceCreated }

func (m *MarketPlaceCreated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeMarketPlaceCreated,
		Attributes: map[string]string{
			"marketPlace": idAttr(m.ID),
			"name":        m.Name,
			"fixedRatio":  strconv.FormatBool(m.FixedRatio),
		},
	}
}

type MarketUpdated struct {
	ID               [32]byte
	TokenAddress     [20]byte
	TokenPerPoint    *big.Int
	TGE              int64
	SettlementPeriod int64
}

func (MarketUpdated) EventType() string { return EventTypeMarketUpdated }

func (m *MarketUpdated) Event() *types.Event {
	tokenPerPoint := "0"
	if m.TokenPerPoint != nil {
		tokenPerPoint = m.TokenPerPoint.String()
	}
	return &types.Event{
		Type: EventTypeMarketUpdated,
		Attributes: map[string]string{
			"marketPlace":      idAttr(m.ID),
			"tokenAddress":     addrAttr(m.TokenAddress),
			"tokenPerPoint":    tokenPerPoint,
			"tge":              strconv.FormatInt(m.TGE, 10),
			"settlementPeriod": strconv.FormatInt(m.SettlementPeriod, 10),
		},
	}
}

type MarketStatusUpdated struct {
	ID     [32]byte
	Status market.MarketStatus
}

func (MarketStatusUpdated) EventType() string { return EventTypeMarketStatusUpdated }

func (m *MarketStatusUpdated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeMarketStatusUpdated,
		Attributes: map[string]string{
			"marketPlace": idAttr(m.ID),
			"status":      strconv.FormatUint(uint64(m.Status), 10),
		},
	}
}

type PlatformFeeRateSet struct {
	User [20]byte
	Rate uint64
}

func (PlatformFeeRateSet) EventType() string { return EventTypePlatformFeeRateSet }

func (p *PlatformFeeRateSet) Event() *types.Event {
	return &types.Event{
		Type: EventTypePlatformFeeRateSet,
		Attributes: map[string]string{
			"user": addrAttr(p.User),
			"rate": strconv.FormatUint(p.Rate, 10),
		},
	}
}

type ReferrerUpdated struct {
	User          [20]byte
	Referrer      [20]byte
	ReferrerRate  uint64
	AuthorityRate uint64
}

func (ReferrerUpdated) EventType() string { return EventTypeReferrerUpdated }

func (r *ReferrerUpdated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeReferrerUpdated,
		Attributes: map[string]string{
			"user":          addrAttr(r.User),
			"referrer":      addrAttr(r.Referrer),
			"referrerRate":  strconv.FormatUint(r.ReferrerRate, 10),
			"authorityRate": strconv.FormatUint(r.AuthorityRate, 10),
		},
	}
}

type OperatorSet struct {
	Operator [20]byte
	Enabled  bool
}

func (OperatorSet) EventType() string { return EventTypeOperatorSet }

func (o *OperatorSet) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOperatorSet,
		Attributes: map[string]string{
			"operator": addrAttr(o.Operator),
			"enabled":  strconv.FormatBool(o.Enabled),
		},
	}
}

type ModulePauseSet struct {
	Module string
	Paused bool
}

func (ModulePauseSet) EventType() string { return EventTypeModulePauseSet }

func (m *ModulePauseSet) Event() *types.Event {
	return &types.Event{
		Type: EventTypeModulePauseSet,
		Attributes: map[string]string{
			"module": m.Module,
			"paused": strconv.FormatBool(m.Paused),
		},
	}
}

package registry

import (
	"errors"
	"fmt"
	"math/big"

	"premarket/core/events"
	"premarket/native/market"
)

// Default economics applied when the node operator does not override them.
const (
	DefaultPlatformFeeRate = 50  // 0.5%
	DefaultTradeTaxCap     = 500 // 5%
)

// Storage abstracts the subset of state manager functionality required by
// the registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	errNilState = errors.New("registry engine: state not configured")

	ErrNotOwner          = errors.New("registry: caller is not the owner")
	ErrMarketExists      = errors.New("registry: marketplace already exists")
	ErrMarketNotFound    = errors.New("registry: marketplace not found")
	ErrMarketNotOnline   = errors.New("registry: marketplace is not online")
	ErrInvalidName       = errors.New("registry: marketplace name must not be empty")
	ErrInvalidTokenPer   = errors.New("registry: token per point must be positive")
	ErrInvalidPeriod     = errors.New("registry: settlement period must be positive")
	ErrInvalidFeeRate    = errors.New("registry: fee rate exceeds the rate scaler")
	ErrSelfReferral      = errors.New("registry: caller cannot refer themselves")
	ErrZeroReferrer      = errors.New("registry: referrer must not be the zero address")
	ErrInvalidSplitRates = errors.New("registry: referral rates exceed the rate scaler")
)

// storedMarketPlace is the RLP shadow of market.MarketPlace. Timestamps are
// widened to uint64 because the codec rejects signed integers.
type storedMarketPlace struct {
	ID               [32]byte
	Name             string
	Status           uint8
	FixedRatio       bool
	TokenAddress     [20]byte
	TokenPerPoint    *big.Int
	TGE              uint64
	SettlementPeriod uint64
}

func (s *storedMarketPlace) toMarketPlace() *market.MarketPlace {
	return &market.MarketPlace{
		ID:               s.ID,
		Name:             s.Name,
		Status:           market.MarketStatus(s.Status),
		FixedRatio:       s.FixedRatio,
		TokenAddress:     s.TokenAddress,
		TokenPerPoint:    s.TokenPerPoint,
		TGE:              int64(s.TGE),
		SettlementPeriod: int64(s.SettlementPeriod),
	}
}

type storedReferral struct {
	Referrer      [20]byte
	ReferrerRate  uint64
	AuthorityRate uint64
}

// Engine owns marketplace configuration, platform fee overrides, referral
// bindings, the operator set and the per-module pause switches. The market
// engines consume it read-only through the market.ConfigRegistry interface.
type Engine struct {
	store   Storage
	emitter events.Emitter

	owner       [20]byte
	baseFeeRate uint64
	taxCap      uint64
}

// NewEngine creates a registry engine with default economics and a no-op
// emitter. The owner must be configured before any administrative call.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		baseFeeRate: DefaultPlatformFeeRate,
		taxCap:      DefaultTradeTaxCap,
	}
}

// SetStorage configures the state backend used by the registry.
func (e *Engine) SetStorage(store Storage) { e.store = store }

// SetOwner configures the administrative authority.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// SetBasePlatformFeeRate configures the fee rate applied to users without an
// explicit override.
func (e *Engine) SetBasePlatformFeeRate(bps uint64) { e.baseFeeRate = bps }

// SetTradeTaxCap configures the upper bound makers may set as trade tax.
func (e *Engine) SetTradeTaxCap(bps uint64) { e.taxCap = bps }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner || caller == ([20]byte{}) {
		return ErrNotOwner
	}
	return nil
}

func marketKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("registry/market/%x", id))
}

func feeOverrideKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("registry/fee/%x", user))
}

func referralKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("registry/referral/%x", user))
}

func operatorKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("registry/operator/%x", user))
}

func pauseKey(module string) []byte {
	return []byte("registry/pause/" + module)
}

func (e *Engine) loadMarket(id [32]byte) (*storedMarketPlace, bool, error) {
	var stored storedMarketPlace
	ok, err := e.store.KVGet(marketKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

// CreateMarketPlace registers a new points market under the canonical form
// of name and brings it online. Only the owner may create markets.
func (e *Engine) CreateMarketPlace(caller [20]byte, name string, fixedRatio bool) (*market.MarketPlace, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrInvalidName
	}
	id := market.MarketPlaceID(name)
	if _, ok, err := e.loadMarket(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrMarketExists
	}
	stored := &storedMarketPlace{
		ID:            id,
		Name:          name,
		Status:        uint8(market.MarketOnline),
		FixedRatio:    fixedRatio,
		TokenPerPoint: big.NewInt(0),
	}
	if err := e.store.KVPut(marketKey(id), stored); err != nil {
		return nil, err
	}
	e.emit(&MarketPlaceCreated{ID: id, Name: name, FixedRatio: fixedRatio})
	return stored.toMarketPlace(), nil
}

// UpdateMarket sets the settlement parameters of a marketplace: the token
// the points convert into, the conversion rate, the token generation
// timestamp and the length of the ask settling window.
func (e *Engine) UpdateMarket(caller [20]byte, name string, tokenAddress [20]byte, tokenPerPoint *big.Int, tge, settlementPeriod int64) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if tokenPerPoint == nil || tokenPerPoint.Sign() <= 0 {
		return ErrInvalidTokenPer
	}
	if tge < 0 || settlementPeriod <= 0 {
		return ErrInvalidPeriod
	}
	id := market.MarketPlaceID(name)
	stored, ok, err := e.loadMarket(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMarketNotFound
	}
	if stored.Status != uint8(market.MarketOnline) {
		return ErrMarketNotOnline
	}
	stored.TokenAddress = tokenAddress
	stored.TokenPerPoint = new(big.Int).Set(tokenPerPoint)
	stored.TGE = uint64(tge)
	stored.SettlementPeriod = uint64(settlementPeriod)
	if err := e.store.KVPut(marketKey(id), stored); err != nil {
		return err
	}
	e.emit(&MarketUpdated{ID: id, TokenAddress: tokenAddress, TokenPerPoint: new(big.Int).Set(tokenPerPoint), TGE: tge, SettlementPeriod: settlementPeriod})
	return nil
}

// UpdateMarketPlaceStatus toggles a marketplace between online and offline.
func (e *Engine) UpdateMarketPlaceStatus(caller [20]byte, name string, online bool) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	id := market.MarketPlaceID(name)
	stored, ok, err := e.loadMarket(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMarketNotFound
	}
	status := market.MarketOffline
	if online {
		status = market.MarketOnline
	}
	stored.Status = uint8(status)
	if err := e.store.KVPut(marketKey(id), stored); err != nil {
		return err
	}
	e.emit(&MarketStatusUpdated{ID: id, Status: status})
	return nil
}

// SetPlatformFeeRate installs a per-user override of the platform fee rate.
func (e *Engine) SetPlatformFeeRate(caller, user [20]byte, bps uint64) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if bps > market.RateScaler {
		return ErrInvalidFeeRate
	}
	if err := e.store.KVPut(feeOverrideKey(user), bps); err != nil {
		return err
	}
	e.emit(&PlatformFeeRateSet{User: user, Rate: bps})
	return nil
}

// UpdateReferrer binds the caller to a referrer with the given bonus split.
// The split is expressed against the rate scaler and applies to the platform
// fee the caller pays on each trade.
func (e *Engine) UpdateReferrer(caller, referrer [20]byte, referrerRate, authorityRate uint64) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if referrer == ([20]byte{}) {
		return ErrZeroReferrer
	}
	if referrer == caller {
		return ErrSelfReferral
	}
	// Bound each rate before summing so the uint64 addition cannot wrap.
	if referrerRate > market.RateScaler || authorityRate > market.RateScaler ||
		referrerRate+authorityRate > market.RateScaler {
		return ErrInvalidSplitRates
	}
	stored := &storedReferral{Referrer: referrer, ReferrerRate: referrerRate, AuthorityRate: authorityRate}
	if err := e.store.KVPut(referralKey(caller), stored); err != nil {
		return err
	}
	e.emit(&ReferrerUpdated{User: caller, Referrer: referrer, ReferrerRate: referrerRate, AuthorityRate: authorityRate})
	return nil
}

// SetOperator grants or revokes the operator role used to force-close
// settlement on behalf of inactive makers.
func (e *Engine) SetOperator(caller, operator [20]byte, enabled bool) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.store.KVPut(operatorKey(operator), enabled); err != nil {
		return err
	}
	e.emit(&OperatorSet{Operator: operator, Enabled: enabled})
	return nil
}

// SetPaused flips the administrative pause switch for a module.
func (e *Engine) SetPaused(caller [20]byte, module string, paused bool) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.store.KVPut(pauseKey(module), paused); err != nil {
		return err
	}
	e.emit(&ModulePauseSet{Module: module, Paused: paused})
	return nil
}

// IsPaused reports whether the named module is paused. It implements
// nativecommon.PauseView; lookup errors fail open so a corrupted pause
// record cannot brick the engines.
func (e *Engine) IsPaused(module string) bool {
	if e == nil || e.store == nil {
		return false
	}
	var paused bool
	ok, err := e.store.KVGet(pauseKey(module), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// MarketPlaceInfo returns the marketplace record for id.
func (e *Engine) MarketPlaceInfo(id [32]byte) (*market.MarketPlace, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, errNilState
	}
	stored, ok, err := e.loadMarket(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toMarketPlace(), true, nil
}

// ReferralInfo returns the referral binding of user, if any.
func (e *Engine) ReferralInfo(user [20]byte) (*market.ReferralInfo, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, errNilState
	}
	var stored storedReferral
	ok, err := e.store.KVGet(referralKey(user), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &market.ReferralInfo{
		Referrer:      stored.Referrer,
		ReferrerRate:  stored.ReferrerRate,
		AuthorityRate: stored.AuthorityRate,
	}, true, nil
}

// PlatformFeeRate returns the fee rate for user: the stored override when
// one exists, otherwise the base rate.
func (e *Engine) PlatformFeeRate(user [20]byte) (uint64, error) {
	if e == nil || e.store == nil {
		return 0, errNilState
	}
	var override uint64
	ok, err := e.store.KVGet(feeOverrideKey(user), &override)
	if err != nil {
		return 0, err
	}
	if ok {
		return override, nil
	}
	return e.baseFeeRate, nil
}

// TradeTaxCap returns the upper bound on maker trade tax.
func (e *Engine) TradeTaxCap() uint64 {
	if e == nil {
		return 0
	}
	return e.taxCap
}

// IsOperator reports whether user holds the operator role.
func (e *Engine) IsOperator(user [20]byte) bool {
	if e == nil || e.store == nil {
		return false
	}
	var enabled bool
	ok, err := e.store.KVGet(operatorKey(user), &enabled)
	if err != nil || !ok {
		return false
	}
	return enabled
}

package market

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RateScaler is the basis-point scaler applied to every rate in the system:
// collateral rates, platform fees, trade taxes and referral rates.
const RateScaler uint64 = 10_000

// OfferType distinguishes the two sides of the points market.
type OfferType uint8

const (
	OfferTypeAsk OfferType = iota // selling points
	OfferTypeBid                  // buying points
)

// OfferStatus represents the lifecycle states of an offer. Settled is
// terminal; Virgin and Canceled toggle through close/relist.
type OfferStatus uint8

const (
	OfferStatusVirgin OfferStatus = iota
	OfferStatusCanceled
	OfferStatusSettled
)

// AbortStatus gates the early-exit path of an ask offer. Once a turbo
// sub-offer has been listed against the offer the abort path is blocked so
// the same collateral cannot be released twice.
type AbortStatus uint8

const (
	AbortStatusInitialized AbortStatus = iota
	AbortStatusSubOfferListed
	AbortStatusAborted
)

// StockType mirrors OfferType for the taker side of a trade.
type StockType uint8

const (
	StockTypeAsk StockType = iota
	StockTypeBid
)

// StockStatus tracks a stock from minting to its terminal state.
type StockStatus uint8

const (
	StockStatusInitialized StockStatus = iota
	StockStatusFinished
)

// OfferSettleType selects how re-listed sub-offers relate to the original
// offer: Protected guarantees the original terms through every re-listing,
// Turbo lets sub-offers float independently.
type OfferSettleType uint8

const (
	SettleTypeProtected OfferSettleType = iota
	SettleTypeTurbo
)

// MarketStatus is the stored plus time-derived status of a marketplace. Only
// Uninitialized, Online and Offline are ever stored; the settling phases are
// derived from the token generation timestamp.
type MarketStatus uint8

const (
	MarketUninitialized MarketStatus = iota
	MarketOnline
	MarketAskSettling
	MarketBidSettling
	MarketOffline
)

// MarketPlace holds the configuration of a single points market. Records are
// owned by the config registry; the engines only read them.
type MarketPlace struct {
	ID               [32]byte
	Name             string
	Status           MarketStatus
	FixedRatio       bool
	TokenAddress     [20]byte
	TokenPerPoint    *big.Int
	TGE              int64
	SettlementPeriod int64
}

// LiveStatus derives the effective status at the given time. An online
// market enters its ask-settling phase at the token generation timestamp and
// its bid-settling phase once the settlement period has elapsed.
func (m *MarketPlace) LiveStatus(now int64) MarketStatus {
	if m == nil {
		return MarketUninitialized
	}
	if m.Status != MarketOnline {
		return m.Status
	}
	if m.TGE == 0 || now < m.TGE {
		return MarketOnline
	}
	if now < m.TGE+m.SettlementPeriod {
		return MarketAskSettling
	}
	return MarketBidSettling
}

// Clone returns a deep copy of the marketplace record.
func (m *MarketPlace) Clone() *MarketPlace {
	if m == nil {
		return nil
	}
	clone := *m
	clone.TokenPerPoint = cloneBigInt(m.TokenPerPoint)
	return &clone
}

// Maker records the economic owner of an offer chain: the settle type, trade
// tax and collateral token apply to the origin offer and every sub-offer
// listed from it.
type Maker struct {
	ID           [32]byte
	SeqID        uint64
	Authority    [20]byte
	MarketPlace  [32]byte
	TokenAddress [20]byte
	OriginOffer  [32]byte
	SettleType   OfferSettleType
	EachTradeTax uint64
	PlatformFee  *big.Int
}

// Clone returns a deep copy of the maker record.
func (m *Maker) Clone() *Maker {
	if m == nil {
		return nil
	}
	clone := *m
	clone.PlatformFee = cloneBigInt(m.PlatformFee)
	return &clone
}

// Offer is a standing commitment to sell (ask) or buy (bid) a quantity of
// points at the recorded amount and collateral rate.
type Offer struct {
	ID                      [32]byte
	SeqID                   uint64
	Authority               [20]byte
	Maker                   [32]byte
	OfferType               OfferType
	Status                  OfferStatus
	Abort                   AbortStatus
	CollateralRate          uint64
	Points                  *big.Int
	Amount                  *big.Int
	UsedPoints              *big.Int
	SettledPoints           *big.Int
	SettledPointTokenAmount *big.Int
}

// Clone returns a deep copy of the offer record.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Points = cloneBigInt(o.Points)
	clone.Amount = cloneBigInt(o.Amount)
	clone.UsedPoints = cloneBigInt(o.UsedPoints)
	clone.SettledPoints = cloneBigInt(o.SettledPoints)
	clone.SettledPointTokenAmount = cloneBigInt(o.SettledPointTokenAmount)
	return &clone
}

// Stock is a holder's claim carved out of an offer, either the origin claim
// minted with the offer itself (PreOffer zero) or a taker's fill. Offer
// links the sub-offer listed against this stock, zero while unlisted.
type Stock struct {
	ID        [32]byte
	SeqID     uint64
	Authority [20]byte
	Maker     [32]byte
	StockType StockType
	Status    StockStatus
	PreOffer  [32]byte
	Offer     [32]byte
	Points    *big.Int
	Amount    *big.Int
}

// Clone returns a deep copy of the stock record.
func (s *Stock) Clone() *Stock {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Points = cloneBigInt(s.Points)
	clone.Amount = cloneBigInt(s.Amount)
	return &clone
}

// ReferralInfo is the registered referral split for a taker. Rates are bps of
// the platform fee; their sum never exceeds RateScaler.
type ReferralInfo struct {
	Referrer      [20]byte
	ReferrerRate  uint64
	AuthorityRate uint64
}

var (
	offerIDTag       = []byte("premarket/offer/")
	stockIDTag       = []byte("premarket/stock/")
	makerIDTag       = []byte("premarket/maker/")
	marketPlaceIDTag = []byte("premarket/marketplace/")
)

func sequenceBytes(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}

// OfferID derives the deterministic identifier for the offer minted with the
// given sequence number.
func OfferID(seq uint64) [32]byte {
	return ethcrypto.Keccak256Hash(offerIDTag, sequenceBytes(seq))
}

// StockID derives the deterministic identifier for the stock minted with the
// given sequence number.
func StockID(seq uint64) [32]byte {
	return ethcrypto.Keccak256Hash(stockIDTag, sequenceBytes(seq))
}

// MakerID derives the deterministic identifier for the maker minted with the
// given sequence number.
func MakerID(seq uint64) [32]byte {
	return ethcrypto.Keccak256Hash(makerIDTag, sequenceBytes(seq))
}

// MarketPlaceID derives the deterministic identifier of a marketplace from
// its canonical (lower-cased, trimmed) name.
func MarketPlaceID(name string) [32]byte {
	canonical := strings.ToLower(strings.TrimSpace(name))
	return ethcrypto.Keccak256Hash(marketPlaceIDTag, []byte(canonical))
}

// Valid reports whether the status value is within the supported range.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusVirgin, OfferStatusCanceled, OfferStatusSettled:
		return true
	default:
		return false
	}
}

// Valid reports whether the status value is within the supported range.
func (s StockStatus) Valid() bool {
	return s == StockStatusInitialized || s == StockStatusFinished
}

// Opposite returns the stock type a taker receives when filling an offer of
// the given type.
func (t OfferType) Opposite() StockType {
	if t == OfferTypeAsk {
		return StockTypeBid
	}
	return StockTypeAsk
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizeOffer validates an offer record loaded from storage, returning a
// clone with non-nil amount fields.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("nil offer")
	}
	clone := o.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid offer status: %d", clone.Status)
	}
	if clone.Points.Sign() <= 0 || clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("offer points and amount must be positive")
	}
	if clone.UsedPoints.Cmp(clone.Points) > 0 {
		return nil, fmt.Errorf("offer used points exceed total points")
	}
	if clone.SettledPoints.Cmp(clone.UsedPoints) > 0 {
		return nil, fmt.Errorf("offer settled points exceed used points")
	}
	return clone, nil
}

// SanitizeStock validates a stock record loaded from storage, returning a
// clone with non-nil amount fields.
func SanitizeStock(s *Stock) (*Stock, error) {
	if s == nil {
		return nil, fmt.Errorf("nil stock")
	}
	clone := s.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid stock status: %d", clone.Status)
	}
	if clone.Points.Sign() <= 0 {
		return nil, fmt.Errorf("stock points must be positive")
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("stock amount must be non-negative")
	}
	return clone, nil
}

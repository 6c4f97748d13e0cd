package market

import "errors"

// Wiring errors.
var (
	errNilState    = errors.New("market engine: state not configured")
	errNilRegistry = errors.New("market engine: registry not configured")
	errNilLedger   = errors.New("market engine: ledger not configured")
)

// Validation errors: the caller supplied an argument that can never be
// accepted, independent of entity state.
var (
	ErrInvalidPoints         = errors.New("market: points must be positive")
	ErrInvalidAmount         = errors.New("market: amount must be positive")
	ErrCollateralRateTooLow  = errors.New("market: collateral rate below full coverage")
	ErrTradeTaxTooHigh       = errors.New("market: trade tax exceeds configured cap")
	ErrInsufficientPoints    = errors.New("market: points exceed remaining offer capacity")
	ErrInvalidSettledPoints  = errors.New("market: settled points exceed settleable points")
	ErrFixedRatioUnsupported = errors.New("market: fixed-ratio market cannot settle through this path")
	ErrForcedSettleNonZero   = errors.New("market: forced settlement must settle zero points")
	ErrTurboRateMismatch     = errors.New("market: turbo sub-offer must keep the origin collateral rate")
)

// State errors: the referenced entity exists but is in the wrong phase for
// the requested transition.
var (
	ErrOfferNotFound       = errors.New("market: offer not found")
	ErrStockNotFound       = errors.New("market: stock not found")
	ErrMakerNotFound       = errors.New("market: maker not found")
	ErrMarketPlaceNotFound = errors.New("market: marketplace not found")
	ErrInvalidOfferStatus  = errors.New("market: offer status does not permit this operation")
	ErrInvalidStockStatus  = errors.New("market: stock status does not permit this operation")
	ErrInvalidAbortStatus  = errors.New("market: abort status does not permit this operation")
	ErrInvalidOfferType    = errors.New("market: offer type does not permit this operation")
	ErrInvalidStockType    = errors.New("market: stock type does not permit this operation")
	ErrMarketStatus        = errors.New("market: marketplace not in the required phase")
	ErrStockAlreadyListed  = errors.New("market: stock already has a listed offer")
	ErrStockOfferMismatch  = errors.New("market: stock is not linked to the supplied offer")
	ErrNoRemainingPoints   = errors.New("market: no remaining points to close")
)

// Authorization errors.
var (
	ErrUnauthorized = errors.New("market: caller is not the recorded authority")
	ErrNotOperator  = errors.New("market: caller is not the privileged operator")
)

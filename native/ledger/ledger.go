package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"premarket/core/events"
	nativecommon "premarket/native/common"
	"premarket/observability"
)

const ledgerModuleName = "ledger"

// BalanceCategory names the withdrawable balance buckets the engines credit.
type BalanceCategory uint8

const (
	BalanceTaxIncome BalanceCategory = iota
	BalanceReferralBonus
	BalanceSalesRevenue
	BalanceRemainingCash
	BalanceMakerRefund
	BalancePointToken
)

// String returns the canonical bucket name used in events and RPC payloads.
func (c BalanceCategory) String() string {
	switch c {
	case BalanceTaxIncome:
		return "tax_income"
	case BalanceReferralBonus:
		return "referral_bonus"
	case BalanceSalesRevenue:
		return "sales_revenue"
	case BalanceRemainingCash:
		return "remaining_cash"
	case BalanceMakerRefund:
		return "maker_refund"
	case BalancePointToken:
		return "point_token"
	default:
		return fmt.Sprintf("category_%d", uint8(c))
	}
}

// Valid reports whether the category value is within the supported range.
func (c BalanceCategory) Valid() bool {
	return c <= BalancePointToken
}

// Storage abstracts the subset of state manager functionality required by
// the custodial ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	errNilState = errors.New("ledger engine: state not configured")

	// ErrInsufficientFunds signals that the payer's account could not cover
	// the exact amount of an inbound transfer. The whole transaction aborts.
	ErrInsufficientFunds = errors.New("ledger: insufficient account balance")
	// ErrVaultUnderflow signals that custody does not hold the amount being
	// paid out; it indicates corrupted accounting and is always fatal.
	ErrVaultUnderflow = errors.New("ledger: vault balance underflow")

	ErrInvalidAmount   = errors.New("ledger: amount must be non-negative")
	ErrInvalidCategory = errors.New("ledger: unknown balance category")
)

// Engine is the custodial ledger: it owns per-user account balances, the
// module vault and the per-category claimable buckets. The market engines
// never move value themselves; they instruct this ledger.
type Engine struct {
	store   Storage
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine creates a ledger engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetStorage configures the state backend used by the ledger.
func (e *Engine) SetStorage(store Storage) { e.store = store }

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

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) getAmount(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := e.store.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func tokenLabel(token [20]byte) string {
	return hex.EncodeToString(token[:])
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// BalanceOf returns the free account balance held by user for token.
func (e *Engine) BalanceOf(user, token [20]byte) (*big.Int, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	return e.getAmount(accountKey(token, user))
}

// ClaimableOf returns the claimable balance credited to user in the given
// category bucket.
func (e *Engine) ClaimableOf(category BalanceCategory, user, token [20]byte) (*big.Int, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	return e.getAmount(claimableKey(category, token, user))
}

// VaultBalance returns the total custody held for token.
func (e *Engine) VaultBalance(token [20]byte) (*big.Int, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	return e.getAmount(vaultKey(token))
}

// Deposit credits a user's free account balance. It is the funding ingress
// driven by the custody plumbing when external value arrives.
func (e *Engine) Deposit(user, token [20]byte, amount *big.Int) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, ledgerModuleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := e.getAmount(accountKey(token, user))
	if err != nil {
		return err
	}
	if err := e.store.KVPut(accountKey(token, user), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	e.emit(&Deposited{User: user, Token: token, Amount: cloneBigInt(amount)})
	return nil
}

// TillIn pulls amount from the payer's account into the module vault. A zero
// amount is a no-op. The transfer is exact: any shortfall aborts the whole
// transaction rather than moving a partial amount.
func (e *Engine) TillIn(payer, token [20]byte, amount *big.Int, isPointToken bool) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, ledgerModuleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := e.getAmount(accountKey(token, payer))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	vault, err := e.getAmount(vaultKey(token))
	if err != nil {
		return err
	}
	if err := e.store.KVPut(accountKey(token, payer), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	newVault := new(big.Int).Add(vault, amount)
	if err := e.store.KVPut(vaultKey(token), newVault); err != nil {
		return err
	}
	observability.Ledger().RecordTillIn(tokenLabel(token), amount)
	observability.Ledger().SetVaultBalance(tokenLabel(token), newVault)
	e.emit(&TilledIn{Payer: payer, Token: token, Amount: cloneBigInt(amount), PointToken: isPointToken})
	return nil
}

// AddTokenBalance credits a claimable balance bucket. The value stays in
// custody until the beneficiary withdraws; crediting never transfers
// control, which keeps the engines free of reentrancy.
func (e *Engine) AddTokenBalance(category BalanceCategory, to, token [20]byte, amount *big.Int) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, ledgerModuleName); err != nil {
		return err
	}
	if !category.Valid() {
		return ErrInvalidCategory
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	claimable, err := e.getAmount(claimableKey(category, token, to))
	if err != nil {
		return err
	}
	if err := e.store.KVPut(claimableKey(category, token, to), new(big.Int).Add(claimable, amount)); err != nil {
		return err
	}
	e.emit(&BalanceAdded{Category: category, To: to, Token: token, Amount: cloneBigInt(amount)})
	return nil
}

// Withdraw moves the full claimable balance of a category bucket back to the
// user's free account balance and returns the amount moved.
func (e *Engine) Withdraw(user, token [20]byte, category BalanceCategory) (*big.Int, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ledgerModuleName); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	claimable, err := e.getAmount(claimableKey(category, token, user))
	if err != nil {
		return nil, err
	}
	if claimable.Sign() == 0 {
		return big.NewInt(0), nil
	}
	vault, err := e.getAmount(vaultKey(token))
	if err != nil {
		return nil, err
	}
	if vault.Cmp(claimable) < 0 {
		return nil, ErrVaultUnderflow
	}
	balance, err := e.getAmount(accountKey(token, user))
	if err != nil {
		return nil, err
	}
	if err := e.store.KVPut(claimableKey(category, token, user), big.NewInt(0)); err != nil {
		return nil, err
	}
	newVault := new(big.Int).Sub(vault, claimable)
	if err := e.store.KVPut(vaultKey(token), newVault); err != nil {
		return nil, err
	}
	if err := e.store.KVPut(accountKey(token, user), new(big.Int).Add(balance, claimable)); err != nil {
		return nil, err
	}
	observability.Ledger().RecordWithdraw(tokenLabel(token), category.String(), claimable)
	observability.Ledger().SetVaultBalance(tokenLabel(token), newVault)
	e.emit(&Withdrawn{User: user, Token: token, Category: category, Amount: cloneBigInt(claimable)})
	return claimable, nil
}

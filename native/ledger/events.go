package ledger

import (
	"math/big"
	"strconv"

	"premarket/core/types"
	"premarket/crypto"
)

const (
	EventTypeDeposited    = "ledger.deposited"
	EventTypeTilledIn     = "ledger.tilled_in"
	EventTypeBalanceAdded = "ledger.balance_added"
	EventTypeWithdrawn    = "ledger.withdrawn"
)

func addrAttr(raw [20]byte) string {
	return crypto.NewAddress(crypto.PMPrefix, raw[:]).String()
}

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Deposited is emitted when external value is credited to a user account.
type Deposited struct {
	User   [20]byte
	Token  [20]byte
	Amount *big.Int
}

func (Deposited) EventType() string { return EventTypeDeposited }

func (d *Deposited) Event() *types.Event {
	return &types.Event{
		Type: EventTypeDeposited,
		Attributes: map[string]string{
			"user":   addrAttr(d.User),
			"token":  addrAttr(d.Token),
			"amount": amountAttr(d.Amount),
		},
	}
}

// TilledIn is emitted when the vault collects funds from a payer.
type TilledIn struct {
	Payer      [20]byte
	Token      [20]byte
	Amount     *big.Int
	PointToken bool
}

func (TilledIn) EventType() string { return EventTypeTilledIn }

func (t *TilledIn) Event() *types.Event {
	return &types.Event{
		Type: EventTypeTilledIn,
		Attributes: map[string]string{
			"payer":      addrAttr(t.Payer),
			"token":      addrAttr(t.Token),
			"amount":     amountAttr(t.Amount),
			"pointToken": strconv.FormatBool(t.PointToken),
		},
	}
}

// BalanceAdded is emitted when a claimable bucket is credited.
type BalanceAdded struct {
	Category BalanceCategory
	To       [20]byte
	Token    [20]byte
	Amount   *big.Int
}

func (BalanceAdded) EventType() string { return EventTypeBalanceAdded }

func (b *BalanceAdded) Event() *types.Event {
	return &types.Event{
		Type: EventTypeBalanceAdded,
		Attributes: map[string]string{
			"category": b.Category.String(),
			"to":       addrAttr(b.To),
			"token":    addrAttr(b.Token),
			"amount":   amountAttr(b.Amount),
		},
	}
}

// Withdrawn is emitted when a claimable bucket is paid out to an account.
type Withdrawn struct {
	User     [20]byte
	Token    [20]byte
	Category BalanceCategory
	Amount   *big.Int
}

func (Withdrawn) EventType() string { return EventTypeWithdrawn }

func (w *Withdrawn) Event() *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"user":     addrAttr(w.User),
			"token":    addrAttr(w.Token),
			"category": w.Category.String(),
			"amount":   amountAttr(w.Amount),
		},
	}
}

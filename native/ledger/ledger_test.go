package ledger

import (
	"errors"
	"math/big"
	"testing"

	"premarket/state"
	"premarket/storage"
)

func newTestEngine(t *testing.T) (*Engine, *state.Manager) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	engine := NewEngine()
	engine.SetStorage(manager)
	return engine, manager
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestDepositAndTillIn(t *testing.T) {
	engine, _ := newTestEngine(t)
	user := addr(1)
	token := addr(9)

	if err := engine.Deposit(user, token, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.TillIn(user, token, big.NewInt(400), false); err != nil {
		t.Fatalf("till in: %v", err)
	}

	balance, err := engine.BalanceOf(user, token)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected account balance 600, got %s", balance)
	}
	vault, err := engine.VaultBalance(token)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected vault balance 400, got %s", vault)
	}
}

func TestTillInInsufficientFunds(t *testing.T) {
	engine, _ := newTestEngine(t)
	user := addr(1)
	token := addr(9)

	if err := engine.Deposit(user, token, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := engine.TillIn(user, token, big.NewInt(101), false)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	balance, err := engine.BalanceOf(user, token)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected untouched balance 100, got %s", balance)
	}
}

func TestTillInZeroIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t)
	user := addr(1)
	token := addr(9)

	if err := engine.TillIn(user, token, big.NewInt(0), false); err != nil {
		t.Fatalf("zero till in: %v", err)
	}
	vault, err := engine.VaultBalance(token)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Sign() != 0 {
		t.Fatalf("expected empty vault, got %s", vault)
	}
}

func TestWithdrawMovesClaimableToAccount(t *testing.T) {
	engine, _ := newTestEngine(t)
	user := addr(1)
	token := addr(9)

	if err := engine.Deposit(user, token, big.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.TillIn(user, token, big.NewInt(500), false); err != nil {
		t.Fatalf("till in: %v", err)
	}
	if err := engine.AddTokenBalance(BalanceSalesRevenue, user, token, big.NewInt(300)); err != nil {
		t.Fatalf("add balance: %v", err)
	}

	claimable, err := engine.ClaimableOf(BalanceSalesRevenue, user, token)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if claimable.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected claimable 300, got %s", claimable)
	}

	moved, err := engine.Withdraw(user, token, BalanceSalesRevenue)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if moved.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected withdrawal of 300, got %s", moved)
	}
	balance, err := engine.BalanceOf(user, token)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected account balance 300, got %s", balance)
	}
	claimable, err = engine.ClaimableOf(BalanceSalesRevenue, user, token)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if claimable.Sign() != 0 {
		t.Fatalf("expected drained bucket, got %s", claimable)
	}
	vault, err := engine.VaultBalance(token)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected vault 200, got %s", vault)
	}
}

func TestWithdrawEmptyBucket(t *testing.T) {
	engine, _ := newTestEngine(t)
	moved, err := engine.Withdraw(addr(1), addr(9), BalanceMakerRefund)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if moved.Sign() != 0 {
		t.Fatalf("expected zero withdrawal, got %s", moved)
	}
}

func TestWithdrawVaultUnderflow(t *testing.T) {
	engine, _ := newTestEngine(t)
	user := addr(1)
	token := addr(9)

	if err := engine.AddTokenBalance(BalancePointToken, user, token, big.NewInt(50)); err != nil {
		t.Fatalf("add balance: %v", err)
	}
	_, err := engine.Withdraw(user, token, BalancePointToken)
	if !errors.Is(err, ErrVaultUnderflow) {
		t.Fatalf("expected ErrVaultUnderflow, got %v", err)
	}
}

func TestInvalidCategory(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.AddTokenBalance(BalanceCategory(42), addr(1), addr(9), big.NewInt(1)); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	engine, manager := newTestEngine(t)
	user := addr(1)
	token := addr(9)

	failure := errors.New("boom")
	err := manager.Transaction(func() error {
		if err := engine.Deposit(user, token, big.NewInt(777)); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected propagated failure, got %v", err)
	}
	balance, err := engine.BalanceOf(user, token)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected rolled back balance, got %s", balance)
	}
}

package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"premarket/native/ledger"
)

type depositParams struct {
	User   string `json:"user"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type withdrawParams struct {
	User     string `json:"user"`
	Token    string `json:"token"`
	Category string `json:"category"`
}

type balanceQueryParams struct {
	User  string `json:"user"`
	Token string `json:"token"`
}

type claimableQueryParams struct {
	User     string `json:"user"`
	Token    string `json:"token"`
	Category string `json:"category"`
}

func parseBalanceCategory(raw string) (ledger.BalanceCategory, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tax_income":
		return ledger.BalanceTaxIncome, nil
	case "referral_bonus":
		return ledger.BalanceReferralBonus, nil
	case "sales_revenue":
		return ledger.BalanceSalesRevenue, nil
	case "remaining_cash":
		return ledger.BalanceRemainingCash, nil
	case "maker_refund":
		return ledger.BalanceMakerRefund, nil
	case "point_token":
		return ledger.BalancePointToken, nil
	default:
		return 0, fmt.Errorf("unknown balance category %q", raw)
	}
}

func (s *Server) handleLedgerDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseBech32Address(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	token, err := parseBech32Address(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.ledger.Deposit(user, token, amount)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleLedgerWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseBech32Address(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	token, err := parseBech32Address(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	category, err := parseBalanceCategory(params.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var moved *big.Int
	txErr := s.state.Transaction(func() error {
		var err error
		moved, err = s.ledger.Withdraw(user, token, category)
		return err
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": moved.String()})
}

func (s *Server) handleLedgerGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseBech32Address(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	token, err := parseBech32Address(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.ledger.BalanceOf(user, token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

func (s *Server) handleLedgerGetClaimable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimableQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseBech32Address(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	token, err := parseBech32Address(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	category, err := parseBalanceCategory(params.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	claimable, err := s.ledger.ClaimableOf(category, user, token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"claimable": claimable.String()})
}

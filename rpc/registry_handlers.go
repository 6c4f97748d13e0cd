package rpc

import (
	"net/http"

	"premarket/native/market"
)

type marketPlaceCreateParams struct {
	Caller     string `json:"caller"`
	Name       string `json:"name"`
	FixedRatio bool   `json:"fixedRatio"`
}

type marketUpdateParams struct {
	Caller           string `json:"caller"`
	Name             string `json:"name"`
	TokenAddress     string `json:"tokenAddress"`
	TokenPerPoint    string `json:"tokenPerPoint"`
	TGE              int64  `json:"tge"`
	SettlementPeriod int64  `json:"settlementPeriod"`
}

type marketStatusParams struct {
	Caller string `json:"caller"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

type feeRateParams struct {
	Caller string `json:"caller"`
	User   string `json:"user"`
	Rate   uint64 `json:"rate"`
}

type referrerParams struct {
	Caller        string `json:"caller"`
	Referrer      string `json:"referrer"`
	ReferrerRate  uint64 `json:"referrerRate"`
	AuthorityRate uint64 `json:"authorityRate"`
}

type operatorParams struct {
	Caller   string `json:"caller"`
	Operator string `json:"operator"`
	Enabled  bool   `json:"enabled"`
}

type pauseParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type marketPlaceQueryParams struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type marketPlaceJSON struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Status           uint8  `json:"status"`
	LiveStatus       uint8  `json:"liveStatus"`
	FixedRatio       bool   `json:"fixedRatio"`
	TokenAddress     string `json:"tokenAddress"`
	TokenPerPoint    string `json:"tokenPerPoint"`
	TGE              int64  `json:"tge"`
	SettlementPeriod int64  `json:"settlementPeriod"`
}

func (s *Server) handleRegistryCreateMarketPlace(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params marketPlaceCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var mp *market.MarketPlace
	txErr := s.state.Transaction(func() error {
		var err error
		mp, err = s.registry.CreateMarketPlace(caller, params.Name, params.FixedRatio)
		return err
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]string{"id": idString(mp.ID)})
}

func (s *Server) handleRegistryUpdateMarket(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params marketUpdateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tokenAddress, err := parseBech32Address(params.TokenAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tokenPerPoint, err := parsePositiveBigInt(params.TokenPerPoint)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.registry.UpdateMarket(caller, params.Name, tokenAddress, tokenPerPoint, params.TGE, params.SettlementPeriod)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRegistryUpdateMarketPlaceStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params marketStatusParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.registry.UpdateMarketPlaceStatus(caller, params.Name, params.Online)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRegistrySetPlatformFeeRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params feeRateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseBech32Address(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.registry.SetPlatformFeeRate(caller, user, params.Rate)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRegistryUpdateReferrer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params referrerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	referrer, err := parseBech32Address(params.Referrer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.registry.UpdateReferrer(caller, referrer, params.ReferrerRate, params.AuthorityRate)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRegistrySetOperator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params operatorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	operator, err := parseBech32Address(params.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.registry.SetOperator(caller, operator, params.Enabled)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRegistrySetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pauseParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.registry.SetPaused(caller, params.Module, params.Paused)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRegistryGetMarketPlace(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params marketPlaceQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var id [32]byte
	switch {
	case params.ID != "":
		parsed, err := parseHexID(params.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		id = parsed
	case params.Name != "":
		id = market.MarketPlaceID(params.Name)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "name or id required")
		return
	}
	mp, ok, err := s.registry.MarketPlaceInfo(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "marketplace not found", nil)
		return
	}
	writeResult(w, req.ID, &marketPlaceJSON{
		ID:               idString(mp.ID),
		Name:             mp.Name,
		Status:           uint8(mp.Status),
		LiveStatus:       uint8(mp.LiveStatus(nowUnix())),
		FixedRatio:       mp.FixedRatio,
		TokenAddress:     addressString(mp.TokenAddress),
		TokenPerPoint:    bigString(mp.TokenPerPoint),
		TGE:              mp.TGE,
		SettlementPeriod: mp.SettlementPeriod,
	})
}

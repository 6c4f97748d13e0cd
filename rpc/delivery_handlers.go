package rpc

import (
	"math/big"
	"net/http"

	"premarket/observability"
)

type deliveryOfferParams struct {
	Offer  string `json:"offer"`
	Caller string `json:"caller"`
}

type deliveryStockParams struct {
	Stock  string `json:"stock"`
	Caller string `json:"caller"`
}

type settleMakerParams struct {
	Offer         string `json:"offer"`
	Caller        string `json:"caller"`
	SettledPoints string `json:"settledPoints"`
}

type settleTakerParams struct {
	Stock         string `json:"stock"`
	Caller        string `json:"caller"`
	SettledPoints string `json:"settledPoints"`
}

// marketplaceLabel resolves the marketplace an offer settles under, used to
// segment the settled-points counter.
func (s *Server) marketplaceLabel(offerID [32]byte) string {
	offer, ok, err := s.store.OfferGet(offerID)
	if err != nil || !ok {
		return "unknown"
	}
	maker, ok, err := s.store.MakerGet(offer.Maker)
	if err != nil || !ok {
		return "unknown"
	}
	return idString(maker.MarketPlace)
}

func (s *Server) observeSettlement(operation string, err error, offerID [32]byte, settledPoints *big.Int) {
	metrics := observability.Settlement()
	metrics.Observe(operation, err)
	if err == nil && settledPoints != nil && settledPoints.Sign() > 0 {
		metrics.RecordSettledPoints(s.marketplaceLabel(offerID), settledPoints)
	}
}

func (s *Server) handleDeliveryCloseBidOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deliveryOfferParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offerID, err := parseHexID(params.Offer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.delivery.CloseBidOffer(offerID, caller)
	})
	observability.Settlement().Observe("closeBidOffer", txErr)
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleDeliveryCloseBidTaker(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deliveryStockParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stockID, err := parseHexID(params.Stock)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.delivery.CloseBidTaker(stockID, caller)
	})
	observability.Settlement().Observe("closeBidTaker", txErr)
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleDeliverySettleAskMaker(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params settleMakerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offerID, err := parseHexID(params.Offer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	settledPoints, err := parseNonNegativeBigInt(params.SettledPoints)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txErr := s.state.Transaction(func() error {
		return s.delivery.SettleAskMaker(offerID, caller, settledPoints)
	})
	s.observeSettlement("settleAskMaker", txErr, offerID, settledPoints)
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]string{"settledPoints": settledPoints.String()})
}

func (s *Server) handleDeliverySettleAskTaker(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params settleTakerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stockID, err := parseHexID(params.Stock)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	settledPoints, err := parseNonNegativeBigInt(params.SettledPoints)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var preOffer [32]byte
	if stock, ok, err := s.store.StockGet(stockID); err == nil && ok {
		preOffer = stock.PreOffer
	}
	txErr := s.state.Transaction(func() error {
		return s.delivery.SettleAskTaker(stockID, caller, settledPoints)
	})
	s.observeSettlement("settleAskTaker", txErr, preOffer, settledPoints)
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]string{"settledPoints": settledPoints.String()})
}

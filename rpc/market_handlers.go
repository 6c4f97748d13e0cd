package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"premarket/native/market"
)

type offerCreateParams struct {
	MarketPlace     string `json:"marketPlace"`
	Authority       string `json:"authority"`
	OfferType       string `json:"offerType"`
	Points          string `json:"points"`
	Amount          string `json:"amount"`
	CollateralRate  uint64 `json:"collateralRate"`
	EachTradeTax    uint64 `json:"eachTradeTax"`
	SettleType      string `json:"settleType"`
	CollateralToken string `json:"collateralToken"`
}

type takerCreateParams struct {
	Offer  string `json:"offer"`
	Taker  string `json:"taker"`
	Points string `json:"points"`
}

type listOfferParams struct {
	Stock          string `json:"stock"`
	Caller         string `json:"caller"`
	Amount         string `json:"amount"`
	CollateralRate uint64 `json:"collateralRate"`
}

type offerActionParams struct {
	Stock  string `json:"stock"`
	Offer  string `json:"offer"`
	Caller string `json:"caller"`
}

type idParams struct {
	ID string `json:"id"`
}

type offerJSON struct {
	ID                      string `json:"id"`
	Authority               string `json:"authority"`
	Maker                   string `json:"maker"`
	OfferType               uint8  `json:"offerType"`
	Status                  uint8  `json:"status"`
	Abort                   uint8  `json:"abortStatus"`
	CollateralRate          uint64 `json:"collateralRate"`
	Points                  string `json:"points"`
	Amount                  string `json:"amount"`
	UsedPoints              string `json:"usedPoints"`
	SettledPoints           string `json:"settledPoints"`
	SettledPointTokenAmount string `json:"settledPointTokenAmount"`
}

type stockJSON struct {
	ID        string `json:"id"`
	Authority string `json:"authority"`
	Maker     string `json:"maker"`
	StockType uint8  `json:"stockType"`
	Status    uint8  `json:"status"`
	PreOffer  string `json:"preOffer,omitempty"`
	Offer     string `json:"offer,omitempty"`
	Points    string `json:"points"`
	Amount    string `json:"amount"`
}

type makerJSON struct {
	ID           string `json:"id"`
	Authority    string `json:"authority"`
	MarketPlace  string `json:"marketPlace"`
	TokenAddress string `json:"tokenAddress"`
	OriginOffer  string `json:"originOffer"`
	SettleType   uint8  `json:"settleType"`
	EachTradeTax uint64 `json:"eachTradeTax"`
	PlatformFee  string `json:"platformFee"`
}

func offerToJSON(offer *market.Offer) *offerJSON {
	return &offerJSON{
		ID:                      idString(offer.ID),
		Authority:               addressString(offer.Authority),
		Maker:                   idString(offer.Maker),
		OfferType:               uint8(offer.OfferType),
		Status:                  uint8(offer.Status),
		Abort:                   uint8(offer.Abort),
		CollateralRate:          offer.CollateralRate,
		Points:                  bigString(offer.Points),
		Amount:                  bigString(offer.Amount),
		UsedPoints:              bigString(offer.UsedPoints),
		SettledPoints:           bigString(offer.SettledPoints),
		SettledPointTokenAmount: bigString(offer.SettledPointTokenAmount),
	}
}

func stockToJSON(stock *market.Stock) *stockJSON {
	out := &stockJSON{
		ID:        idString(stock.ID),
		Authority: addressString(stock.Authority),
		Maker:     idString(stock.Maker),
		StockType: uint8(stock.StockType),
		Status:    uint8(stock.Status),
		Points:    bigString(stock.Points),
		Amount:    bigString(stock.Amount),
	}
	if stock.PreOffer != ([32]byte{}) {
		out.PreOffer = idString(stock.PreOffer)
	}
	if stock.Offer != ([32]byte{}) {
		out.Offer = idString(stock.Offer)
	}
	return out
}

func makerToJSON(maker *market.Maker) *makerJSON {
	return &makerJSON{
		ID:           idString(maker.ID),
		Authority:    addressString(maker.Authority),
		MarketPlace:  idString(maker.MarketPlace),
		TokenAddress: addressString(maker.TokenAddress),
		OriginOffer:  idString(maker.OriginOffer),
		SettleType:   uint8(maker.SettleType),
		EachTradeTax: maker.EachTradeTax,
		PlatformFee:  bigString(maker.PlatformFee),
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseOfferType(raw string) (market.OfferType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ask":
		return market.OfferTypeAsk, nil
	case "bid":
		return market.OfferTypeBid, nil
	default:
		return 0, fmt.Errorf("offerType must be ask or bid")
	}
}

func parseSettleType(raw string) (market.OfferSettleType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "protected":
		return market.SettleTypeProtected, nil
	case "turbo":
		return market.SettleTypeTurbo, nil
	default:
		return 0, fmt.Errorf("settleType must be protected or turbo")
	}
}

func (s *Server) handleMarketCreateOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params offerCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	marketPlace, err := parseHexID(params.MarketPlace)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	authority, err := parseBech32Address(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offerType, err := parseOfferType(params.OfferType)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	settleType, err := parseSettleType(params.SettleType)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	points, err := parsePositiveBigInt(params.Points)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	token, err := parseBech32Address(params.CollateralToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	var offer *market.Offer
	var stock *market.Stock
	txErr := s.state.Transaction(func() error {
		var err error
		offer, stock, err = s.market.CreateOffer(market.CreateOfferParams{
			MarketPlace:     marketPlace,
			Authority:       authority,
			OfferType:       offerType,
			Points:          points,
			Amount:          amount,
			CollateralRate:  params.CollateralRate,
			EachTradeTax:    params.EachTradeTax,
			SettleType:      settleType,
			CollateralToken: token,
		})
		return err
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"offer": offerToJSON(offer),
		"stock": stockToJSON(stock),
	})
}

func (s *Server) handleMarketCreateTaker(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params takerCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offerID, err := parseHexID(params.Offer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	taker, err := parseBech32Address(params.Taker)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	points, err := parsePositiveBigInt(params.Points)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	var stock *market.Stock
	txErr := s.state.Transaction(func() error {
		var err error
		stock, err = s.market.CreateTaker(offerID, taker, points)
		return err
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, stockToJSON(stock))
}

func (s *Server) handleMarketListOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listOfferParams
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
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	var offer *market.Offer
	txErr := s.state.Transaction(func() error {
		var err error
		offer, err = s.market.ListOffer(stockID, caller, amount, params.CollateralRate)
		return err
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, offerToJSON(offer))
}

func (s *Server) offerAction(w http.ResponseWriter, req *RPCRequest, action func(stockID, offerID [32]byte, caller [20]byte) error) {
	var params offerActionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stockID, err := parseHexID(params.Stock)
	if err != nil {
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
		return action(stockID, offerID, caller)
	})
	if txErr != nil {
		writeEngineError(w, req.ID, txErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleMarketCloseOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.offerAction(w, req, s.market.CloseOffer)
}

func (s *Server) handleMarketRelistOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.offerAction(w, req, s.market.RelistOffer)
}

func (s *Server) handleMarketAbortAskOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.offerAction(w, req, s.market.AbortAskOffer)
}

func (s *Server) handleMarketAbortBidTaker(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.offerAction(w, req, s.market.AbortBidTaker)
}

func (s *Server) handleMarketGetOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params idParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHexID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offer, ok, err := s.store.OfferGet(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "offer not found", params.ID)
		return
	}
	writeResult(w, req.ID, offerToJSON(offer))
}

func (s *Server) handleMarketGetStock(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params idParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHexID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stock, ok, err := s.store.StockGet(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "stock not found", params.ID)
		return
	}
	writeResult(w, req.ID, stockToJSON(stock))
}

func (s *Server) handleMarketGetMaker(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params idParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHexID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	maker, ok, err := s.store.MakerGet(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "maker not found", params.ID)
		return
	}
	writeResult(w, req.ID, makerToJSON(maker))
}

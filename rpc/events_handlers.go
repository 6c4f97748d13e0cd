package rpc

import (
	"net/http"

	"premarket/core/events"
	"premarket/core/types"
)

const defaultEventListLimit = 100

type eventListParams struct {
	Type  string `json:"type,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// handleEventsList returns the most recent recorded events, newest last,
// optionally filtered by event type.
func (s *Server) handleEventsList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := eventListParams{Limit: defaultEventListLimit}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	if params.Limit <= 0 {
		params.Limit = defaultEventListLimit
	}

	recorded := s.events.Snapshot()
	out := make([]*types.Event, 0, params.Limit)
	for _, evt := range recorded {
		if params.Type != "" && evt.EventType() != params.Type {
			continue
		}
		typed, ok := evt.(events.Typed)
		if !ok {
			continue
		}
		out = append(out, typed.Event())
	}
	if len(out) > params.Limit {
		out = out[len(out)-params.Limit:]
	}
	writeResult(w, req.ID, map[string]interface{}{"events": out})
}

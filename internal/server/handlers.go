package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"

	"github.com/stockledger/stockledger/internal/apperr"
	"github.com/stockledger/stockledger/internal/ledger"
	"github.com/stockledger/stockledger/internal/symbol"
)

const maxSearchQueryLen = 20

var searchCleanRe = regexp.MustCompile(`[^A-Za-z0-9 ]`)

// handleGetStock proxies the upstream chart endpoint for one symbol.
func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["symbol"]
	sym := symbol.Normalize(raw)
	if err := symbol.Validate(sym); err != nil {
		writeError(w, err)
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1D"
	}

	chart, err := s.deps.Quotes.FetchChart(r.Context(), sym, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// handleSearch proxies the instrument search endpoint.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, apperr.New(apperr.KindValidation, apperr.CodeInvalidQuery, "query is required"))
		return
	}
	if len(query) > maxSearchQueryLen {
		writeError(w, apperr.New(apperr.KindValidation, apperr.CodeInvalidQuery, "query is too long"))
		return
	}

	cleaned := searchCleanRe.ReplaceAllString(query, "")
	if cleaned == "" {
		writeError(w, apperr.New(apperr.KindValidation, apperr.CodeInvalidQuery, "query contains no searchable characters"))
		return
	}

	results, err := s.deps.Quotes.Search(r.Context(), cleaned)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Ledger.GetEntries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var in ledger.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, apperr.CodeMalformedPayload, "request body is not valid JSON", err))
		return
	}

	entry, err := s.deps.Ledger.AddEntry(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch ledger.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, apperr.CodeMalformedPayload, "request body is not valid JSON", err))
		return
	}

	if err := s.deps.Ledger.UpdateEntry(r.Context(), id, patch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type closeRequest struct {
	DateSell  interface{} `json:"dateSell"`
	PriceSell interface{} `json:"priceSell"`
}

func (s *Server) handleCloseEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, apperr.CodeMalformedPayload, "request body is not valid JSON", err))
		return
	}

	if err := s.deps.Ledger.CloseEntry(r.Context(), id, req.DateSell, req.PriceSell); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Ledger.DeleteEntry(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Syncer != nil {
		body["quote_subscriptions"] = s.deps.Syncer.ActiveSubscriptions()
	}
	if s.deps.Metrics != nil {
		body["http_requests_total"] = s.deps.Metrics.CounterValue("stockledger_http_requests_total")
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperr.New(apperr.KindNotFound, "NOT_FOUND", "no such endpoint"))
}

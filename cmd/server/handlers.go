package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"portfoliowatch/internal/aggregate"
	"portfoliowatch/internal/mirror"
	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/pricefeed"
	"portfoliowatch/internal/provider"
	"portfoliowatch/internal/store"
	"portfoliowatch/internal/valuation"
)

const maxSymbols = 1000

type server struct {
	quotes     provider.Provider
	feed       *pricefeed.Feed
	mirror     *mirror.Mirror
	store      store.Store
	adminToken string
	timeout    time.Duration
	log        *log.Logger
	now        func() time.Time
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/prices", s.handleGetPrices)
	mux.HandleFunc("POST /api/prices", s.handlePostPrices)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	mux.HandleFunc("POST /api/portfolio/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/positions", s.handleListPositions)
	mux.Handle("POST /api/positions", s.requireAdmin(http.HandlerFunc(s.handleCreatePosition)))
	mux.Handle("PATCH /api/positions/{id}", s.requireAdmin(http.HandlerFunc(s.handleUpdatePosition)))
	mux.Handle("DELETE /api/positions/{id}", s.requireAdmin(http.HandlerFunc(s.handleDeletePosition)))
	return mux
}

type pricesResponse struct {
	Quotes []provider.Quote `json:"quotes"`
}

func (s *server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("symbols")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "missing symbols query param")
		return
	}
	s.writePrices(w, r.Context(), splitCSV(q))
}

type pricesBody struct {
	Symbols []string `json:"symbols"`
}

func (s *server) handlePostPrices(w http.ResponseWriter, r *http.Request) {
	var b pricesBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.writePrices(w, r.Context(), b.Symbols)
}

func (s *server) writePrices(w http.ResponseWriter, rctx context.Context, symbols []string) {
	symbols = pricefeed.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols cannot be empty")
		return
	}
	if len(symbols) > maxSymbols {
		writeError(w, http.StatusBadRequest, "too many symbols (max 1000)")
		return
	}
	ctx, cancel := context.WithTimeout(rctx, s.timeout)
	defer cancel()

	quotes, err := s.quotes.Fetch(ctx, symbols)
	if err != nil {
		s.log.Warn().Err(err).Strs("symbols", symbols).Msg("price request failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pricesResponse{Quotes: aggregate.Sorted(aggregate.LatestBySymbol(quotes, s.now()))})
}

type display struct {
	CurrentPrice      string `json:"current_price"`
	EntryPrice        string `json:"entry_price"`
	Quantity          string `json:"quantity"`
	InvestedAmount    string `json:"invested_amount"`
	CurrentValue      string `json:"current_value"`
	ProfitLoss        string `json:"profit_loss"`
	ProfitLossPercent string `json:"profit_loss_percent"`
}

type positionView struct {
	valuation.PositionValue
	Trend   valuation.Trend `json:"trend"`
	Icon    valuation.Icon  `json:"icon"`
	Display display         `json:"display"`
}

type totalsView struct {
	Invested          decimal.Decimal `json:"invested"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	ProfitLoss        decimal.Decimal `json:"profit_loss"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
	Trend             valuation.Trend `json:"trend"`
	Icon              valuation.Icon  `json:"icon"`
	Display           display         `json:"display"`
}

type feedView struct {
	Loading         bool           `json:"loading"`
	Error           string         `json:"error,omitempty"`
	LastUpdated     time.Time      `json:"last_updated"`
	LastUpdatedText string         `json:"last_updated_text"`
	Symbols         []string       `json:"symbols"`
	RefreshIcon     valuation.Icon `json:"refresh_icon"`
}

type portfolioResponse struct {
	Positions []positionView `json:"positions"`
	Totals    totalsView     `json:"totals"`
	Feed      feedView       `json:"feed"`
}

func (s *server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.portfolio(s.feed.Snapshot()))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	writeJSON(w, http.StatusOK, s.portfolio(s.feed.Refetch(ctx)))
}

func (s *server) portfolio(st pricefeed.State) portfolioResponse {
	summary := valuation.Summarize(s.mirror.Positions(), aggregate.Prices(st.Prices))

	views := make([]positionView, 0, len(summary.Positions))
	for _, v := range summary.Positions {
		views = append(views, positionView{
			PositionValue: v,
			Trend:         v.Trend(),
			Icon:          v.Trend().Icon(),
			Display: display{
				CurrentPrice:      valuation.FormatPrice(v.CurrentPrice),
				EntryPrice:        valuation.FormatPrice(v.Position.EntryPrice),
				Quantity:          valuation.FormatQuantity(v.Position.Quantity),
				InvestedAmount:    valuation.FormatCurrency(v.Position.InvestedAmount),
				CurrentValue:      valuation.FormatCurrency(v.CurrentValue),
				ProfitLoss:        valuation.FormatSignedCurrency(v.ProfitLoss),
				ProfitLossPercent: valuation.FormatPercent(v.ProfitLossPercent),
			},
		})
	}
	return portfolioResponse{
		Positions: views,
		Totals: totalsView{
			Invested:          summary.TotalInvested,
			CurrentValue:      summary.TotalCurrentValue,
			ProfitLoss:        summary.TotalProfitLoss,
			ProfitLossPercent: summary.TotalProfitLossPercent,
			Trend:             summary.Trend(),
			Icon:              summary.Trend().Icon(),
			Display: display{
				InvestedAmount:    valuation.FormatCurrency(summary.TotalInvested),
				CurrentValue:      valuation.FormatCurrency(summary.TotalCurrentValue),
				ProfitLoss:        valuation.FormatSignedCurrency(summary.TotalProfitLoss),
				ProfitLossPercent: valuation.FormatPercent(summary.TotalProfitLossPercent),
			},
		},
		Feed: feedView{
			Loading:         st.Loading,
			Error:           st.Err,
			LastUpdated:     st.LastUpdated,
			LastUpdatedText: valuation.FormatRelative(st.LastUpdated, s.now()),
			Symbols:         st.Symbols,
			RefreshIcon:     valuation.IconRefresh,
		},
	}
}

type positionsResponse struct {
	Positions []portfolio.Position `json:"positions"`
}

func (s *server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionsResponse{Positions: list})
}

func (s *server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	f, ok := decodeFields(w, r)
	if !ok {
		return
	}
	p, err := s.store.Create(r.Context(), f)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.mirror.Apply(store.Event{Kind: store.EventInsert, Position: p})
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	f, ok := decodeFields(w, r)
	if !ok {
		return
	}
	p, err := s.store.Update(r.Context(), r.PathValue("id"), f)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.mirror.Apply(store.Event{Kind: store.EventUpdate, Position: p})
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	s.mirror.Apply(store.Event{Kind: store.EventDelete, Position: portfolio.Position{ID: id}})
	w.WriteHeader(http.StatusNoContent)
}

func decodeFields(w http.ResponseWriter, r *http.Request) (portfolio.Fields, bool) {
	var f portfolio.Fields
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return f, false
	}
	return f, true
}

func (s *server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portfolio.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error().Err(err).Msg("position store error")
		writeError(w, http.StatusInternalServerError, "position store unavailable")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

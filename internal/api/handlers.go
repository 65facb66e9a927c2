package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Veraticus/clanbank/internal/ledger"
	"github.com/Veraticus/clanbank/internal/model"
)

type depositRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Item     string `json:"item" validate:"required"`
	Location string `json:"location"`
	Category string `json:"category"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type withdrawRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Item     string `json:"item" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type selectionRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Item     string `json:"item" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type transferRequest struct {
	SelectionID string `json:"selection_id" validate:"required,uuid"`
	UserID      string `json:"user_id" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required"`
}

type balanceResponse struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

type reputationResponse struct {
	UserID string  `json:"user_id"`
	Points float64 `json:"points"`
}

type holdingResponse struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

type matchResponse struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category,omitempty"`
	Available   int    `json:"available,omitempty"`
}

type historyResponse struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Item         string    `json:"item"`
	Location     string    `json:"location,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Quantity     float64   `json:"quantity"`
	ID           int64     `json:"id"`
}

type inventoryResponse struct {
	Item        string            `json:"item"`
	DisplayName string            `json:"display_name"`
	Category    string            `json:"category"`
	Holders     []holdingByMember `json:"holders"`
	Quantity    int               `json:"quantity"`
	Limit       int               `json:"limit"`
}

type holdingByMember struct {
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity"`
}

type depositResponse struct {
	Item              string  `json:"item"`
	DisplayName       string  `json:"display_name"`
	Category          string  `json:"category"`
	Requested         int     `json:"requested"`
	Actual            int     `json:"actual"`
	Balance           int     `json:"balance"`
	Limit             int     `json:"limit"`
	Holding           int     `json:"holding"`
	ReputationAwarded float64 `json:"reputation_awarded"`
	ReputationTotal   float64 `json:"reputation_total"`
	Truncated         bool    `json:"truncated"`
}

type withdrawResponse struct {
	Item        string `json:"item"`
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity"`
	Balance     int    `json:"balance"`
	Holding     int    `json:"holding"`
}

type selectionResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	ID        string    `json:"id"`
	Item      string    `json:"item"`
	Quantity  int       `json:"quantity"`
}

type transferResponse struct {
	Item             string `json:"item"`
	DisplayName      string `json:"display_name"`
	SenderID         string `json:"sender_id"`
	RecipientID      string `json:"recipient_id"`
	Quantity         int    `json:"quantity"`
	SenderHolding    int    `json:"sender_holding"`
	RecipientHolding int    `json:"recipient_holding"`
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &requestError{message: "invalid query parameter", details: map[string]string{name: "must be a non-negative integer"}}
	}
	return n, nil
}

func toMatches(matches []model.CatalogMatch) []matchResponse {
	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchResponse{
			Key:         m.Key,
			DisplayName: m.DisplayName,
			Category:    m.Category,
			Available:   m.Available,
		})
	}
	return out
}

func (s *Server) searchCatalog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, toMatches(s.engine.SearchCatalog(r.URL.Query().Get("q"), limit)))
}

func (s *Server) inventory(w http.ResponseWriter, r *http.Request) {
	lines, err := s.engine.Inventory(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]inventoryResponse, 0, len(lines))
	for _, line := range lines {
		holders := make([]holdingByMember, 0, len(line.Holders))
		for _, h := range line.Holders {
			holders = append(holders, holdingByMember{UserID: h.UserID, Quantity: h.Quantity})
		}
		out = append(out, inventoryResponse{
			Item:        line.Item,
			DisplayName: line.DisplayName,
			Category:    string(line.Category),
			Quantity:    line.Quantity,
			Limit:       line.Limit,
			Holders:     holders,
		})
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := queryInt(r, "top")
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts, err := s.engine.Leaderboard(r.Context(), top)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]reputationResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, reputationResponse{UserID: a.UserID, Points: a.Points})
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) itemBalance(w http.ResponseWriter, r *http.Request) {
	item := model.NormalizeKey(chi.URLParam(r, "item"))
	qty, err := s.engine.CurrentBalance(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, balanceResponse{Item: item, Quantity: qty})
}

func (s *Server) memberHoldings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if term := r.URL.Query().Get("q"); term != "" {
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, r, err)
			return
		}
		matches, err := s.engine.SearchUserHoldings(r.Context(), userID, term, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, toMatches(matches))
		return
	}

	holdings, err := s.engine.UserHoldings(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]holdingResponse, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, holdingResponse{Item: h.ItemKey, Quantity: h.Quantity})
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) memberReputation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	points, err := s.engine.UserReputation(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, reputationResponse{UserID: userID, Points: points})
}

func (s *Server) memberHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.History(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			ID:           e.ID,
			Timestamp:    e.Timestamp,
			Action:       string(e.Action),
			Item:         e.Item,
			Location:     e.Location,
			Counterparty: e.Counterparty,
			Quantity:     e.Quantity,
		})
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var opts []ledger.DepositOption
	if req.Location != "" {
		opts = append(opts, ledger.WithLocation(req.Location))
	}
	if req.Category != "" {
		opts = append(opts, ledger.WithCategoryHint(req.Category))
	}

	res, err := s.engine.Deposit(r.Context(), req.UserID, req.Item, req.Quantity, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, depositResponse{
		Item:              res.Item,
		DisplayName:       res.DisplayName,
		Category:          string(res.Category),
		Requested:         res.Requested,
		Actual:            res.Actual,
		Balance:           res.Balance,
		Limit:             res.Limit,
		Holding:           res.Holding,
		ReputationAwarded: res.ReputationAwarded,
		ReputationTotal:   res.ReputationTotal,
		Truncated:         res.Truncated,
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.engine.Withdraw(r.Context(), req.UserID, req.Item, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, withdrawResponse{
		Item:        res.Item,
		DisplayName: res.DisplayName,
		Quantity:    res.Quantity,
		Balance:     res.Balance,
		Holding:     res.Holding,
	})
}

func (s *Server) createSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sel, err := s.selections.Create(req.UserID, req.Item, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, selectionResponse{
		ID:        sel.ID.String(),
		Item:      sel.ItemKey,
		Quantity:  sel.Quantity,
		ExpiresAt: sel.CreatedAt.Add(ledger.DefaultSelectionTTL),
	})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := uuid.Parse(req.SelectionID)
	if err != nil {
		writeError(w, r, &requestError{message: "invalid selection id"})
		return
	}
	sel, err := s.selections.Take(id, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.engine.Transfer(r.Context(), sel, req.RecipientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, transferResponse{
		Item:             res.Item,
		DisplayName:      res.DisplayName,
		SenderID:         res.SenderID,
		RecipientID:      res.RecipientID,
		Quantity:         res.Quantity,
		SenderHolding:    res.SenderHolding,
		RecipientHolding: res.RecipientHolding,
	})
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clanbank/internal/catalog"
	"github.com/Veraticus/clanbank/internal/ledger"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/policy"
	"github.com/Veraticus/clanbank/internal/storage"
)

const testSecret = "test-secret"

type testServer struct {
	handler http.Handler
	engine  *ledger.Engine
	token   string
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()

	cat := catalog.New([]model.CatalogEntry{
		{DisplayName: "P4-AR Rifle", Category: "ARMAS"},
		{DisplayName: "Gold", Category: "MINERALES"},
		{DisplayName: "MedPen", Category: "CONSUMIBLES"},
	})
	pol, err := policy.New(policy.DefaultConfig(), cat)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	cfg := ledger.DefaultConfig()
	cfg.Metrics = ledger.NewMetrics(reg)
	engine := ledger.NewWithConfig(storage.NewMemoryStorage(), cat, pol, cfg)

	ts := &testServer{
		engine: engine,
		handler: NewRouter(engine, ledger.NewSelectionRegistry(time.Minute, nil), Config{
			JWTSecret: secret,
			JWTIssuer: "clanbank",
			Gatherer:  reg,
		}),
	}
	if secret != "" {
		ts.token, err = MintToken(secret, "clanbank", "bot", time.Now(), time.Hour)
		require.NoError(t, err)
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, testSecret)
	ts.token = ""

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, testSecret)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + ts.token, want: http.StatusOK},
	}

	wrongIssuer, err := MintToken(testSecret, "someone-else", "bot", time.Now(), time.Hour)
	require.NoError(t, err)
	tests = append(tests, struct {
		name   string
		header string
		want   int
	}{name: "wrong issuer", header: "Bearer " + wrongIssuer, want: http.StatusUnauthorized})

	expired, err := MintToken(testSecret, "clanbank", "bot", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	tests = append(tests, struct {
		name   string
		header string
		want   int
	}{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodGet, "/api/v1/inventory", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMintToken_Errors(t *testing.T) {
	_, err := MintToken("", "", "bot", time.Now(), time.Hour)
	require.Error(t, err)
	_, err = MintToken("s", "", "bot", time.Now(), 0)
	require.Error(t, err)
}

func TestDepositFlow(t *testing.T) {
	ts := newTestServer(t, testSecret)

	rec := ts.do(t, http.MethodPost, "/api/v1/deposits", depositRequest{
		UserID: "alice", Item: "P4-AR Rifle", Quantity: 20, Location: "Area18",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var dep depositResponse
	decodeData(t, rec, &dep)
	assert.Equal(t, "p4-ar rifle", dep.Item)
	assert.Equal(t, 20, dep.Actual)
	assert.Equal(t, 50, dep.Limit)
	assert.InDelta(t, 1.0, dep.ReputationAwarded, 1e-9)

	rec = ts.do(t, http.MethodGet, "/api/v1/items/P4-AR%20Rifle/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal balanceResponse
	decodeData(t, rec, &bal)
	assert.Equal(t, balanceResponse{Item: "p4-ar rifle", Quantity: 20}, bal)

	rec = ts.do(t, http.MethodGet, "/api/v1/members/alice/reputation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep reputationResponse
	decodeData(t, rec, &rep)
	assert.InDelta(t, 1.0, rep.Points, 1e-9)

	rec = ts.do(t, http.MethodGet, "/api/v1/members/alice/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist []historyResponse
	decodeData(t, rec, &hist)
	require.Len(t, hist, 2)
	assert.Equal(t, string(model.ActionDeposited), hist[0].Action)
	assert.Equal(t, "Area18", hist[0].Location)

	rec = ts.do(t, http.MethodGet, "/api/v1/inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inv []inventoryResponse
	decodeData(t, rec, &inv)
	require.Len(t, inv, 1)
	assert.Equal(t, "P4-AR Rifle", inv[0].DisplayName)
	assert.Equal(t, []holdingByMember{{UserID: "alice", Quantity: 20}}, inv[0].Holders)

	rec = ts.do(t, http.MethodGet, "/api/v1/leaderboard?top=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board []reputationResponse
	decodeData(t, rec, &board)
	require.Len(t, board, 1)
	assert.Equal(t, "alice", board[0].UserID)
}

func TestDeposit_Rejections(t *testing.T) {
	ts := newTestServer(t, testSecret)

	rec := ts.do(t, http.MethodPost, "/api/v1/deposits", depositRequest{UserID: "alice", Item: "Gold", Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, CodeValidation, apiErr.Code)
	assert.Contains(t, rec.Body.String(), `"quantity"`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits", strings.NewReader(`{"user_id":"a","item":"Gold","quantity":1,"extra":true}`))
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/deposits", depositRequest{UserID: "alice", Item: "P4-AR Rifle", Quantity: 50})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/deposits", depositRequest{UserID: "alice", Item: "P4-AR Rifle", Quantity: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeStorageFull, decodeError(t, rec).Code)
}

func TestWithdraw(t *testing.T) {
	ts := newTestServer(t, testSecret)

	rec := ts.do(t, http.MethodPost, "/api/v1/withdrawals", withdrawRequest{UserID: "alice", Item: "Gold", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/deposits", depositRequest{UserID: "alice", Item: "Gold", Quantity: 10})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/withdrawals", withdrawRequest{UserID: "alice", Item: "Gold", Quantity: 11})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/withdrawals", withdrawRequest{UserID: "alice", Item: "gold", Quantity: 4})
	require.Equal(t, http.StatusCreated, rec.Code)
	var res withdrawResponse
	decodeData(t, rec, &res)
	assert.Equal(t, 6, res.Balance)
	assert.Equal(t, 6, res.Holding)
}

func TestSelectionTransfer(t *testing.T) {
	ts := newTestServer(t, testSecret)

	rec := ts.do(t, http.MethodPost, "/api/v1/deposits", depositRequest{UserID: "alice", Item: "MedPen", Quantity: 8})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/members/alice/holdings?q=med", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []matchResponse
	decodeData(t, rec, &matches)
	require.Len(t, matches, 1)
	assert.Equal(t, 8, matches[0].Available)

	rec = ts.do(t, http.MethodPost, "/api/v1/selections", selectionRequest{UserID: "alice", Item: "MedPen", Quantity: 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sel selectionResponse
	decodeData(t, rec, &sel)

	rec = ts.do(t, http.MethodPost, "/api/v1/transfers", transferRequest{SelectionID: sel.ID, UserID: "mallory", RecipientID: "bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/transfers", transferRequest{SelectionID: sel.ID, UserID: "alice", RecipientID: "bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tr transferResponse
	decodeData(t, rec, &tr)
	assert.Equal(t, 5, tr.SenderHolding)
	assert.Equal(t, 3, tr.RecipientHolding)

	rec = ts.do(t, http.MethodPost, "/api/v1/transfers", transferRequest{SelectionID: sel.ID, UserID: "alice", RecipientID: "bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/members/bob/holdings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holdings []holdingResponse
	decodeData(t, rec, &holdings)
	assert.Equal(t, []holdingResponse{{Item: "medpen", Quantity: 3}}, holdings)

	rec = ts.do(t, http.MethodGet, "/api/v1/items/medpen/balance", nil)
	var bal balanceResponse
	decodeData(t, rec, &bal)
	assert.Equal(t, 8, bal.Quantity)
}

func TestTransfer_InvalidSelectionID(t *testing.T) {
	ts := newTestServer(t, testSecret)
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", transferRequest{SelectionID: "not-a-uuid", UserID: "alice", RecipientID: "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogSearch(t *testing.T) {
	ts := newTestServer(t, testSecret)

	rec := ts.do(t, http.MethodGet, "/api/v1/catalog?q=gold&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []matchResponse
	decodeData(t, rec, &matches)
	require.NotEmpty(t, matches)
	assert.Equal(t, "Gold", matches[0].DisplayName)

	rec = ts.do(t, http.MethodGet, "/api/v1/catalog?q=gold&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: ledger.ErrInvalidQuantity, want: http.StatusBadRequest},
		{err: ledger.ErrInvalidRequest, want: http.StatusBadRequest},
		{err: ledger.ErrStorageFull, want: http.StatusConflict},
		{err: ledger.ErrItemNotFound, want: http.StatusNotFound},
		{err: ledger.ErrSelectionNotFound, want: http.StatusNotFound},
		{err: ledger.ErrInsufficientQuantity, want: http.StatusConflict},
		{err: model.ErrSelectionConsumed, want: http.StatusConflict},
		{err: ledger.ErrStoreUnavailable, want: http.StatusServiceUnavailable},
		{err: assert.AnError, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := classifyError(tt.err)
			assert.Equal(t, tt.want, status)
		})
	}
}

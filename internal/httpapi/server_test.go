package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/model"
	"rwa-portfolio-lab/internal/orchestrator"
	"rwa-portfolio-lab/internal/storage/memory"
)

func testTables() *domain.Tables {
	base := int64(1_717_200_000_000)
	day := int64(86_400_000)
	t := &domain.Tables{}
	series := map[string][]float64{
		"PAXG": {2300, 2320, 2310, 2335, 2350},
		"USDY": {1.040, 1.041, 1.041, 1.043, 1.044},
		"OUSG": {105.0, 105.2, 105.1, 105.3, 105.5},
	}
	for sym, prices := range series {
		for i, p := range prices {
			t.Prices = append(t.Prices, &domain.PricePoint{Symbol: sym, TimestampMs: base + int64(i)*day, PriceUSD: p})
		}
	}
	t.APY = []*domain.APYPoint{{Symbol: "USDY", TimestampMs: base, APY: 5.1}, {Symbol: "OUSG", TimestampMs: base, APY: 4.8}}
	t.Supply = []*domain.SupplyPoint{{Symbol: "PAXG", TimestampMs: base, TotalSupply: 250_000}, {Symbol: "USDY", TimestampMs: base, TotalSupply: 4e8}}
	return t
}

func newTestServer(t *testing.T, tables *domain.Tables) *httptest.Server {
	t.Helper()
	src, err := memory.NewSource(context.Background(), tables)
	require.NoError(t, err)
	orch := orchestrator.New(orchestrator.Options{
		Source: src,
		Bank:   model.NewBank(model.Config{Estimators: 10, Seed: model.DefaultSeed}, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})
	srv := httptest.NewServer(New(orch, nil, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestOptimize_Success(t *testing.T) {
	srv := newTestServer(t, testTables())

	resp := post(t, srv.URL+"/optimize", `{"symbols":["USDY","PAXG","OUSG"],"amount_to_invest":1000,"risk_tolerance":0.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body struct {
		RequestedSymbols []string           `json:"requested_symbols"`
		AllowedSymbols   []string           `json:"allowed_symbols"`
		Portfolio        map[string]float64 `json:"portfolio"`
		Amounts          map[string]string  `json:"amounts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"USDY", "PAXG", "OUSG"}, body.AllowedSymbols)

	var sum float64
	for _, pct := range body.Portfolio {
		sum += pct
	}
	assert.InDelta(t, 100, sum, 1e-4)
	assert.Len(t, body.Amounts, 3)
}

func TestOptimize_Errors(t *testing.T) {
	srv := newTestServer(t, testTables())

	tests := []struct {
		name string
		body string
		code int
		kind string
	}{
		{"malformed json", `{"symbols":`, http.StatusBadRequest, "input"},
		{"unknown symbols", `{"symbols":["NOPE"],"amount_to_invest":100,"risk_tolerance":0.5}`, http.StatusUnprocessableEntity, "input"},
		{"infeasible floor", `{"symbols":["USDY","PAXG","OUSG"],"amount_to_invest":100,"risk_tolerance":0.5,"min_allocation":0.34}`, http.StatusBadRequest, "input"},
		{"negative risk tolerance", `{"symbols":["USDY","PAXG"],"amount_to_invest":100,"risk_tolerance":-1}`, http.StatusBadRequest, "input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/optimize", tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
			body := decode[ErrorResponse](t, resp)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestOptimize_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, testTables())
	resp := get(t, srv.URL+"/optimize")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPredictions(t *testing.T) {
	srv := newTestServer(t, testTables())

	all := decode[PredictionsResponse](t, get(t, srv.URL+"/predictions"))
	assert.Len(t, all.Predictions, 3)

	some := decode[PredictionsResponse](t, get(t, srv.URL+"/predictions?symbols=USDY,%20NOPE,PAXG"))
	require.Len(t, some.Predictions, 2)
	assert.Equal(t, "USDY", some.Predictions[0].Symbol)
	assert.Equal(t, "PAXG", some.Predictions[1].Symbol)
}

func TestRetrainAndStatus(t *testing.T) {
	srv := newTestServer(t, testTables())

	resp := post(t, srv.URL+"/retrain", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	retrain := decode[RetrainResponse](t, resp)
	assert.NotEmpty(t, retrain.SnapshotID)
	assert.Equal(t, 3, retrain.Records)

	status := decode[StatusResponse](t, get(t, srv.URL+"/status"))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, retrain.SnapshotID, status.Training.SnapshotID)
	assert.Equal(t, 1, status.Training.TrainCount)
}

func TestRetrain_ModelError(t *testing.T) {
	srv := newTestServer(t, &domain.Tables{
		Prices: []*domain.PricePoint{{Symbol: "PAXG", TimestampMs: 1, PriceUSD: 2300}},
	})

	resp := post(t, srv.URL+"/retrain", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "model", decode[ErrorResponse](t, resp).Kind)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testTables())

	resp := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{&domain.Error{Kind: domain.ErrInput, Err: orchestrator.ErrUnknownSymbols}, http.StatusUnprocessableEntity, "input"},
		{domain.InputErrorf("optimize", "bad"), http.StatusBadRequest, "input"},
		{fmt.Errorf("load: %w", domain.DataErrorf("schema", "missing")), http.StatusBadRequest, "data"},
		{domain.ModelErrorf("train", "empty"), http.StatusInternalServerError, "model"},
		{&domain.ConvergenceError{Status: "IterationLimit"}, http.StatusInternalServerError, "convergence"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		code, kind := StatusFor(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.kind, kind, tt.err.Error())
	}
}

func TestParseSymbols(t *testing.T) {
	assert.Nil(t, ParseSymbols(""))
	assert.Equal(t, []string{"A", "B"}, ParseSymbols(" A,,B ,"))
}

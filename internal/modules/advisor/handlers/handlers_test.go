package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/modules/advisor"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testWallet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// MockAdvisor is a mock implementation of Advisor
type MockAdvisor struct {
	mock.Mock
}

func (m *MockAdvisor) Analyze(ctx context.Context, wallet string) (*advisor.Analysis, error) {
	args := m.Called(wallet)
	analysis, _ := args.Get(0).(*advisor.Analysis)
	return analysis, args.Error(1)
}

func (m *MockAdvisor) GetRiskMetrics(ctx context.Context, wallet string) (domain.RiskMetrics, error) {
	args := m.Called(wallet)
	return args.Get(0).(domain.RiskMetrics), args.Error(1)
}

func (m *MockAdvisor) GetRebalancePlan(ctx context.Context, wallet string, req advisor.PlanRequest) (*domain.RebalancePlan, error) {
	args := m.Called(wallet, req)
	plan, _ := args.Get(0).(*domain.RebalancePlan)
	return plan, args.Error(1)
}

func (m *MockAdvisor) GetMarketInsights(ctx context.Context, sourceFilter ...string) domain.MarketSignalSet {
	args := m.Called(sourceFilter)
	return args.Get(0).(domain.MarketSignalSet)
}

func setupRouter(svc *MockAdvisor) http.Handler {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response, "data")
	assert.Contains(t, response, "metadata")
	return response
}

func TestHandleGetAnalysis(t *testing.T) {
	svc := new(MockAdvisor)
	svc.On("Analyze", testWallet).Return(&advisor.Analysis{
		ID:     "a-1",
		Wallet: testWallet,
		Risk:   domain.RiskMetrics{ConcentrationRisk: 0.4},
		Insights: advisor.Insights{
			Partial:            true,
			UnavailableSources: []string{"beta"},
		},
		Recommendations: []advisor.Recommendation{{Code: "partial_market_data"}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/analysis", nil)
	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	response := decodeEnvelope(t, w)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, "a-1", data["id"])
	assert.Equal(t, 0.4, data["risk"].(map[string]interface{})["concentration_risk"])
	assert.Equal(t, true, response["metadata"].(map[string]interface{})["partial"])
	svc.AssertExpectations(t)
}

func TestHandleGetAnalysis_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid wallet", err: fmt.Errorf("%w: bad", domain.ErrInvalidWallet), status: http.StatusBadRequest},
		{name: "source unavailable", err: fmt.Errorf("%w: rpc down", domain.ErrSourceUnavailable), status: http.StatusInternalServerError},
		{name: "unexpected", err: fmt.Errorf("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAdvisor)
			svc.On("Analyze", "w").Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodGet, "/api/wallets/w/analysis", nil)
			w := httptest.NewRecorder()
			setupRouter(svc).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandleGetRisk(t *testing.T) {
	svc := new(MockAdvisor)
	svc.On("GetRiskMetrics", testWallet).Return(domain.RiskMetrics{
		ConcentrationRisk:    0.6,
		DiversificationScore: 0.4,
		VolatilityEstimate:   0.5,
		LiquidAssetsRatio:    1,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/risk", nil)
	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, 0.6, data["concentration_risk"])
	assert.Equal(t, 0.4, data["diversification_score"])
}

func TestHandleGetRebalance_Strategy(t *testing.T) {
	svc := new(MockAdvisor)
	svc.On("GetRebalancePlan", testWallet, advisor.PlanRequest{Strategy: "aggressive", BiasWithSignals: true}).
		Return(&domain.RebalancePlan{Trades: []domain.Trade{{Action: domain.TradeActionSell}}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/rebalance?strategy=aggressive&bias=true", nil)
	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	response := decodeEnvelope(t, w)
	assert.Equal(t, float64(1), response["metadata"].(map[string]interface{})["trades"])
	svc.AssertExpectations(t)
}

func TestHandleGetRebalance_InvalidBias(t *testing.T) {
	svc := new(MockAdvisor)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/rebalance?bias=maybe", nil)
	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "GetRebalancePlan", mock.Anything, mock.Anything)
}

func TestHandlePostRebalance_CustomTarget(t *testing.T) {
	svc := new(MockAdvisor)
	expected := advisor.PlanRequest{
		CustomTarget: domain.Allocation{
			{Asset: domain.NativeAsset(), Percentage: 0.5},
			{Asset: domain.TokenAsset(domain.USDCMint, "USDC"), Percentage: 0.3},
			{Asset: domain.OtherAsset(), Percentage: 0.2},
		},
		BiasWithSignals: true,
	}
	svc.On("GetRebalancePlan", testWallet, expected).Return(&domain.RebalancePlan{Trades: []domain.Trade{}}, nil)

	body := `{
		"target": [
			{"asset": "SOL", "percentage": 0.5},
			{"asset": "` + domain.USDCMint + `", "symbol": "USDC", "percentage": 0.3},
			{"asset": "other", "percentage": 0.2}
		],
		"bias_with_signals": true
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/wallets/"+testWallet+"/rebalance", strings.NewReader(body))
	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	decodeEnvelope(t, w)
	svc.AssertExpectations(t)
}

func TestHandlePostRebalance_InvalidTarget(t *testing.T) {
	svc := new(MockAdvisor)
	svc.On("GetRebalancePlan", testWallet, mock.Anything).
		Return(nil, fmt.Errorf("%w: percentages sum to 0.900000, expected 1.0", domain.ErrInvalidTarget))

	body := `{"target": [{"asset": "SOL", "percentage": 0.9}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/wallets/"+testWallet+"/rebalance", strings.NewReader(body))
	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid target allocation")
}

func TestHandlePostRebalance_MalformedBody(t *testing.T) {
	svc := new(MockAdvisor)

	req := httptest.NewRequest(http.MethodPost, "/api/wallets/"+testWallet+"/rebalance", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "GetRebalancePlan", mock.Anything, mock.Anything)
}

func TestHandleGetMarketInsights(t *testing.T) {
	set := domain.MarketSignalSet{
		Sources: map[string]domain.SourceSignals{
			"alpha": {Available: true, Signals: []domain.MarketSignal{}},
			"beta":  {Available: false, Error: "timeout", Signals: []domain.MarketSignal{}},
		},
		SuggestedAllocations: []domain.SuggestedAllocation{},
	}

	tests := []struct {
		name   string
		query  string
		filter []string
	}{
		{name: "no filter", query: "", filter: []string(nil)},
		{name: "repeated parameter", query: "?source=alpha&source=beta", filter: []string{"alpha", "beta"}},
		{name: "comma list", query: "?source=alpha,beta", filter: []string{"alpha", "beta"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAdvisor)
			svc.On("GetMarketInsights", tt.filter).Return(set)

			req := httptest.NewRequest(http.MethodGet, "/api/market/insights"+tt.query, nil)
			w := httptest.NewRecorder()
			setupRouter(svc).ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			response := decodeEnvelope(t, w)
			assert.Equal(t, true, response["metadata"].(map[string]interface{})["partial"])
			svc.AssertExpectations(t)
		})
	}
}

// Package riskclient talks to the external ML risk-scoring API. The
// model itself is an external collaborator; this client only carries
// the feature/score contract.
package riskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mevshield/mevshield/pkg/metrics"
)

// Features is the feature vector the scoring API expects per trade
type Features struct {
	GasPriceGwei        float64 `json:"gas_price_gwei"`
	GasLimit            int     `json:"gas_limit"`
	ValueETH            float64 `json:"value_eth"`
	SlippageTolerance   float64 `json:"slippage_tolerance"`
	PriorityFeeGwei     float64 `json:"priority_fee_gwei"`
	PositionInBlock     float64 `json:"position_in_block"`
	BlockCongestion     float64 `json:"block_congestion"`
	TokenPairVolatility float64 `json:"token_pair_volatility"`
	LiquidityDepth      float64 `json:"liquidity_depth"`
	SenderTxCount       int     `json:"sender_tx_count"`
	SenderSuccessRate   float64 `json:"sender_success_rate"`
	SenderAvgGasPrice   float64 `json:"sender_avg_gas_price"`
	IsContract          int     `json:"is_contract"`
	ContractAgeDays     float64 `json:"contract_age_days"`
	NetworkGasPrice     float64 `json:"network_gas_price"`
	PendingTxCount      int     `json:"pending_tx_count"`
	HourOfDay           int     `json:"hour_of_day"`
	DayOfWeek           int     `json:"day_of_week"`
	UsesFlashbots       int     `json:"uses_flashbots"`
	HasBundle           int     `json:"has_bundle"`
}

// DefaultFeatures fills the ambient fields a caller cannot observe
// with the network-typical values the scoring service was trained on
func DefaultFeatures(valueETH float64) Features {
	now := time.Now().UTC()
	return Features{
		GasPriceGwei:        30,
		GasLimit:            200000,
		ValueETH:            valueETH,
		SlippageTolerance:   0.5,
		PriorityFeeGwei:     2,
		PositionInBlock:     0.5,
		BlockCongestion:     0.6,
		TokenPairVolatility: 0.03,
		LiquidityDepth:      1e10,
		SenderTxCount:       100,
		SenderSuccessRate:   0.95,
		SenderAvgGasPrice:   30,
		NetworkGasPrice:     30,
		PendingTxCount:      150,
		HourOfDay:           now.Hour(),
		DayOfWeek:           int(now.Weekday()+6) % 7,
	}
}

// Prediction is the scoring API's answer for one trade
type Prediction struct {
	RiskScore         float64 `json:"risk_score"`
	IsAttack          bool    `json:"is_attack"`
	AttackProbability float64 `json:"attack_probability"`
	AttackType        string  `json:"attack_type"`
	Confidence        float64 `json:"confidence"`
	Recommendation    string  `json:"recommendation"`
}

// Score clamps the model output into the protocol's [0,100] range
func (p Prediction) Score() uint8 {
	switch {
	case p.RiskScore < 0:
		return 0
	case p.RiskScore > 100:
		return 100
	}
	return uint8(p.RiskScore)
}

// Scorer produces risk scores for trades
type Scorer interface {
	Score(ctx context.Context, features Features) (Prediction, error)
	Healthy(ctx context.Context) bool
}

// Client is the HTTP Scorer implementation
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

var _ Scorer = (*Client)(nil)

// NewClient creates a scoring client for the given base URL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("riskclient"),
	}
}

// Score implements Scorer
func (c *Client) Score(ctx context.Context, features Features) (Prediction, error) {
	start := time.Now()
	defer func() {
		metrics.ScoringLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(features)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to encode features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("scoring API unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("scoring API returned status %d", resp.StatusCode)
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return Prediction{}, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return prediction, nil
}

// Healthy implements Scorer
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("scoring API health probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

package shield

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/timelock"
	"github.com/mevshield/mevshield/internal/token"
	"github.com/mevshield/mevshield/pkg/errors"
	"github.com/mevshield/mevshield/pkg/models"
)

var (
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	routerAddr = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	userAddr   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	assetIn    = common.HexToAddress("0x0000000000000000000000000000000000000101")
	assetOut   = common.HexToAddress("0x0000000000000000000000000000000000000102")
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type env struct {
	shield   *Shield
	clock    *fakeClock
	tokenIn  *token.Token
	tokenOut *token.Token
}

func newTestShield(t *testing.T) *env {
	t.Helper()
	assets := token.NewDirectory()
	tokenIn := token.NewToken()
	tokenOut := token.NewToken()
	assets.Register(assetIn, tokenIn)
	assets.Register(assetOut, tokenOut)

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := New(Config{
		Owner:      ownerAddr,
		RouterAddr: routerAddr,
		VaultAddr:  vaultAddr,
	}, assets, nil, clock, audit.Nop{}, zap.NewNop())
	require.NoError(t, err)

	tokenIn.Mint(userAddr, dec(1_000_000))
	require.True(t, tokenIn.Approve(userAddr, routerAddr, dec(1_000_000)))
	require.True(t, tokenIn.Approve(userAddr, vaultAddr, dec(1_000_000)))
	tokenOut.Mint(routerAddr, dec(1_000_000))

	return &env{shield: s, clock: clock, tokenIn: tokenIn, tokenOut: tokenOut}
}

func TestProtectTradeLowRiskExecutesPublicly(t *testing.T) {
	e := newTestShield(t)

	out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(900), 29)
	require.NoError(t, err)

	assert.Equal(t, models.MethodPublic, out.Method)
	assert.True(t, out.AmountOut.Equal(dec(990)))
	assert.Nil(t, out.OrderID)
	assert.True(t, e.tokenOut.BalanceOf(userAddr).Equal(dec(990)))
}

func TestProtectTradeMediumRiskCreatesDelayedOrder(t *testing.T) {
	e := newTestShield(t)

	out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(900), 50)
	require.NoError(t, err)

	assert.Equal(t, models.MethodTimelock, out.Method)
	require.NotNil(t, out.OrderID)
	assert.True(t, out.AmountOut.IsZero())

	// Nothing moved yet; the swap waits for execution.
	assert.True(t, e.tokenIn.BalanceOf(userAddr).Equal(dec(1_000_000)))
	order, ok := e.shield.Book.GetOrder(*out.OrderID)
	require.True(t, ok)
	assert.Equal(t, timelock.StatusPending, order.Status)
}

func TestProtectTradeHighRiskUsesPrivatePath(t *testing.T) {
	e := newTestShield(t)

	out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(900), 85)
	require.NoError(t, err)

	assert.Equal(t, models.MethodPrivate, out.Method)
	assert.True(t, out.AmountOut.Equal(dec(990)))
	assert.Equal(t, uint64(1), e.shield.Router.Nonce(userAddr))
}

func TestProtectTradeTierBoundaries(t *testing.T) {
	e := newTestShield(t)

	cases := []struct {
		score  uint8
		method string
	}{
		{0, models.MethodPublic},
		{29, models.MethodPublic},
		{30, models.MethodTimelock},
		{69, models.MethodTimelock},
		{70, models.MethodPrivate},
		{100, models.MethodPrivate},
	}
	for _, tc := range cases {
		out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(100), dec(0), tc.score)
		require.NoError(t, err)
		assert.Equal(t, tc.method, out.Method, "score %d", tc.score)
	}
}

func TestProtectTradeRejectsScoreOverMax(t *testing.T) {
	e := newTestShield(t)
	_, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(100), dec(0), 101)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestExecuteDelayedOrder(t *testing.T) {
	e := newTestShield(t)

	out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(900), 50)
	require.NoError(t, err)
	require.NotNil(t, out.OrderID)

	// Too early.
	_, err = e.shield.ExecuteDelayedOrder(*out.OrderID, 50)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	e.clock.Advance(time.Duration(timelock.DefaultDelaySeconds) * time.Second)
	amountOut, err := e.shield.ExecuteDelayedOrder(*out.OrderID, 50)
	require.NoError(t, err)
	assert.True(t, amountOut.Equal(dec(990)))
	assert.True(t, e.tokenOut.BalanceOf(userAddr).Equal(dec(990)))

	// An executed order cannot run twice.
	_, err = e.shield.ExecuteDelayedOrder(*out.OrderID, 50)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
}

func TestExecuteDelayedOrderSwapFailureKeepsOrderPending(t *testing.T) {
	e := newTestShield(t)

	out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(900), 50)
	require.NoError(t, err)
	require.NotNil(t, out.OrderID)
	e.clock.Advance(time.Duration(timelock.DefaultDelaySeconds) * time.Second)

	// The user revoked the router's allowance after queueing: the pull
	// fails, and the order must survive for a later retry.
	require.True(t, e.tokenIn.Approve(userAddr, routerAddr, decimal.Zero))
	_, err = e.shield.ExecuteDelayedOrder(*out.OrderID, 50)
	assert.True(t, errors.Is(err, errors.ErrTransferFailed))

	order, ok := e.shield.Book.GetOrder(*out.OrderID)
	require.True(t, ok)
	assert.Equal(t, timelock.StatusPending, order.Status)
	assert.True(t, e.tokenOut.BalanceOf(userAddr).IsZero())

	// Restoring the allowance lets the same order execute.
	require.True(t, e.tokenIn.Approve(userAddr, routerAddr, dec(1000)))
	amountOut, err := e.shield.ExecuteDelayedOrder(*out.OrderID, 50)
	require.NoError(t, err)
	assert.True(t, amountOut.Equal(dec(990)))
}

func TestExecuteDelayedOrderNotFound(t *testing.T) {
	e := newTestShield(t)
	_, err := e.shield.ExecuteDelayedOrder(42, 50)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCancelOrder(t *testing.T) {
	e := newTestShield(t)
	out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(900), 50)
	require.NoError(t, err)

	require.NoError(t, e.shield.CancelOrder(userAddr, *out.OrderID))
	e.clock.Advance(time.Hour)
	_, err = e.shield.ExecuteDelayedOrder(*out.OrderID, 50)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
}

func TestDepositAndWithdraw(t *testing.T) {
	e := newTestShield(t)

	require.NoError(t, e.shield.Deposit(userAddr, assetIn, dec(1000)))
	// Default fee is 10 bps: 1000 credits 999.
	assert.True(t, e.shield.Vault.BalanceOf(userAddr, assetIn).Equal(dec(999)))

	require.NoError(t, e.shield.Withdraw(userAddr, assetIn, dec(999)))
	assert.True(t, e.shield.Vault.BalanceOf(userAddr, assetIn).IsZero())
}

func TestBundleLifecycle(t *testing.T) {
	e := newTestShield(t)
	hash := common.HexToHash("0xB1")

	target := e.shield.BlockNumber() + 1
	require.NoError(t, e.shield.SubmitBundle(userAddr, hash, target))

	bundle, ok := e.shield.Relay.GetBundle(hash)
	require.True(t, ok)
	assert.Equal(t, userAddr, bundle.Submitter)

	require.NoError(t, e.shield.ReportBundleFailed(ownerAddr, hash, "missed"))
	require.NoError(t, e.shield.ReportBundleIncluded(ownerAddr, hash))

	submitted, included := e.shield.Relay.Totals()
	assert.Equal(t, uint64(1), submitted)
	assert.Equal(t, uint64(1), included)
}

func TestAdvanceBlockGatesBundleTargets(t *testing.T) {
	e := newTestShield(t)
	hash := common.HexToHash("0xB2")

	start := e.shield.BlockNumber()
	err := e.shield.SubmitBundle(userAddr, hash, start)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	next := e.shield.AdvanceBlock()
	assert.Equal(t, start+1, next)
	require.NoError(t, e.shield.SubmitBundle(userAddr, hash, next+1))
}

func TestSubmitScore(t *testing.T) {
	e := newTestShield(t)
	tradeID := common.HexToHash("0xC1")

	require.NoError(t, e.shield.SubmitScore(ownerAddr, tradeID, 80))
	err := e.shield.SubmitScore(ownerAddr, tradeID, 80)
	assert.True(t, errors.Is(err, errors.ErrDuplicateRecord))
}

func TestAdminPassthroughs(t *testing.T) {
	e := newTestShield(t)

	require.NoError(t, e.shield.SetThreshold(90))
	assert.Equal(t, uint8(90), e.shield.Router.Threshold())

	require.NoError(t, e.shield.SetFeeBps(25))
	assert.Equal(t, int64(25), e.shield.Vault.FeeBps())

	require.NoError(t, e.shield.SetDefaultDelay(120))
	assert.Equal(t, int64(120), e.shield.Book.DefaultDelay())

	require.NoError(t, e.shield.TogglePause())
	assert.True(t, e.shield.Vault.Paused())
}

func TestThresholdChangeMovesTierBoundary(t *testing.T) {
	e := newTestShield(t)
	require.NoError(t, e.shield.SetThreshold(50))

	out, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(100), dec(0), 50)
	require.NoError(t, err)
	assert.Equal(t, models.MethodPrivate, out.Method)

	out, err = e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(100), dec(0), 40)
	require.NoError(t, err)
	assert.Equal(t, models.MethodTimelock, out.Method)
}

func TestStats(t *testing.T) {
	e := newTestShield(t)

	_, err := e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(0), 10)
	require.NoError(t, err)
	_, err = e.shield.ProtectTrade(userAddr, assetIn, assetOut, dec(1000), dec(0), 50)
	require.NoError(t, err)

	stats := e.shield.Stats()
	assert.Equal(t, int64(2), stats.TradesProtected)
	assert.Equal(t, int64(1), stats.OpenOrders)
	assert.True(t, stats.TotalSavingsUSD.IsPositive())
}

func TestEstimateSavingsTiers(t *testing.T) {
	e := newTestShield(t)

	// 1 unit at the 2000 reference price: 0.1% / 0.5% / 1.5% of 2000.
	low := e.shield.estimateSavings(dec(1), 10)
	mid := e.shield.estimateSavings(dec(1), 50)
	high := e.shield.estimateSavings(dec(1), 90)

	assert.True(t, low.Equal(decimal.NewFromInt(2)), "got %s", low)
	assert.True(t, mid.Equal(decimal.NewFromInt(10)), "got %s", mid)
	assert.True(t, high.Equal(decimal.NewFromInt(30)), "got %s", high)
}

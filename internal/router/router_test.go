package router

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/token"
	"github.com/mevshield/mevshield/pkg/errors"
)

var (
	routerAddr = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	userAddr   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	assetIn    = common.HexToAddress("0x0000000000000000000000000000000000000101")
	assetOut   = common.HexToAddress("0x0000000000000000000000000000000000000102")
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// capture keeps every event it sees for assertions
type capture struct {
	events []audit.Event
}

func (c *capture) Record(event audit.Event) { c.events = append(c.events, event) }

func (c *capture) has(eventType audit.EventType) bool {
	for _, e := range c.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

type env struct {
	router   *Router
	tokenIn  *token.Token
	tokenOut *token.Token
	assets   *token.Directory
	recorder *capture
}

func newTestRouter(t *testing.T, threshold uint8) *env {
	t.Helper()
	assets := token.NewDirectory()
	tokenIn := token.NewToken()
	tokenOut := token.NewToken()
	assets.Register(assetIn, tokenIn)
	assets.Register(assetOut, tokenOut)

	recorder := &capture{}
	r, err := New(Config{
		Self:      routerAddr,
		Owner:     ownerAddr,
		Threshold: threshold,
	}, assets, SimulatedBackend{}, recorder, zap.NewNop())
	require.NoError(t, err)

	tokenIn.Mint(userAddr, dec(1_000_000))
	require.True(t, tokenIn.Approve(userAddr, routerAddr, dec(1_000_000)))
	// The router's output inventory.
	tokenOut.Mint(routerAddr, dec(1_000_000))

	return &env{router: r, tokenIn: tokenIn, tokenOut: tokenOut, assets: assets, recorder: recorder}
}

func TestNewRejectsThresholdOverMax(t *testing.T) {
	_, err := New(Config{Threshold: 101}, token.NewDirectory(), SimulatedBackend{}, audit.Nop{}, zap.NewNop())
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestNewZeroThresholdUsesDefault(t *testing.T) {
	e := newTestRouter(t, 0)
	assert.Equal(t, DefaultThreshold, e.router.Threshold())
}

func TestProtectPublicPath(t *testing.T) {
	e := newTestRouter(t, 70)

	out, err := e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(900), 30)
	require.NoError(t, err)
	assert.True(t, out.Equal(dec(990)))

	assert.True(t, e.tokenIn.BalanceOf(userAddr).Equal(dec(999_000)))
	assert.True(t, e.tokenOut.BalanceOf(userAddr).Equal(dec(990)))
	assert.True(t, e.recorder.has(audit.EventTradeExecuted))
	assert.False(t, e.recorder.has(audit.EventPrivatePathChosen))
	// Public routing consumes no nonce.
	assert.Equal(t, uint64(0), e.router.Nonce(userAddr))
}

func TestProtectPrivatePath(t *testing.T) {
	e := newTestRouter(t, 70)

	// At the threshold exactly, the private path is chosen.
	out, err := e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(900), 70)
	require.NoError(t, err)
	assert.True(t, out.Equal(dec(990)))
	assert.True(t, e.recorder.has(audit.EventPrivatePathChosen))
	assert.Equal(t, uint64(1), e.router.Nonce(userAddr))

	_, err = e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(900), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.router.Nonce(userAddr))
}

func TestProtectValidation(t *testing.T) {
	e := newTestRouter(t, 70)

	cases := []struct {
		name string
		call func() error
	}{
		{"null asset in", func() error {
			_, err := e.router.Protect(userAddr, common.Address{}, assetOut, dec(100), dec(0), 10)
			return err
		}},
		{"null asset out", func() error {
			_, err := e.router.Protect(userAddr, assetIn, common.Address{}, dec(100), dec(0), 10)
			return err
		}},
		{"same asset", func() error {
			_, err := e.router.Protect(userAddr, assetIn, assetIn, dec(100), dec(0), 10)
			return err
		}},
		{"zero amount", func() error {
			_, err := e.router.Protect(userAddr, assetIn, assetOut, decimal.Zero, dec(0), 10)
			return err
		}},
		{"negative minimum", func() error {
			_, err := e.router.Protect(userAddr, assetIn, assetOut, dec(100), dec(-1), 10)
			return err
		}},
		{"score over max", func() error {
			_, err := e.router.Protect(userAddr, assetIn, assetOut, dec(100), dec(0), 101)
			return err
		}},
		{"unknown asset", func() error {
			unknown := common.HexToAddress("0x0000000000000000000000000000000000000999")
			_, err := e.router.Protect(userAddr, assetIn, unknown, dec(100), dec(0), 10)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(tc.call(), errors.ErrInvalidArgument))
		})
	}

	// No validation failure moved any funds.
	assert.True(t, e.tokenIn.BalanceOf(userAddr).Equal(dec(1_000_000)))
	assert.True(t, e.tokenIn.BalanceOf(routerAddr).IsZero())
}

func TestProtectPullFailureAborts(t *testing.T) {
	e := newTestRouter(t, 70)
	failing := &token.CallbackToken{Inner: e.tokenIn, FailPulls: true}
	e.assets.Register(assetIn, failing)

	_, err := e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(0), 10)
	assert.True(t, errors.Is(err, errors.ErrTransferFailed))
	assert.False(t, e.recorder.has(audit.EventFundsStranded))
	assert.True(t, e.tokenIn.BalanceOf(userAddr).Equal(dec(1_000_000)))
}

func TestProtectSlippageStrandsFunds(t *testing.T) {
	e := newTestRouter(t, 70)

	// Simulated output of 1000 is 990; a minimum of 991 trips slippage.
	_, err := e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(991), 10)
	assert.True(t, errors.Is(err, errors.ErrSlippageExceeded))

	// The pulled input stays in router custody.
	assert.True(t, e.tokenIn.BalanceOf(routerAddr).Equal(dec(1000)))
	assert.True(t, e.tokenOut.BalanceOf(userAddr).IsZero())
	assert.True(t, e.recorder.has(audit.EventFundsStranded))
}

func TestProtectOutputPushFailureStrandsFunds(t *testing.T) {
	e := newTestRouter(t, 70)
	failing := &token.CallbackToken{Inner: e.tokenOut, FailTransfers: true}
	e.assets.Register(assetOut, failing)

	_, err := e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(0), 10)
	assert.True(t, errors.Is(err, errors.ErrTransferFailed))
	assert.True(t, e.tokenIn.BalanceOf(routerAddr).Equal(dec(1000)))
	assert.True(t, e.recorder.has(audit.EventFundsStranded))
}

func TestProtectReentrancyRejected(t *testing.T) {
	e := newTestRouter(t, 70)

	var reentrantErr error
	hostile := &token.CallbackToken{
		Inner: e.tokenIn,
		OnTransferFrom: func(_, _, _ common.Address, _ decimal.Decimal) {
			_, reentrantErr = e.router.Protect(userAddr, assetIn, assetOut, dec(1), dec(0), 10)
		},
	}
	e.assets.Register(assetIn, hostile)

	_, err := e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(0), 10)
	require.NoError(t, err)
	assert.True(t, errors.Is(reentrantErr, errors.ErrReentrantCall))
}

func TestSetThreshold(t *testing.T) {
	e := newTestRouter(t, 70)

	require.NoError(t, e.router.SetThreshold(ownerAddr, 50))
	assert.Equal(t, uint8(50), e.router.Threshold())
	assert.True(t, e.recorder.has(audit.EventThresholdUpdated))

	err := e.router.SetThreshold(ownerAddr, 101)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	err = e.router.SetThreshold(userAddr, 50)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	// The new threshold takes effect on the next trade.
	_, err = e.router.Protect(userAddr, assetIn, assetOut, dec(100), dec(0), 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.router.Nonce(userAddr))
}

func TestSweep(t *testing.T) {
	e := newTestRouter(t, 70)

	// Strand some funds first.
	_, err := e.router.Protect(userAddr, assetIn, assetOut, dec(1000), dec(991), 10)
	require.True(t, errors.Is(err, errors.ErrSlippageExceeded))

	_, err = e.router.Sweep(userAddr, assetIn)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	swept, err := e.router.Sweep(ownerAddr, assetIn)
	require.NoError(t, err)
	assert.True(t, swept.Equal(dec(1000)))
	assert.True(t, e.tokenIn.BalanceOf(ownerAddr).Equal(dec(1000)))

	_, err = e.router.Sweep(ownerAddr, assetIn)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
}

func TestSimulatedBackendFloorsOutput(t *testing.T) {
	backend := SimulatedBackend{}
	out, err := backend.Execute(PathPublic, assetIn, assetOut, dec(101))
	require.NoError(t, err)
	// 99% of 101 is 99.99, floored to 99.
	assert.True(t, out.Equal(dec(99)))
}

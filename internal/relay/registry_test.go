package relay

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/ledger"
	"github.com/mevshield/mevshield/pkg/errors"
)

var (
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	routerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	reporterAddr = common.HexToAddress("0x0000000000000000000000000000000000000044")
	userAddr     = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bundleA      = common.HexToHash("0xA1")
	bundleB      = common.HexToHash("0xA2")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestRegistry(t *testing.T) (*Registry, *ledger.Blocks) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	blocks := ledger.NewBlocks(100)
	reg := New(Config{
		Owner:     ownerAddr,
		Router:    routerAddr,
		Reporters: []common.Address{reporterAddr},
	}, clock, blocks, audit.Nop{}, zap.NewNop())
	return reg, blocks
}

func TestSubmitBundle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.SubmitBundle(routerAddr, userAddr, bundleA, 101))

	bundle, ok := reg.GetBundle(bundleA)
	require.True(t, ok)
	assert.Equal(t, userAddr, bundle.Submitter)
	assert.Equal(t, uint64(101), bundle.TargetBlock)
	assert.Equal(t, StatusPending, bundle.Status)
	assert.Equal(t, []common.Hash{bundleA}, reg.BundlesForBlock(101))
}

func TestSubmitBundleRouterOnly(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.SubmitBundle(userAddr, userAddr, bundleA, 101)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	err = reg.SubmitBundle(ownerAddr, userAddr, bundleA, 101)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestSubmitBundleRequiresFutureBlock(t *testing.T) {
	reg, blocks := newTestRegistry(t)

	err := reg.SubmitBundle(routerAddr, userAddr, bundleA, blocks.BlockNumber())
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	err = reg.SubmitBundle(routerAddr, userAddr, bundleA, blocks.BlockNumber()-1)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	require.NoError(t, reg.SubmitBundle(routerAddr, userAddr, bundleA, blocks.BlockNumber()+1))
}

func TestSubmitBundleDuplicateHash(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.SubmitBundle(routerAddr, userAddr, bundleA, 101))

	// Same hash, even for a different block, is rejected.
	err := reg.SubmitBundle(routerAddr, userAddr, bundleA, 200)
	assert.True(t, errors.Is(err, errors.ErrDuplicateRecord))

	submitted, _ := reg.Totals()
	assert.Equal(t, uint64(1), submitted)
}

func TestMarkIncluded(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.SubmitBundle(routerAddr, userAddr, bundleA, 101))

	err := reg.MarkIncluded(userAddr, bundleA)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	require.NoError(t, reg.MarkIncluded(reporterAddr, bundleA))
	bundle, _ := reg.GetBundle(bundleA)
	assert.Equal(t, StatusIncluded, bundle.Status)

	// Inclusion is recorded exactly once.
	err = reg.MarkIncluded(ownerAddr, bundleA)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	_, included := reg.Totals()
	assert.Equal(t, uint64(1), included)
}

func TestMarkIncludedNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.MarkIncluded(ownerAddr, bundleA)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMarkFailedIsDiagnosticOnly(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.SubmitBundle(routerAddr, userAddr, bundleA, 101))

	require.NoError(t, reg.MarkFailed(reporterAddr, bundleA, "missed block"))
	require.NoError(t, reg.MarkFailed(ownerAddr, bundleA, "missed block again"))
	assert.Equal(t, uint64(2), reg.FailedReports())

	// The record itself stays pending and can still be included.
	bundle, _ := reg.GetBundle(bundleA)
	assert.Equal(t, StatusPending, bundle.Status)
	require.NoError(t, reg.MarkIncluded(ownerAddr, bundleA))
}

func TestMarkFailedValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.MarkFailed(userAddr, bundleA, "nope")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	err = reg.MarkFailed(ownerAddr, bundleA, "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestInclusionRate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	assert.Equal(t, uint64(0), reg.InclusionRate())

	require.NoError(t, reg.SubmitBundle(routerAddr, userAddr, bundleA, 101))
	require.NoError(t, reg.SubmitBundle(routerAddr, userAddr, bundleB, 102))
	assert.Equal(t, uint64(0), reg.InclusionRate())

	require.NoError(t, reg.MarkIncluded(ownerAddr, bundleA))
	assert.Equal(t, uint64(50), reg.InclusionRate())

	require.NoError(t, reg.MarkIncluded(ownerAddr, bundleB))
	assert.Equal(t, uint64(100), reg.InclusionRate())
}

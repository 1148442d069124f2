package approval

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/ledger"
	"github.com/memohai/joingate/internal/logger"
	"github.com/memohai/joingate/internal/storage"
)

type fakeGateway struct {
	mu       sync.Mutex
	admin    bool
	adminErr error
	failFor  map[int64]bool
	approved []int64
	checks   int
	// onApprove runs after a successful approve, outside the lock.
	onApprove func(userID int64)
}

func (g *fakeGateway) IsBotAdmin(ctx context.Context, channelID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	return g.admin, g.adminErr
}

func (g *fakeGateway) ApproveJoinRequest(ctx context.Context, channelID string, userID int64) error {
	g.mu.Lock()
	if g.failFor[userID] {
		g.mu.Unlock()
		return errors.New("USER_ALREADY_PARTICIPANT")
	}
	g.approved = append(g.approved, userID)
	hook := g.onApprove
	g.mu.Unlock()
	if hook != nil {
		hook(userID)
	}
	return nil
}

func (g *fakeGateway) approvedSorted() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]int64(nil), g.approved...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakeLedger struct {
	mu       sync.Mutex
	pending  []int64
	reads    int
	resolved []int64
}

func (l *fakeLedger) Pending(ctx context.Context, channelID string, window time.Duration) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	return append([]int64(nil), l.pending...), nil
}

func (l *fakeLedger) Resolve(ctx context.Context, userID int64, channelID string, status ledger.Status, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved = append(l.resolved, userID)
	return 1, nil
}

func newEngine(gw Gateway, l Ledger) *Engine {
	return NewEngine(logger.Discard(), gw, l, Config{}, WithRand(rand.New(rand.NewPCG(1, 2))))
}

func TestApproveAllCountsFailuresIndependently(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{admin: true, failFor: map[int64]bool{3: true}}
	l := &fakeLedger{pending: []int64{1, 2, 3, 4, 5}}

	res, err := newEngine(gw, l).ApproveAll(context.Background(), "-100123")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Success)
	assert.Equal(t, 1, res.Failure)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.Selected)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, []int64{1, 2, 4, 5}, gw.approvedSorted())
	assert.ElementsMatch(t, []int64{1, 2, 4, 5}, l.resolved)
}

func TestApproveSampleClampsToPendingSet(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		pending []int64
		n       int
		want    int
	}{
		{"more than pending", []int64{7, 8}, 3, 2},
		{"equal to pending", []int64{7, 8, 9}, 3, 3},
		{"far more than pending", []int64{1, 2, 3, 4}, 1000, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gw := &fakeGateway{admin: true}
			res, err := newEngine(gw, &fakeLedger{pending: tc.pending}).ApproveSample(context.Background(), "-1001", tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Selected)
			assert.Equal(t, tc.want, res.Success)
			assert.Equal(t, len(tc.pending), res.Total)
			assert.Equal(t, tc.pending, gw.approvedSorted())
		})
	}
}

func TestApproveSampleMatchesApproveAllWhenLarge(t *testing.T) {
	t.Parallel()
	pending := []int64{11, 12, 13, 14}

	allGW := &fakeGateway{admin: true}
	all, err := newEngine(allGW, &fakeLedger{pending: pending}).ApproveAll(context.Background(), "-1001")
	require.NoError(t, err)

	sampleGW := &fakeGateway{admin: true}
	sample, err := newEngine(sampleGW, &fakeLedger{pending: pending}).ApproveSample(context.Background(), "-1001", 10)
	require.NoError(t, err)

	assert.Equal(t, allGW.approvedSorted(), sampleGW.approvedSorted())
	assert.Equal(t, all.Success, sample.Success)
	assert.Equal(t, len(pending), sample.Selected)
}

func TestApproveSampleRejectsNonPositiveCount(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, -1, -50} {
		gw := &fakeGateway{admin: true}
		l := &fakeLedger{pending: []int64{1, 2}}
		_, err := newEngine(gw, l).ApproveSample(context.Background(), "-1001", n)
		if !errors.Is(err, ErrInvalidCount) {
			t.Fatalf("n=%d: expected ErrInvalidCount, got %v", n, err)
		}
		if l.reads != 0 || gw.checks != 0 || len(gw.approved) != 0 {
			t.Fatalf("n=%d: expected no ledger or gateway access, got reads=%d checks=%d approved=%d",
				n, l.reads, gw.checks, len(gw.approved))
		}
	}
}

func TestRightsPreconditionAbortsBatch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		gw      *fakeGateway
		wantErr error
	}{
		{"not admin", &fakeGateway{admin: false}, ErrNotChannelAdmin},
		{"gateway error", &fakeGateway{adminErr: errors.New("chat not found")}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newEngine(tc.gw, &fakeLedger{pending: []int64{1, 2, 3}})
			for _, run := range []func() (Result, error){
				func() (Result, error) { return e.ApproveAll(context.Background(), "-1001") },
				func() (Result, error) { return e.ApproveSample(context.Background(), "-1001", 2) },
			} {
				res, err := run()
				require.Error(t, err)
				if tc.wantErr != nil {
					assert.ErrorIs(t, err, tc.wantErr)
				}
				assert.Zero(t, res.Success)
				assert.Zero(t, res.Failure)
			}
			assert.Empty(t, tc.gw.approved)
		})
	}
}

func TestEmptyPendingSetIsNotAnError(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{admin: true}
	e := newEngine(gw, &fakeLedger{})

	res, err := e.ApproveAll(context.Background(), "-1001")
	require.NoError(t, err)
	assert.True(t, res.Empty)

	res, err = e.ApproveSample(context.Background(), "-1001", 5)
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Zero(t, res.Selected)
	assert.Empty(t, gw.approved)
}

func TestApproveSampleNeverRepeatsUser(t *testing.T) {
	t.Parallel()
	pending := make([]int64, 50)
	for i := range pending {
		pending[i] = int64(i + 1)
	}
	for seed := uint64(0); seed < 20; seed++ {
		gw := &fakeGateway{admin: true}
		e := NewEngine(logger.Discard(), gw, &fakeLedger{pending: pending}, Config{},
			WithRand(rand.New(rand.NewPCG(seed, seed+1))))
		res, err := e.ApproveSample(context.Background(), "-1001", 10)
		require.NoError(t, err)
		require.Equal(t, 10, res.Selected)

		seen := map[int64]bool{}
		for _, id := range gw.approved {
			if seen[id] {
				t.Fatalf("seed %d: user %d approved twice", seed, id)
			}
			seen[id] = true
		}
	}
}

func TestCancelledBatchCountsRemainingAsFailures(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{admin: true}
	e := NewEngine(logger.Discard(), gw, &fakeLedger{pending: []int64{1, 2, 3}}, Config{RatePerSecond: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.ApproveAll(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, res.Total, res.Success+res.Failure)
	assert.Equal(t, 3, res.Failure)
}

func TestApprovedUserIsResolvedWhenContextEndsMidBatch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := &fakeGateway{admin: true, onApprove: func(int64) { cancel() }}
	l := &fakeLedger{pending: []int64{1, 2, 3}}
	e := NewEngine(logger.Discard(), gw, l, Config{RatePerSecond: 1000})

	res, err := e.ApproveAll(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 2, res.Failure)
	assert.Equal(t, []int64{1}, gw.approvedSorted())
	assert.Equal(t, []int64{1}, l.resolved)
}

func TestRightsCheckIsStoredOnRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	provider, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	registry := channels.NewFileStore(provider)
	require.NoError(t, registry.Save(ctx, channels.Record{ID: "-1001", IsBotAdmin: true}))

	gw := &fakeGateway{admin: false}
	e := NewEngine(logger.Discard(), gw, &fakeLedger{pending: []int64{1}}, Config{}, WithRegistry(registry))

	_, err = e.ApproveAll(ctx, "-1001")
	require.ErrorIs(t, err, ErrNotChannelAdmin)
	rec, _, err := registry.Load(ctx, "-1001")
	require.NoError(t, err)
	assert.False(t, rec.IsBotAdmin)

	gw.admin = true
	_, err = e.ApproveSample(ctx, "-1001", 1)
	require.NoError(t, err)
	rec, _, err = registry.Load(ctx, "-1001")
	require.NoError(t, err)
	assert.True(t, rec.IsBotAdmin)

	// unregistered channels are not created by a rights check
	_, err = e.ApproveAll(ctx, "-1002")
	require.NoError(t, err)
	_, found, err := registry.Load(ctx, "-1002")
	require.NoError(t, err)
	assert.False(t, found)
}

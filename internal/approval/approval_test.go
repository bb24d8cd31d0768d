package approval

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/canvaspipe/internal/drafts"
	"github.com/roach88/canvaspipe/internal/ident"
	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
	"github.com/roach88/canvaspipe/internal/testutil"
)

var (
	seg1 = ir.Scope{ProjectID: "p1", SegmentID: "s1"}
	seg2 = ir.Scope{ProjectID: "p1", SegmentID: "s2"}
)

type fixture struct {
	drafts *drafts.Adapter
	engine *Engine
	clock  *testutil.DeterministicClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	st := testutil.OpenStore(t, clock)
	reg := registry.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		drafts: drafts.New(reg, st,
			drafts.WithIDGenerator(ident.NewSequenceGenerator("row")),
			drafts.WithLogger(logger),
		),
		engine: New(reg, st,
			WithIDGenerator(ident.NewSequenceGenerator("apr")),
			WithClock(clock.Now),
			WithLogger(logger),
			WithRetry(2, time.Millisecond),
		),
		clock: clock,
	}
}

func (f *fixture) insert(t *testing.T, stage registry.StageID, scope ir.Scope, names ...string) []string {
	t.Helper()
	rows := make([]drafts.NewRow, len(names))
	for i, n := range names {
		rows[i] = drafts.NewRow{Payload: ir.Obj(ir.O("name", ir.IRString(n)))}
	}
	written, err := f.drafts.BulkInsert(context.Background(), stage, scope, rows)
	require.NoError(t, err)
	ids := make([]string, len(written))
	for i, w := range written {
		ids[i] = w.ID
	}
	return ids
}

func TestApproveCopiesDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.Pains, seg1, "Churn", "Pricing", "Support")

	res, err := f.engine.Approve(ctx, registry.Pains, seg1, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Replaced)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Records, 3)

	rec := res.Records[0]
	assert.Equal(t, "apr-1", rec.ID)
	assert.Equal(t, ids[0], rec.SourceDraftID)
	assert.Equal(t, int64(1), rec.SourceVersion)
	assert.Equal(t, "Churn", rec.Payload.Text("name"))
	assert.Equal(t, seg1, rec.Scope)

	ok, err := f.engine.IsApproved(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.engine.Approved(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Equal(t, string(registry.Pains), stored[0].Stage)
}

func TestApproveSubsetKeepsOrdinalOrder(t *testing.T) {
	f := newFixture(t)
	ids := f.insert(t, registry.Pains, seg1, "a", "b", "c")

	res, err := f.engine.Approve(context.Background(), registry.Pains, seg1, []string{ids[2], ids[0], ids[2]})
	require.NoError(t, err)
	require.Len(t, res.Records, 2, "duplicate ids collapse")
	assert.Equal(t, "a", res.Records[0].Payload.Text("name"))
	assert.Equal(t, "c", res.Records[1].Payload.Text("name"))
}

func TestApproveTwiceReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.Pains, seg1, "a", "b", "c")

	first, err := f.engine.Approve(ctx, registry.Pains, seg1, ids)
	require.NoError(t, err)
	second, err := f.engine.Approve(ctx, registry.Pains, seg1, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Replaced)

	stored, err := f.engine.Approved(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	require.Len(t, stored, len(first.Records), "re-approval never accumulates")
	for i := range stored {
		assert.Equal(t, first.Records[i].Payload, stored[i].Payload)
		assert.Equal(t, first.Records[i].SourceDraftID, stored[i].SourceDraftID)
	}
}

func TestApproveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.Pains, seg1, "a")

	tests := []struct {
		name  string
		scope ir.Scope
		ids   []string
	}{
		{name: "empty selection", scope: seg1, ids: nil},
		{name: "blank ids", scope: seg1, ids: []string{""}},
		{name: "unknown row", scope: seg1, ids: []string{"ghost"}},
		{name: "row of another scope", scope: seg2, ids: ids},
		{name: "missing segment", scope: ir.Scope{ProjectID: "p1"}, ids: ids},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Approve(ctx, registry.Pains, tt.scope, tt.ids)
			require.Error(t, err)
			assert.True(t, ir.IsValidation(err), "got %v", err)
		})
	}

	ok, err := f.engine.IsApproved(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	assert.False(t, ok, "failed approvals write nothing")
}

func TestApproveFailureKeepsPreviousSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.Pains, seg1, "a", "b")

	_, err := f.engine.Approve(ctx, registry.Pains, seg1, ids[:1])
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, registry.Pains, seg1, []string{ids[1], "ghost"})
	require.Error(t, err)

	stored, err := f.engine.Approved(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].Payload.Text("name"))
}

func TestRankingRequiresTop(t *testing.T) {
	// Five ranked pains, none flagged: approval is refused until one is.
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.PainsRanking, seg1, "a", "b", "c", "d", "e")

	_, err := f.engine.Approve(ctx, registry.PainsRanking, seg1, ids)
	require.Error(t, err)
	assert.True(t, ir.IsValidation(err))
	assert.Contains(t, err.Error(), "no top item selected")

	_, err = f.drafts.SetTop(ctx, registry.PainsRanking, ids[2], true)
	require.NoError(t, err)

	res, err := f.engine.Approve(ctx, registry.PainsRanking, seg1, ids)
	require.NoError(t, err)
	require.Len(t, res.Records, 5)
	assert.True(t, res.Records[2].Top)
	assert.False(t, res.Records[0].Top)
}

func TestRankingTopMustBeSelected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.PainsRanking, seg1, "a", "b")
	_, err := f.drafts.SetTop(ctx, registry.PainsRanking, ids[0], true)
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, registry.PainsRanking, seg1, ids[1:])
	assert.True(t, ir.IsValidation(err), "the flagged row is not part of the selection")
}

func TestApproveAtVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.Pains, seg1, "a")
	_, err := f.drafts.BulkInsert(ctx, registry.Pains, seg1, []drafts.NewRow{{
		Ordinal: 1,
		Payload: ir.Obj(ir.O("name", ir.IRString("a2"))),
	}})
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, registry.Pains, seg1, ids, AtVersion(1))
	assert.True(t, ir.IsConflict(err))

	res, err := f.engine.Approve(ctx, registry.Pains, seg1, ids, AtVersion(2))
	require.NoError(t, err)
	assert.Equal(t, "a2", res.Records[0].Payload.Text("name"))
}

func TestApprovalIsPerScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.Pains, seg1, "a")
	f.insert(t, registry.Pains, seg2, "b")

	_, err := f.engine.Approve(ctx, registry.Pains, seg1, ids)
	require.NoError(t, err)

	ok, err := f.engine.IsApproved(ctx, registry.Pains, seg2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.insert(t, registry.Pains, seg1, "a", "b")

	_, err := f.engine.Approve(ctx, registry.Pains, seg1, ids)
	require.NoError(t, err)

	n, err := f.engine.Revoke(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := f.engine.IsApproved(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err = f.engine.Revoke(ctx, registry.Pains, seg1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	f := newFixture(t)
	calls := 0
	err := f.engine.retry(context.Background(), registry.Pains, seg1, func(int) error {
		calls++
		return ir.Validation("nope")
	})
	assert.True(t, ir.IsValidation(err))
	assert.Equal(t, 1, calls)
}

func TestRetryReRunsTransient(t *testing.T) {
	f := newFixture(t)
	calls := 0
	err := f.engine.retry(context.Background(), registry.Pains, seg1, func(attempt int) error {
		calls++
		if attempt < 2 {
			return ir.Transient("busy", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = f.engine.retry(context.Background(), registry.Pains, seg1, func(int) error {
		calls++
		return ir.Transient("busy", nil)
	})
	assert.True(t, ir.IsTransient(err))
	assert.Equal(t, 2, calls)
}

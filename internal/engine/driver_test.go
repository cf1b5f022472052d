package engine

import (
	"context"
	"runtime"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastiandunzer/dcr-log-filter/internal/analysis"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
	"github.com/sebastiandunzer/dcr-log-filter/internal/testutil"
)

// randomTraces builds n traces over the loan graph's activities plus an
// occasional unknown one.
func randomTraces(seed int64, n int) []ir.Trace {
	gen := testutil.TraceGenerator{
		Activities: []string{"Submit", "Review", "Approve", "Reject", "Submit", "Review", "Audit"},
		Roles:      []string{"", "Customer", "Clerk", "Manager"},
		MaxEvents:  6,
		Seed:       seed,
		Stamp:      true,
	}
	return gen.Traces(n)
}

func runReport(t *testing.T, traces []ir.Trace, opts ...DriverOption) (RunSummary, analysis.Report) {
	t.Helper()
	agg := analysis.NewAggregator()
	d := NewDriver(loanGraph(t), agg, opts...)
	summary, err := d.Run(context.Background(), traces)
	require.NoError(t, err)
	return summary, agg.Summarize()
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"sequential": Sequential,
		"SEQ":        Sequential,
		"parallel":   Parallel,
		"unbounded":  Unbounded,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("turbo")
	assert.Error(t, err)
	assert.Equal(t, "unbounded", Unbounded.String())
}

func TestNewDriverDefaults(t *testing.T) {
	d := NewDriver(loanGraph(t), analysis.NewAggregator())

	assert.Equal(t, FailFast, d.policy)
	assert.Equal(t, Parallel, d.mode)
	assert.Equal(t, runtime.GOMAXPROCS(0), d.Workers())

	assert.Equal(t, 1, NewDriver(nil, nil, WithMode(Sequential), WithWorkers(8)).Workers())
	assert.Equal(t, 0, NewDriver(nil, nil, WithMode(Unbounded)).Workers())
	assert.Equal(t, 3, NewDriver(nil, nil, WithWorkers(3)).Workers())
}

func TestRunSummary(t *testing.T) {
	traces := []ir.Trace{
		trace("a", "Submit", "Review", "Approve"),
		trace("b", "Submit"),
		trace("c", "Approve"),
	}

	summary, report := runReport(t, traces,
		WithPolicy(Exhaustive),
		WithMode(Parallel),
		WithWorkers(2),
		WithRunIDGenerator(NewFixedGenerator("run-1")),
	)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "loan", summary.Graph)
	assert.NotEmpty(t, summary.GraphHash)
	assert.Equal(t, "exhaustive", summary.Policy)
	assert.Equal(t, "parallel", summary.Mode)
	assert.Equal(t, 2, summary.Workers)
	assert.Equal(t, 3, summary.Traces)
	assert.Equal(t, 2, summary.Violating)

	assert.Equal(t, []string{"b", "c"}, report.ViolatingTraceIDs)
	assert.Equal(t, []string{"a"}, report.ConformantTraceIDs)
}

func TestParallelMatchesSequential(t *testing.T) {
	traces := randomTraces(7, 300)

	for _, policy := range []Policy{FailFast, Exhaustive} {
		t.Run(policy.String(), func(t *testing.T) {
			_, want := runReport(t, traces, WithPolicy(policy), WithMode(Sequential))
			require.Equal(t, 300, want.Total)

			for _, mode := range []Mode{Parallel, Unbounded} {
				for _, workers := range []int{1, 4, 16} {
					_, got := runReport(t, traces, WithPolicy(policy), WithMode(mode), WithWorkers(workers))
					assert.Equal(t, want, got, "mode=%s workers=%d", mode, workers)
				}
			}
		})
	}
}

func TestRunIsDeterministic(t *testing.T) {
	traces := randomTraces(99, 100)

	_, first := runReport(t, traces, WithPolicy(Exhaustive))
	for i := 0; i < 5; i++ {
		_, again := runReport(t, traces, WithPolicy(Exhaustive))
		assert.Equal(t, first, again)
	}
}

// countingSink records how many goroutines call Append at once.
type countingSink struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	n       int
}

func (s *countingSink) Append(ir.ViolationRecord) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.n++
	s.mu.Unlock()

	runtime.Gosched()

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

func TestSinkHasSingleWriter(t *testing.T) {
	sink := &countingSink{}
	d := NewDriver(loanGraph(t), sink, WithMode(Unbounded))

	_, err := d.Run(context.Background(), randomTraces(3, 200))
	require.NoError(t, err)
	assert.Equal(t, 200, sink.n)
	assert.Equal(t, 1, sink.maxSeen)
}

func TestRunStrictAbortsOnUnknownActivity(t *testing.T) {
	traces := []ir.Trace{
		trace("a", "Submit", "Review"),
		trace("b", "Submit", "Teleport"),
		trace("c", "Submit", "Review"),
	}

	for _, mode := range []Mode{Sequential, Parallel} {
		t.Run(mode.String(), func(t *testing.T) {
			d := NewDriver(loanGraph(t), analysis.NewAggregator(), WithMode(mode), WithStrictActivities())
			_, err := d.Run(context.Background(), traces)
			require.Error(t, err)
			assert.True(t, IsUnknownActivity(err))

			var re *RuntimeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, ErrCodeUnknownActivity, re.Code)
			assert.Equal(t, "b", re.TraceID)
			assert.Equal(t, "Teleport", re.Activity)
			assert.Equal(t, "1", re.Details["position"])
		})
	}
}

func TestRunRecordsUnknownActivityWhenLenient(t *testing.T) {
	_, report := runReport(t, []ir.Trace{trace("b", "Submit", "Teleport", "Review")}, WithPolicy(Exhaustive))

	assert.Equal(t, []string{"b"}, report.ViolatingTraceIDs)
	assert.Equal(t, []analysis.Ranking{{Key: "Teleport", Count: 1}}, report.Activities)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := analysis.NewAggregator()
	d := NewDriver(loanGraph(t), agg, WithMode(Sequential))
	summary, err := d.Run(ctx, randomTraces(1, 10))
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, summary.Traces, 10)
	assert.Len(t, agg.Records(), summary.Traces, "records are appended whole or not at all")
}

func TestRunCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &cancelAfter{n: 5, cancel: cancel}
	d := NewDriver(loanGraph(t), sink, WithMode(Sequential))
	summary, err := d.Run(ctx, randomTraces(5, 50))
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.GreaterOrEqual(t, summary.Traces, 5)
	assert.Less(t, summary.Traces, 50)
	assert.Equal(t, summary.Traces, sink.seen)
}

type cancelAfter struct {
	n      int
	seen   int
	cancel context.CancelFunc
}

func (c *cancelAfter) Append(ir.ViolationRecord) {
	c.seen++
	if c.seen == c.n {
		c.cancel()
	}
}

func TestRunEmptyLog(t *testing.T) {
	summary, report := runReport(t, nil)
	assert.Zero(t, summary.Traces)
	assert.Zero(t, report.Total)
}

func TestRunNilGraph(t *testing.T) {
	d := NewDriver(nil, analysis.NewAggregator())
	_, err := d.Run(context.Background(), []ir.Trace{trace("a", "X")})
	require.Error(t, err)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeNilGraph, re.Code)
}

func TestRunUpdatesMetrics(t *testing.T) {
	conformantBefore := promtest.ToFloat64(tracesChecked.WithLabelValues("exhaustive", "conformant"))
	violatingBefore := promtest.ToFloat64(tracesChecked.WithLabelValues("exhaustive", "violating"))
	pendingBefore := promtest.ToFloat64(violationsFound.WithLabelValues("pending_response"))

	runReport(t, []ir.Trace{
		trace("a", "Submit", "Review"),
		trace("b", "Submit"),
	}, WithPolicy(Exhaustive))

	assert.Equal(t, conformantBefore+1, promtest.ToFloat64(tracesChecked.WithLabelValues("exhaustive", "conformant")))
	assert.Equal(t, violatingBefore+1, promtest.ToFloat64(tracesChecked.WithLabelValues("exhaustive", "violating")))
	assert.Equal(t, pendingBefore+1, promtest.ToFloat64(violationsFound.WithLabelValues("pending_response")))
}

package experiment

import (
	"context"
	"testing"
	"time"

	"huddle/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memExpStore 内存版 Store，样本由测试直接注入。
type memExpStore struct {
	experiments map[string]Experiment
	samples     map[string]map[VariantID]Sample
}

func newMemExpStore() *memExpStore {
	return &memExpStore{
		experiments: make(map[string]Experiment),
		samples:     make(map[string]map[VariantID]Sample),
	}
}

func (s *memExpStore) InsertExperiment(_ context.Context, e Experiment) error {
	s.experiments[e.ID] = e
	return nil
}

func (s *memExpStore) GetExperiment(_ context.Context, id string) (Experiment, error) {
	e, ok := s.experiments[id]
	if !ok {
		return Experiment{}, ErrNotFound
	}
	return e, nil
}

func (s *memExpStore) ConcludeExperiment(_ context.Context, id string, winner VariantID, confidence float64, at time.Time) error {
	e, ok := s.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status == StatusConcluded {
		return ErrConcluded
	}
	e.Status = StatusConcluded
	e.Winner = winner
	e.WinnerConfidence = confidence
	e.ConcludedAt = at
	s.experiments[id] = e
	return nil
}

func (s *memExpStore) VariantSamples(_ context.Context, experimentID string) (map[VariantID]Sample, error) {
	if samples, ok := s.samples[experimentID]; ok {
		return samples, nil
	}
	return map[VariantID]Sample{VariantControl: {}, VariantTreatment: {}}, nil
}

// memLedgerStore 最小台账存储，ExecuteVariant 落账用。
type memLedgerStore struct {
	recs []ledger.Recommendation
}

func (s *memLedgerStore) InsertRecommendation(_ context.Context, rec ledger.Recommendation) error {
	s.recs = append(s.recs, rec)
	return nil
}
func (s *memLedgerStore) UpsertOutcome(context.Context, ledger.Outcome) error { return nil }
func (s *memLedgerStore) Tracked(context.Context, time.Time, time.Time) ([]ledger.Tracked, error) {
	return nil, nil
}
func (s *memLedgerStore) TrackedByScope(context.Context, int, string) ([]ledger.Tracked, error) {
	return nil, nil
}
func (s *memLedgerStore) Pending(context.Context, int) ([]ledger.Recommendation, error) {
	return nil, nil
}

func testSpec(allocation float64) Spec {
	return Spec{
		Name:       "顾问 vs 纯规则",
		Control:    Variant{Name: "rule", Strategy: "baseline"},
		Treatment:  Variant{Name: "advisor", Strategy: "advisor"},
		Allocation: allocation,
	}
}

func newTestCoordinator(store *memExpStore) (*Coordinator, *memLedgerStore) {
	ledStore := &memLedgerStore{}
	return NewCoordinator(store, ledger.New(ledStore), 0.90, 10), ledStore
}

func TestCreateValidation(t *testing.T) {
	c, _ := newTestCoordinator(newMemExpStore())
	ctx := context.Background()

	_, err := c.Create(ctx, testSpec(120))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = c.Create(ctx, testSpec(-1))
	assert.ErrorIs(t, err, ErrValidation)

	spec := testSpec(50)
	spec.Name = " "
	_, err = c.Create(ctx, spec)
	assert.ErrorIs(t, err, ErrValidation)

	spec = testSpec(50)
	spec.Control.Strategy = ""
	_, err = c.Create(ctx, spec)
	assert.ErrorIs(t, err, ErrValidation)

	id, err := c.Create(ctx, testSpec(50))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSelectVariantConvergesToAllocation(t *testing.T) {
	store := newMemExpStore()
	c, _ := newTestCoordinator(store)
	ctx := context.Background()

	id, err := c.Create(ctx, testSpec(50))
	require.NoError(t, err)

	treatment := 0
	for i := 0; i < 20; i++ {
		v, err := c.SelectVariant(ctx, id)
		require.NoError(t, err)
		if v.ID == VariantTreatment {
			treatment++
		}
	}
	// 公平的 50/50 在 20 次抽样下应落在统计合理带内。
	assert.GreaterOrEqual(t, treatment, 3)
	assert.LessOrEqual(t, treatment, 17)

	id2, err := c.Create(ctx, testSpec(0))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		v, err := c.SelectVariant(ctx, id2)
		require.NoError(t, err)
		assert.Equal(t, VariantControl, v.ID)
	}
}

func TestExecuteVariantTagsRecommendation(t *testing.T) {
	store := newMemExpStore()
	c, ledStore := newTestCoordinator(store)
	ctx := context.Background()

	id, err := c.Create(ctx, testSpec(100))
	require.NoError(t, err)
	v, err := c.SelectVariant(ctx, id)
	require.NoError(t, err)
	require.Equal(t, VariantTreatment, v.ID)

	res, err := c.ExecuteVariant(ctx, id, v, func(ctx context.Context, v Variant) (ledger.Recommendation, error) {
		return ledger.Recommendation{Kind: ledger.KindLineup, League: "main", Confidence: 60}, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RecommendationID)

	require.Len(t, ledStore.recs, 1)
	assert.Equal(t, id, ledStore.recs[0].ExperimentID)
	assert.Equal(t, string(VariantTreatment), ledStore.recs[0].Variant)
}

func TestAnalyzeInsufficientSample(t *testing.T) {
	store := newMemExpStore()
	c, _ := newTestCoordinator(store)
	ctx := context.Background()

	id, err := c.Create(ctx, testSpec(50))
	require.NoError(t, err)

	// 3/3 对 0/3，差距再大也不许在 min=10 之下宣告胜者。
	store.samples[id] = map[VariantID]Sample{
		VariantControl:   {Total: 3, Successes: 0},
		VariantTreatment: {Total: 3, Successes: 3},
	}
	a, err := c.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, a.Winner)
	assert.False(t, a.Concluded)
	assert.Contains(t, a.Note, "insufficient data")
	assert.InDelta(t, 1.0, a.RateDifference, 1e-9)
}

func TestAnalyzeDeclaresWinnerAndConcludes(t *testing.T) {
	store := newMemExpStore()
	c, _ := newTestCoordinator(store)
	ctx := context.Background()

	id, err := c.Create(ctx, testSpec(50))
	require.NoError(t, err)

	store.samples[id] = map[VariantID]Sample{
		VariantControl:   {Total: 40, Successes: 12},
		VariantTreatment: {Total: 40, Successes: 30},
	}
	a, err := c.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, VariantTreatment, a.Winner)
	assert.True(t, a.Concluded)
	assert.GreaterOrEqual(t, a.ConfidenceLevel, 0.90)

	// 结束后只读。
	_, err = c.SelectVariant(ctx, id)
	assert.ErrorIs(t, err, ErrConcluded)
	_, err = c.ExecuteVariant(ctx, id, Variant{ID: VariantControl}, func(context.Context, Variant) (ledger.Recommendation, error) {
		return ledger.Recommendation{}, nil
	})
	assert.ErrorIs(t, err, ErrConcluded)
}

func TestAnalyzeUnknownExperiment(t *testing.T) {
	c, _ := newTestCoordinator(newMemExpStore())
	_, err := c.Analyze(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTwoProportionZDegenerateInputs(t *testing.T) {
	assert.Zero(t, twoProportionZ(Sample{}, Sample{Total: 5, Successes: 2}))
	// 两组全成功时合并方差为 0，返回 0 而不是 NaN。
	assert.Zero(t, twoProportionZ(Sample{Total: 5, Successes: 5}, Sample{Total: 5, Successes: 5}))
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finstory/pkg/core/config"
	"finstory/pkg/core/pipeline"
	"finstory/pkg/models"
)

// --- Mocks ---

type MockRunner struct {
	RunFunc func(ctx context.Context, series models.PeriodSeries, persona models.Persona) (*pipeline.Result, error)
	Calls   int
}

func (m *MockRunner) Run(ctx context.Context, series models.PeriodSeries, persona models.Persona) (*pipeline.Result, error) {
	m.Calls++
	if m.RunFunc != nil {
		return m.RunFunc(ctx, series, persona)
	}
	return &pipeline.Result{Status: pipeline.StatusSuccess, State: pipeline.StateDone, Persona: persona, Recommendations: []string{"hold"}}, nil
}

type MockCache struct {
	GetFunc func(ctx context.Context, fingerprint string) (*Entry, error)
	PutFunc func(ctx context.Context, entry *Entry) error
}

func (m *MockCache) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	return m.GetFunc(ctx, fingerprint)
}

func (m *MockCache) Put(ctx context.Context, entry *Entry) error {
	return m.PutFunc(ctx, entry)
}

type MockRow struct {
	ScanFunc func(dest ...interface{}) error
}

func (m *MockRow) Scan(dest ...interface{}) error {
	return m.ScanFunc(dest...)
}

type MockDB struct {
	ExecFunc     func(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (m *MockDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return m.ExecFunc(ctx, sql, args...)
}

func (m *MockDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return m.QueryRowFunc(ctx, sql, args...)
}

// --- Fixtures ---

func series(t *testing.T, revenue float64) models.PeriodSeries {
	t.Helper()
	s, err := models.NewPeriodSeries([]models.Period{
		{Label: "FY2023", Values: map[models.Field]float64{models.Revenue: 900, models.NetIncome: 90}},
		{Label: "FY2024", Values: map[models.Field]float64{models.Revenue: revenue, models.NetIncome: 100}},
	})
	require.NoError(t, err)
	return s
}

// --- Fingerprint ---

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(series(t, 1000), models.PersonaCFO)
	require.NoError(t, err)
	again, err := Fingerprint(series(t, 1000), models.PersonaCFO)
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Len(t, a, 64)

	other, _ := Fingerprint(series(t, 1001), models.PersonaCFO)
	assert.NotEqual(t, a, other, "values change the fingerprint")

	board, _ := Fingerprint(series(t, 1000), models.PersonaBoard)
	assert.NotEqual(t, a, board, "persona changes the fingerprint")

	unknown, _ := Fingerprint(series(t, 1000), models.Persona("Auditor"))
	assert.Equal(t, a, unknown, "unknown personas resolve to the fallback")
}

// --- FileCache ---

func TestFileCache_RoundTrip(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := c.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got, "miss")

	stored := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, c.Put(ctx, &Entry{
		Fingerprint: "abc123",
		Persona:     models.PersonaInvestor,
		StoredAt:    stored,
		Result:      &pipeline.Result{Status: pipeline.StatusSuccess, State: pipeline.StateDone, Recommendations: []string{"a", "b"}},
	}))

	got, err = c.Get(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.PersonaInvestor, got.Persona)
	assert.True(t, stored.Equal(got.StoredAt))
	assert.Equal(t, []string{"a", "b"}, got.Result.Recommendations)
}

func TestFileCache_RejectsPathFingerprints(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, c.Put(context.Background(), &Entry{Fingerprint: ""}))
}

// --- CachedRunner ---

func TestCachedRunner_HitAfterMiss(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	next := &MockRunner{}
	r := NewCachedRunner(next, fc, time.Hour, zerolog.Nop())

	first, err := r.Run(context.Background(), series(t, 1000), models.PersonaCFO)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), series(t, 1000), models.PersonaCFO)
	require.NoError(t, err)

	assert.Equal(t, 1, next.Calls)
	assert.Equal(t, first.Recommendations, second.Recommendations)

	_, err = r.Run(context.Background(), series(t, 1000), models.PersonaBoard)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Calls)
}

func TestCachedRunner_StoresOnlyCleanResults(t *testing.T) {
	tests := []struct {
		name   string
		result *pipeline.Result
		err    error
	}{
		{"partial", &pipeline.Result{Status: pipeline.StatusPartial}, nil},
		{"degraded", &pipeline.Result{Status: pipeline.StatusSuccess, Degraded: true}, nil},
		{"failed", &pipeline.Result{Status: pipeline.StatusError}, errors.New("insufficient data")},
		{"cancelled", nil, pipeline.ErrCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			puts := 0
			cache := &MockCache{
				GetFunc: func(context.Context, string) (*Entry, error) { return nil, nil },
				PutFunc: func(context.Context, *Entry) error { puts++; return nil },
			}
			next := &MockRunner{RunFunc: func(context.Context, models.PeriodSeries, models.Persona) (*pipeline.Result, error) {
				return tt.result, tt.err
			}}

			res, err := NewCachedRunner(next, cache, 0, zerolog.Nop()).Run(context.Background(), series(t, 1000), models.PersonaCFO)
			assert.Equal(t, tt.result, res)
			assert.Equal(t, tt.err, err)
			assert.Zero(t, puts)
		})
	}
}

func TestCachedRunner_ExpiredEntryIsRecomputed(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cache := &MockCache{
		GetFunc: func(_ context.Context, fp string) (*Entry, error) {
			return &Entry{Fingerprint: fp, StoredAt: now.Add(-2 * time.Hour), Result: &pipeline.Result{Status: pipeline.StatusSuccess}}, nil
		},
		PutFunc: func(context.Context, *Entry) error { return nil },
	}
	next := &MockRunner{}
	r := NewCachedRunner(next, cache, time.Hour, zerolog.Nop())
	r.now = func() time.Time { return now }

	res, err := r.Run(context.Background(), series(t, 1000), models.PersonaCFO)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Calls)
	assert.Equal(t, []string{"hold"}, res.Recommendations)
}

func TestCachedRunner_CacheErrorsDoNotFailRuns(t *testing.T) {
	cache := &MockCache{
		GetFunc: func(context.Context, string) (*Entry, error) { return nil, errors.New("disk full") },
		PutFunc: func(context.Context, *Entry) error { return errors.New("disk full") },
	}
	res, err := NewCachedRunner(&MockRunner{}, cache, 0, zerolog.Nop()).Run(context.Background(), series(t, 1000), models.PersonaCFO)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSuccess, res.Status)
}

// --- PostgresCache ---

func TestPostgresCache_Put(t *testing.T) {
	var gotSQL string
	var gotArgs []interface{}
	db := &MockDB{ExecFunc: func(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
		gotSQL, gotArgs = sql, args
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}}

	err := NewPostgresCache(db).Put(context.Background(), &Entry{
		Fingerprint: "fp1",
		Persona:     models.PersonaBoard,
		Result:      &pipeline.Result{Status: pipeline.StatusSuccess},
	})
	require.NoError(t, err)

	assert.Contains(t, gotSQL, "ON CONFLICT (fingerprint)")
	require.Len(t, gotArgs, 4)
	assert.Equal(t, "fp1", gotArgs[0])
	assert.Equal(t, "Board", gotArgs[1])
	assert.Contains(t, string(gotArgs[2].([]byte)), `"status":"success"`)
	assert.False(t, gotArgs[3].(time.Time).IsZero())
}

func TestPostgresCache_Get(t *testing.T) {
	stored := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(&pipeline.Result{Status: pipeline.StatusSuccess, Recommendations: []string{"x"}})
	require.NoError(t, err)

	db := &MockDB{QueryRowFunc: func(_ context.Context, _ string, args ...interface{}) pgx.Row {
		return &MockRow{ScanFunc: func(dest ...interface{}) error {
			if args[0] != "fp1" {
				return pgx.ErrNoRows
			}
			*dest[0].(*string) = "Investor"
			*dest[1].(*[]byte) = payload
			*dest[2].(*time.Time) = stored
			return nil
		}}
	}}
	c := NewPostgresCache(db)

	got, err := c.Get(context.Background(), "fp1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.PersonaInvestor, got.Persona)
	assert.Equal(t, stored, got.StoredAt)
	assert.Equal(t, []string{"x"}, got.Result.Recommendations)

	miss, err := c.Get(context.Background(), "other")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestPostgresCache_GetError(t *testing.T) {
	db := &MockDB{QueryRowFunc: func(context.Context, string, ...interface{}) pgx.Row {
		return &MockRow{ScanFunc: func(...interface{}) error { return errors.New("connection reset") }}
	}}
	_, err := NewPostgresCache(db).Get(context.Background(), "fp1")
	assert.ErrorContains(t, err, "connection reset")
}

func TestEnsureSchema(t *testing.T) {
	db := &MockDB{ExecFunc: func(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS analysis_results")
		return pgconn.CommandTag{}, nil
	}}
	require.NoError(t, EnsureSchema(context.Background(), db))

	failing := &MockDB{ExecFunc: func(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}}
	assert.ErrorContains(t, EnsureSchema(context.Background(), failing), "permission denied")
}

func TestOpen(t *testing.T) {
	c, closeFn, err := Open(context.Background(), config.CacheConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
	closeFn()

	dir := t.TempDir()
	c, closeFn, err = Open(context.Background(), config.CacheConfig{Dir: dir})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &FileCache{}, c)

	_, _, err = Open(context.Background(), config.CacheConfig{DatabaseURL: "not a url ::"})
	assert.Error(t, err)
}

package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictionclub/internal/gateway"
	"predictionclub/internal/metrics"
	"predictionclub/internal/storage"
	"predictionclub/internal/store"
)

func setupDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:", "test-secret")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Seed(context.Background())
	require.NoError(t, err)
	return db
}

func sqliteFactory(db *storage.DB, calls *int) GatewayFactory {
	return func(key string) (gateway.Gateway, error) {
		*calls++
		return db.NewGateway(), nil
	}
}

func TestGetCreatesOnce(t *testing.T) {
	db := setupDB(t)
	m := metrics.New()
	calls := 0
	r := New(context.Background(), sqliteFactory(db, &calls), WithMetrics(m))
	defer r.Close()

	a, err := r.Get("web:a")
	require.NoError(t, err)
	again, err := r.Get("web:a")
	require.NoError(t, err)
	b, err := r.Get("web:b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sessions))

	// started stores have already loaded the seeded topics
	assert.Len(t, a.Snapshot().Topics, 4)

	peeked, ok := r.Peek("web:a")
	assert.True(t, ok)
	assert.Same(t, a, peeked)
	_, ok = r.Peek("web:none")
	assert.False(t, ok)
}

func TestGetKeepsSessionState(t *testing.T) {
	db := setupDB(t)
	calls := 0
	r := New(context.Background(), sqliteFactory(db, &calls))
	defer r.Close()

	s, err := r.Get("tg:7")
	require.NoError(t, err)
	require.NoError(t, s.Login("casey@school.edu"))

	for i := 0; i < 5; i++ {
		again, err := r.Get("tg:7")
		require.NoError(t, err)
		require.Same(t, s, again)
		require.NotNil(t, again.Snapshot().User)
		assert.Equal(t, "casey", again.Snapshot().User.Name)
	}
	assert.Equal(t, 1, calls)
	assert.False(t, s.Closed())
	assert.Equal(t, 1, r.Len())
}

func TestGetFactoryError(t *testing.T) {
	fail := true
	r := New(context.Background(), func(key string) (gateway.Gateway, error) {
		if fail {
			return nil, errors.New("no backend")
		}
		return setupDB(t).NewGateway(), nil
	})
	defer r.Close()

	_, err := r.Get("web:a")
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())

	fail = false
	s, err := r.Get("web:a")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	db := setupDB(t)
	clock := clockwork.NewFakeClock()
	calls := 0
	r := New(context.Background(), sqliteFactory(db, &calls), WithClock(clock))
	defer r.Close()

	old, err := r.Get("web:old")
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	fresh, err := r.Get("web:fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sweep(5*time.Minute))
	assert.True(t, old.Closed())
	assert.False(t, fresh.Closed())
	assert.Equal(t, 1, r.Len())

	_, ok := r.Peek("web:old")
	assert.False(t, ok)

	// a returning client gets a new store
	back, err := r.Get("web:old")
	require.NoError(t, err)
	assert.NotSame(t, old, back)
}

func TestRefreshAll(t *testing.T) {
	db := setupDB(t)
	calls := 0
	r := New(context.Background(), sqliteFactory(db, &calls))
	defer r.Close()

	for _, key := range []string{"web:a", "web:b", "tg:1"} {
		_, err := r.Get(key)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, r.RefreshAll(context.Background()))
}

func TestSessionEndToEnd(t *testing.T) {
	db := setupDB(t)
	calls := 0
	r := New(context.Background(), sqliteFactory(db, &calls),
		WithStoreOptions(store.WithClock(clockwork.NewFakeClock())))
	defer r.Close()

	s, err := r.Get("web:student")
	require.NoError(t, err)
	require.NoError(t, s.SignUp(context.Background(), "casey@school.edu", "hunter22"))

	st := s.Snapshot()
	require.NotNil(t, st.User)
	assert.Equal(t, "casey", st.User.Name)
	assert.Equal(t, int64(500), st.User.Points)

	require.NoError(t, s.PlaceWager(context.Background(), "t2", "Yes", 120))
	assert.Equal(t, int64(380), s.Snapshot().User.Points)

	// the backend agrees after a refresh
	s.Refresh(context.Background())
	st = s.Snapshot()
	assert.Equal(t, int64(380), st.User.Points)
	require.Len(t, st.Predictions, 1)
	assert.Equal(t, int64(180), st.Predictions[0].PotentialWin)
	for _, tp := range st.Topics {
		if tp.ID == "t2" {
			assert.Equal(t, int64(28120), tp.PoolSize)
			assert.Equal(t, int64(857), tp.Participants)
		}
	}

	s.Logout(context.Background())
	assert.Nil(t, s.Snapshot().User)
}

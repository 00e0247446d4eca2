package panel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope = "sess-1"

type call struct {
	endpoint string
	body     []byte
	busy     bool
}

// fakeBackend records every call and reports the lock state it observed
// while the call was in flight.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []call
	locker  Locker
	panelID string
	results []json.RawMessage
	errs    []error
}

func (f *fakeBackend) Post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	busy, _ := f.locker.Busy(ctx, testScope, f.panelID)
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.calls)
	f.calls = append(f.calls, call{endpoint: endpoint, body: append([]byte(nil), body...), busy: busy})
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return json.RawMessage(`{"ok":true}`), nil
}

type fakeQueue struct {
	endpoint string
	err      error
}

func (q *fakeQueue) EnqueueTrigger(_ context.Context, endpoint string, _ []byte) (string, error) {
	q.endpoint = endpoint
	if q.err != nil {
		return "", q.err
	}
	return "task-1", nil
}

type recorded struct {
	panel, outcome string
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recorded
}

func (r *fakeRecorder) ObserveSubmission(panelID, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recorded{panelID, outcome})
}

type harness struct {
	svc      *Service
	backend  *fakeBackend
	locker   *RedisLocker
	store    *RedisStore
	recorder *fakeRecorder
	redis    *miniredis.Miniredis
}

func newHarness(t *testing.T, panelID string, queue Enqueuer) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 25*time.Second)
	store := NewRedisStore(client, time.Hour)
	backend := &fakeBackend{locker: locker, panelID: panelID}
	recorder := &fakeRecorder{}
	svc := NewService(ServiceConfig{
		Catalog:    DefaultCatalog(),
		Dispatcher: backend,
		Store:      store,
		Locker:     locker,
		Queue:      queue,
		Recorder:   recorder,
		Now:        func() time.Time { return testNow },
	})
	return &harness{svc: svc, backend: backend, locker: locker, store: store, recorder: recorder, redis: mr}
}

func scenarioA() Values {
	return Values{
		"date":         "2025-01-20",
		"time":         "21:15",
		"period":       "2025001",
		"calendar":     CalendarSolar,
		"predict_time": "2025-01-20T21:30",
		"mode":         ModeFusionPredict,
	}
}

func TestSubmitDispatchesOnceWhileBusy(t *testing.T) {
	h := newHarness(t, IDLottery, nil)
	h.backend.results = []json.RawMessage{json.RawMessage(`{"red":[1,2,3,4,5,6],"blue":7}`)}

	state, err := h.svc.Submit(context.Background(), testScope, IDLottery, scenarioA())
	require.NoError(t, err)

	require.Len(t, h.backend.calls, 1)
	got := h.backend.calls[0]
	assert.Equal(t, "/api/ssq_predict", got.endpoint)
	assert.True(t, got.busy, "lock must be held during the call")
	assert.Equal(t,
		`{"date":"2025-01-20","time":"21:15","period":"2025001","calendar":"阳历","predict_time":"2025-01-20 21:30","mode":"AI融合预测"}`,
		string(got.body))

	busy, err := h.locker.Busy(context.Background(), testScope, IDLottery)
	require.NoError(t, err)
	assert.False(t, busy)

	assert.Equal(t, StatusSucceeded, state.Status)
	assert.JSONEq(t, `{"red":[1,2,3,4,5,6],"blue":7}`, string(state.Result))
	assert.NotEmpty(t, state.SubmissionID)

	stored, err := h.store.Load(context.Background(), testScope, IDLottery)
	require.NoError(t, err)
	assert.Equal(t, state.Result, stored.Result)
	assert.Equal(t, "2025-01-20 21:30", stored.Values.Get("predict_time"))
	assert.Equal(t, []recorded{{IDLottery, OutcomeSuccess}}, h.recorder.seen)
}

func TestSubmitIdenticalValuesTwiceSendsIdenticalBodies(t *testing.T) {
	h := newHarness(t, IDLottery, nil)

	_, err := h.svc.Submit(context.Background(), testScope, IDLottery, scenarioA())
	require.NoError(t, err)
	_, err = h.svc.Submit(context.Background(), testScope, IDLottery, scenarioA())
	require.NoError(t, err)

	require.Len(t, h.backend.calls, 2)
	assert.Equal(t, h.backend.calls[0].body, h.backend.calls[1].body)
}

func TestSubmitWithEmptySurnameMakesNoCall(t *testing.T) {
	h := newHarness(t, IDNaming, nil)

	_, err := h.svc.Submit(context.Background(), testScope, IDNaming, Values{
		"gender":   GenderFemale,
		"calendar": CalendarSolar,
		"date":     "2025-01-20",
		"time":     "21:15",
		"surname":  "   ",
	})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{"surname": CodeRequired}, verr.Fields)
	assert.Empty(t, h.backend.calls)
	assert.False(t, h.redis.Exists("panel:"+testScope+":"+IDNaming+":lock"))
	assert.Equal(t, []recorded{{IDNaming, OutcomeValidation}}, h.recorder.seen)
}

func TestSubmitEveryRequiredFieldShortCircuits(t *testing.T) {
	for _, def := range DefaultCatalog().InGroup(GroupMain) {
		h := newHarness(t, def.ID, nil)
		values := def.Defaults(testNow)
		values["surname"] = "王"
		for _, field := range def.Fields {
			if !field.Required {
				continue
			}
			raw := values.Clone()
			raw[field.Name] = ""
			_, err := h.svc.Submit(context.Background(), testScope, def.ID, raw)
			require.ErrorIs(t, err, ErrValidation, "%s.%s", def.ID, field.Name)
		}
		assert.Empty(t, h.backend.calls, def.ID)
	}
}

func TestSubmitFailureKeepsPriorResult(t *testing.T) {
	h := newHarness(t, IDDivination, nil)
	h.backend.results = []json.RawMessage{json.RawMessage(`{"answer":"吉"}`)}
	h.backend.errs = []error{nil, errors.New("backend: status 500")}

	values := Values{"event": "出行", "calendar": CalendarSolar, "date": "2025-01-20", "time": "09:00", "mode": ModeFusion}
	_, err := h.svc.Submit(context.Background(), testScope, IDDivination, values)
	require.NoError(t, err)

	state, err := h.svc.Submit(context.Background(), testScope, IDDivination, values)
	require.ErrorIs(t, err, ErrDispatch)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, OutcomeFailure, state.LastError)
	assert.JSONEq(t, `{"answer":"吉"}`, string(state.Result))

	busy, err := h.locker.Busy(context.Background(), testScope, IDDivination)
	require.NoError(t, err)
	assert.False(t, busy, "lock must be released after a failure")

	v, err := h.svc.View(context.Background(), testScope, IDDivination)
	require.NoError(t, err)
	assert.True(t, v.State.HasResult())
	assert.False(t, v.Busy)
	assert.Equal(t, "出行", v.Values.Get("event"))
}

func TestSubmitRefusedWhileBusy(t *testing.T) {
	h := newHarness(t, IDStock, nil)

	release, err := h.locker.Acquire(context.Background(), testScope, IDStock)
	require.NoError(t, err)

	_, err = h.svc.Submit(context.Background(), testScope, IDStock, Values{"symbol": "600519"})
	require.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, h.backend.calls)

	require.NoError(t, release(context.Background()))
	_, err = h.svc.Submit(context.Background(), testScope, IDStock, Values{"symbol": "600519"})
	require.NoError(t, err)
	assert.Len(t, h.backend.calls, 1)
}

func TestLockExpiresAfterTTL(t *testing.T) {
	h := newHarness(t, IDWeather, nil)

	_, err := h.locker.Acquire(context.Background(), testScope, IDWeather)
	require.NoError(t, err)
	h.redis.FastForward(26 * time.Second)

	busy, err := h.locker.Busy(context.Background(), testScope, IDWeather)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestStaleReleaseKeepsNewerLock(t *testing.T) {
	h := newHarness(t, IDWeather, nil)

	staleRelease, err := h.locker.Acquire(context.Background(), testScope, IDWeather)
	require.NoError(t, err)
	h.redis.FastForward(26 * time.Second)

	_, err = h.locker.Acquire(context.Background(), testScope, IDWeather)
	require.NoError(t, err)
	require.NoError(t, staleRelease(context.Background()))

	busy, err := h.locker.Busy(context.Background(), testScope, IDWeather)
	require.NoError(t, err)
	assert.True(t, busy)
}

func TestOptimizeGoesThroughQueueWhenConfigured(t *testing.T) {
	queue := &fakeQueue{}
	h := newHarness(t, IDOptimize, queue)

	state, err := h.svc.Submit(context.Background(), testScope, IDOptimize, nil)
	require.NoError(t, err)
	assert.Empty(t, h.backend.calls)
	assert.Equal(t, "/api/optimize_models", queue.endpoint)
	assert.JSONEq(t, `{"status":"scheduled","task_id":"task-1"}`, string(state.Result))
	assert.Equal(t, []recorded{{IDOptimize, OutcomeQueued}}, h.recorder.seen)
}

func TestOptimizeInlineSendsNoBody(t *testing.T) {
	h := newHarness(t, IDOptimize, nil)

	_, err := h.svc.Submit(context.Background(), testScope, IDOptimize, nil)
	require.NoError(t, err)
	require.Len(t, h.backend.calls, 1)
	assert.Empty(t, h.backend.calls[0].body)
}

func TestUnknownPanel(t *testing.T) {
	h := newHarness(t, "x", nil)
	_, err := h.svc.Submit(context.Background(), testScope, "x", nil)
	assert.ErrorIs(t, err, ErrUnknownPanel)
	_, err = h.svc.View(context.Background(), testScope, "x")
	assert.ErrorIs(t, err, ErrUnknownPanel)
}

func TestViewDefaultsBeforeFirstSubmission(t *testing.T) {
	h := newHarness(t, IDLottery, nil)

	v, err := h.svc.View(context.Background(), testScope, IDLottery)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, v.State.Status)
	assert.False(t, v.State.HasResult())
	assert.Equal(t, "2025001", v.Values.Get("period"))
}

func TestStateIsScopedPerSession(t *testing.T) {
	h := newHarness(t, IDStock, nil)

	_, err := h.svc.Submit(context.Background(), testScope, IDStock, Values{"symbol": "600519"})
	require.NoError(t, err)

	other, err := h.svc.View(context.Background(), "sess-2", IDStock)
	require.NoError(t, err)
	assert.False(t, other.State.HasResult())
}

package panelhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuanji-ai/xuanji-web/internal/backend"
	"github.com/xuanji-ai/xuanji-web/internal/i18n"
	"github.com/xuanji-ai/xuanji-web/internal/panel"
	"github.com/xuanji-ai/xuanji-web/internal/shared"
	"github.com/xuanji-ai/xuanji-web/internal/view"
	"github.com/xuanji-ai/xuanji-web/web"
)

const testSession = "sess-test"

type fixture struct {
	router   http.Handler
	handler  *Handler
	sessions *shared.SessionManager
	service  *panel.Service
	locker   *panel.RedisLocker
	calls    atomic.Int32
	status   atomic.Int32
	response atomic.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.status.Store(http.StatusOK)
	f.response.Store(`{"answer":"吉"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		w.WriteHeader(int(f.status.Load()))
		_, _ = w.Write([]byte(f.response.Load().(string)))
	}))
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f.locker = panel.NewRedisLocker(client, 25*time.Second)
	f.service = panel.NewService(panel.ServiceConfig{
		Catalog:    panel.DefaultCatalog(),
		Dispatcher: backend.NewClient(srv.URL, time.Second),
		Store:      panel.NewRedisStore(client, time.Hour),
		Locker:     f.locker,
	})

	templates, err := view.NewEngine()
	require.NoError(t, err)
	bundle, err := i18n.Load(web.Messages, "i18n/*.yaml", "zh-Hans")
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "xuanji_session", "secret", time.Hour, false)
	f.sessions = sessions

	f.handler = NewHandler(nil, f.service, templates, shared.NewCSRFManager("csrf-secret"))
	r := chi.NewRouter()
	r.Use(bundle.Middleware, sessionMiddleware(t, sessions))
	r.Route("/panels", f.handler.MountRoutes)
	f.router = r
	return f
}

func sessionMiddleware(t *testing.T, sessions *shared.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
			require.NoError(t, sessions.Commit(context.Background(), httptest.NewRecorder(), sess))
		})
	}
}

func (f *fixture) do(method, target string, form url.Values, jsonClient bool) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if jsonClient {
		req.Header.Set("Accept", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: "xuanji_session", Value: f.sessions.CookieValue(testSession)})
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func lotteryForm() url.Values {
	return url.Values{
		"date":         {"2025-01-20"},
		"time":         {"21:15"},
		"period":       {"2025001"},
		"calendar":     {panel.CalendarSolar},
		"predict_time": {"2025-01-20T21:30"},
		"mode":         {panel.ModeFusionPredict},
	}
}

func divinationForm() url.Values {
	return url.Values{
		"event":    {"出行"},
		"calendar": {panel.CalendarSolar},
		"date":     {"2025-01-20"},
		"time":     {"09:00"},
		"mode":     {panel.ModeFusion},
	}
}

func TestShowRendersFormWithoutResult(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/panels/ssq", nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "双色球预测")
	assert.Contains(t, body, `action="/panels/ssq"`)
	assert.Contains(t, body, `name="predict_time"`)
	assert.Contains(t, body, `type="datetime-local"`)
	assert.Contains(t, body, `aria-current="page"`)
	assert.NotContains(t, body, `class="result"`)
	assert.Zero(t, f.calls.Load())
}

func TestShowHonoursLanguage(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/panels/bazi?lang=en", nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Birth chart")
	assert.Equal(t, "en", rr.Header().Get("Content-Language"))
}

func TestSubmitRedirectsAndRendersResult(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/panels/ssq", lotteryForm(), false)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/panels/ssq", rr.Header().Get("Location"))
	assert.EqualValues(t, 1, f.calls.Load())

	page := f.do(http.MethodGet, "/panels/ssq", nil, false)
	require.Equal(t, http.StatusOK, page.Code)
	body := page.Body.String()
	assert.Contains(t, body, `class="result"`)
	assert.Contains(t, body, "吉")
	assert.Contains(t, body, `value="2025-01-20T21:30"`)
}

func TestSubmitJSONReturnsResult(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/panels/ssq", lotteryForm(), true)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(panel.StatusSucceeded), resp.Status)
	assert.JSONEq(t, `{"answer":"吉"}`, string(resp.Result))
}

func TestSubmitWithEmptySurnameRerendersWithoutCall(t *testing.T) {
	f := newFixture(t)
	form := url.Values{
		"gender":   {panel.GenderMale},
		"calendar": {panel.CalendarSolar},
		"date":     {"2025-01-20"},
		"time":     {"21:15"},
		"surname":  {""},
	}

	rr := f.do(http.MethodPost, "/panels/naming", form, false)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "此项为必填项")
	assert.Contains(t, body, "field-invalid")
	assert.Contains(t, body, `value="2025-01-20"`)
	assert.Zero(t, f.calls.Load())
}

func TestSubmitValidationProblemForJSONClients(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/panels/naming?lang=en", url.Values{"gender": {panel.GenderMale}}, true)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var problem struct {
		Status int               `json:"status"`
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Contains(t, problem.Errors, "surname")
	assert.Contains(t, problem.Errors, "date")
	assert.NotContains(t, problem.Errors, "gender")
	assert.Zero(t, f.calls.Load())
}

func TestBackendFailureShowsToastAndKeepsResult(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusSeeOther, f.do(http.MethodPost, "/panels/divination", divinationForm(), false).Code)

	f.status.Store(http.StatusInternalServerError)
	f.response.Store(`{"detail":"boom"}`)
	rr := f.do(http.MethodPost, "/panels/divination", divinationForm(), false)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.EqualValues(t, 2, f.calls.Load())

	page := f.do(http.MethodGet, "/panels/divination", nil, false)
	body := page.Body.String()
	assert.Equal(t, 1, strings.Count(body, "占卜失败，请检查输入或稍后重试"))
	assert.Contains(t, body, "toast-error")
	assert.Contains(t, body, "吉", "prior result must stay visible")
	assert.NotContains(t, body, "boom")
	assert.NotContains(t, body, " disabled", "busy flag must be cleared")

	again := f.do(http.MethodGet, "/panels/divination", nil, false)
	assert.NotContains(t, again.Body.String(), "toast-error", "toast is shown once")
}

func TestBackendFailureForJSONClients(t *testing.T) {
	f := newFixture(t)
	f.status.Store(http.StatusInternalServerError)

	rr := f.do(http.MethodPost, "/panels/divination", divinationForm(), true)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "占卜失败")
}

func TestBusyPanelRefusesSubmission(t *testing.T) {
	f := newFixture(t)
	release, err := f.locker.Acquire(context.Background(), testSession, panel.IDLottery)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	rr := f.do(http.MethodPost, "/panels/ssq", lotteryForm(), true)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(http.MethodPost, "/panels/ssq", lotteryForm(), false)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Zero(t, f.calls.Load())

	page := f.do(http.MethodGet, "/panels/ssq", nil, false)
	body := page.Body.String()
	assert.Contains(t, body, "toast-warning")
	assert.Contains(t, body, " disabled")
}

func TestUnknownPanelIsNotFound(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/panels/tarot", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/panels/tarot", url.Values{}, true).Code)
}

func TestDashboardPanelsRedirectToDashboard(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/panels/stock", nil, false)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))

	rr = f.do(http.MethodPost, "/panels/stock", url.Values{"symbol": {"600519"}}, false)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
}

type capturePage struct {
	status int
	form   *FormView
}

func (c *capturePage) RenderPage(w http.ResponseWriter, r *http.Request, status int, override *FormView) {
	c.status = status
	c.form = override
	w.WriteHeader(status)
}

func TestHostedGroupRendersValidationErrors(t *testing.T) {
	f := newFixture(t)
	page := &capturePage{}
	f.handler.HostGroup(panel.GroupDashboard, page)

	rr := f.do(http.MethodPost, "/panels/weather", url.Values{"location": {" "}}, false)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, page.form)
	assert.Equal(t, panel.IDWeather, page.form.ID)
	require.Len(t, page.form.Fields, 1)
	assert.Equal(t, "此项为必填项", page.form.Fields[0].Error)
	assert.Zero(t, f.calls.Load())
}

func TestShowJSONState(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/panels/stock", url.Values{"symbol": {"600519"}}, true).Code)

	rr := f.do(http.MethodGet, "/panels/stock", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp stateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, panel.IDStock, resp.Panel)
	assert.Equal(t, panel.StatusSucceeded, resp.Status)
	assert.False(t, resp.Busy)
	assert.Equal(t, "600519", resp.Values.Get("symbol"))
	assert.JSONEq(t, `{"answer":"吉"}`, string(resp.Result))
	assert.NotEmpty(t, resp.ResultAt)
}

package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-mailorder-bridge/internal/gateway"
	"github.com/imrishuroy/go-mailorder-bridge/internal/metrics"
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

const testKey = "s3cret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type testAPI struct {
	router *gin.Engine
	store  *orders.Store
}

func newTestAPI(t *testing.T, apiKey string) *testAPI {
	t.Helper()
	store := orders.NewStore(t.TempDir(), testLogger())
	require.NoError(t, store.Init())
	m := metrics.NewRegistry()
	r := NewRouter(HandlerConfig{
		Service:     gateway.NewService(store, m, testLogger()),
		Metrics:     m,
		APIKey:      apiKey,
		ServiceName: "mailorder-bridge",
		Version:     "test",
		Log:         testLogger(),
	})
	return &testAPI{router: r, store: store}
}

func (a *testAPI) seed(t *testing.T, raw string) {
	t.Helper()
	doc, err := orders.ParseDocument([]byte(raw))
	require.NoError(t, err)
	_, err = a.store.WriteNew(context.Background(), doc)
	require.NoError(t, err)
}

// body drops the newline the JSON encoder appends.
func body(rec *httptest.ResponseRecorder) string {
	return strings.TrimSuffix(rec.Body.String(), "\n")
}

func (a *testAPI) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string { return map[string]string{"X-API-Key": testKey} }

func TestHealthAndRootArePublic(t *testing.T) {
	api := newTestAPI(t, testKey)

	rec := api.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(body(rec), `{"status":"ok","timestamp":"`))
	assert.True(t, strings.HasSuffix(body(rec), `","service":"mailorder-bridge"}`))

	rec = api.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"endpoints":{"health":"/health"`)
}

func TestAPIKey(t *testing.T) {
	api := newTestAPI(t, testKey)

	rec := api.do(http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"missing_api_key"`)

	rec = api.do(http.MethodGet, "/stats", "", map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"invalid_api_key"`)

	rec = api.do(http.MethodGet, "/stats", "", authed())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyDisabled(t *testing.T) {
	api := newTestAPI(t, "")
	rec := api.do(http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrders(t *testing.T) {
	api := newTestAPI(t, testKey)

	rec := api.do(http.MethodGet, "/orders", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"message":"No new orders with 'processing' status","status":"empty"}`, body(rec))

	api.seed(t, `{"internal_order_id":"A1","zeta":1,"alpha":{"y":2,"x":1},"status":"processing"}`)
	rec = api.do(http.MethodGet, "/orders", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"order":{"internal_order_id":"A1","zeta":1,"alpha":{"y":2,"x":1},"status":"processing"}}`, body(rec))
}

func TestPostOrders_ConfirmThenAcknowledge(t *testing.T) {
	api := newTestAPI(t, testKey)
	api.seed(t, `{"internal_order_id":"A1","status":"processing"}`)

	rec := api.do(http.MethodPost, "/orders", `{"order_id":"A1","operation":"confirm","delivery_minutes":"45"}`, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		`{"success":true,"message":"Order #A1 confirmed with delivery time: 45 minutes","order_id":"A1","operation":"CONFIRM","delivery_minutes":45,"moved_to":"processed"}`,
		body(rec))

	rec = api.do(http.MethodPost, "/orders", `{"order_id":"A1","operation":"CANCEL"}`, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		`{"success":true,"message":"Order #A1 already processed. Status update received.","order_id":"A1","status":"acknowledged"}`,
		body(rec))

	h, err := api.store.Find(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, orders.BucketProcessed, h.Bucket)
}

func TestPostOrders_Cancel(t *testing.T) {
	api := newTestAPI(t, testKey)
	api.seed(t, `{"internal_order_id":"A1","status":"processing"}`)

	rec := api.do(http.MethodPost, "/orders", `{"order_id":"A1","operation":"CANCEL","delivery_minutes":20}`, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		`{"success":true,"message":"Order #A1 cancelled","order_id":"A1","operation":"CANCEL","delivery_minutes":null,"moved_to":"cancelled"}`,
		body(rec))
}

func TestPostOrders_ClientErrors(t *testing.T) {
	api := newTestAPI(t, testKey)
	api.seed(t, `{"internal_order_id":"A1","status":"processing"}`)

	cases := []struct {
		name string
		body string
		ct   string
		code int
		err  string
	}{
		{"missing order id", `{"operation":"CONFIRM"}`, "application/json", http.StatusBadRequest, "validation_failed"},
		{"blank order id", `{"order_id":"   ","operation":"CONFIRM"}`, "application/json", http.StatusBadRequest, "validation_failed"},
		{"bad json", `{"order_id":`, "application/json", http.StatusBadRequest, "invalid_request_body"},
		{"bad minutes", `{"order_id":"A1","delivery_minutes":"soon"}`, "application/json", http.StatusBadRequest, "invalid_request_body"},
		{"not json", `order_id=A1`, "application/x-www-form-urlencoded", http.StatusBadRequest, "invalid_content_type"},
		{"invalid operation", `{"order_id":"A1","operation":"SHIP"}`, "application/json", http.StatusBadRequest, "invalid_operation"},
		{"unknown order", `{"order_id":"ZZ","operation":"CONFIRM"}`, "application/json", http.StatusNotFound, "order_not_found"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := api.do(http.MethodPost, "/orders", c.body, map[string]string{"X-API-Key": testKey, "Content-Type": c.ct})
			assert.Equal(t, c.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+c.err+`"`)
		})
	}

	h, err := api.store.Find(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, orders.BucketNew, h.Bucket)
}

func TestOrderTextIsNotHTMLEscaped(t *testing.T) {
	api := newTestAPI(t, testKey)
	api.seed(t, `{"internal_order_id":"A&1","notes":"Pizza & Bere <fara ceapa>","status":"processing"}`)

	rec := api.do(http.MethodGet, "/orders", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"order":{"internal_order_id":"A&1","notes":"Pizza & Bere <fara ceapa>","status":"processing"}}`, body(rec))

	rec = api.do(http.MethodPost, "/orders", `{"order_id":"A&1","operation":"CANCEL"}`, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		`{"success":true,"message":"Order #A&1 cancelled","order_id":"A&1","operation":"CANCEL","delivery_minutes":null,"moved_to":"cancelled"}`,
		body(rec))
}

func TestGetOrderByID(t *testing.T) {
	api := newTestAPI(t, testKey)
	api.seed(t, `{"internal_order_id":"A1","status":"processing","b":[]}`)
	rec := api.do(http.MethodPost, "/orders", `{"order_id":"A1","operation":"CANCEL"}`, authed())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/orders/A1", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"order":{"internal_order_id":"A1","status":"processing","b":[]}}`, body(rec))

	rec = api.do(http.MethodGet, "/orders/B2", "", authed())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `{"error":"order_not_found","message":"Order #B2 not found"}`, body(rec))
}

func TestStatsAndMetrics(t *testing.T) {
	api := newTestAPI(t, testKey)
	api.seed(t, `{"internal_order_id":"A1","status":"processing"}`)
	api.seed(t, `{"internal_order_id":"B2","status":"processing"}`)
	api.do(http.MethodPost, "/orders", `{"order_id":"B2","operation":"CONFIRM"}`, authed())

	rec := api.do(http.MethodGet, "/stats", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"new":1,"processed":1,"cancelled":0,"total":2}`, body(rec))

	rec = api.do(http.MethodGet, "/metrics", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `mailorder_decisions_total{operation="CONFIRM",outcome="moved"} 1`)
	assert.Contains(t, out, `mailorder_http_requests_total{method="GET",route="/stats",status="200"} 1`)
	assert.Contains(t, out, "mailorder_pending_orders 1")

	rec = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodGet, "/health", "", map[string]string{"X-Request-Id": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))

	rec = api.do(http.MethodGet, "/health", "", nil)
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}

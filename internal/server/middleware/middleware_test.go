package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/billing"
	"github.com/publicai/gateway/internal/billing/lago"
	"github.com/publicai/gateway/internal/consumers"
	"github.com/publicai/gateway/internal/guardrails/bedrock"
	"github.com/publicai/gateway/internal/store/cache"
)

// fakeHTTP satisfies httpclient.HTTPClient with a canned responder.
type fakeHTTP struct {
	respond func(*http.Request) (*http.Response, error)
}

func (f *fakeHTTP) Do(req *http.Request) (*http.Response, error) { return f.respond(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func okHandler(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }

func serve(engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := consumers.NewClient("http://unused", "acct", "bucket", "rk", http.DefaultClient, zap.NewNop())

	engine := gin.New()
	engine.Use(APIKeyAuth(registry, cache.NewMemoryCache(), zap.NewNop()))
	engine.GET("/", okHandler)

	w := serve(engine, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Missing or malformed Authorization header")
}

func TestAPIKeyAuth_ResolvesAndCachesConsumer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lookups := 0
	registrySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups++
		assert.Equal(t, "pk-live-1", r.URL.Query().Get("api-key"))
		w.Write([]byte(`{"data":[{"name":"consumer-1","metadata":{"plan":"pro"}}]}`))
	}))
	defer registrySrv.Close()

	registry := consumers.NewClient(registrySrv.URL, "acct", "bucket", "rk", http.DefaultClient, zap.NewNop())
	engine := gin.New()
	engine.Use(APIKeyAuth(registry, cache.NewMemoryCache(), zap.NewNop()))
	engine.GET("/", func(c *gin.Context) {
		consumer, ok := ConsumerFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"name": consumer.Name, "plan": consumer.Plan()})
	})

	headers := map[string]string{"Authorization": "Bearer pk-live-1"}
	for i := 0; i < 3; i++ {
		w := serve(engine, http.MethodGet, "/", "", headers)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "consumer-1")
		assert.Contains(t, w.Body.String(), "pro")
	}
	assert.Equal(t, 1, lookups, "repeat requests must come from the cache")
}

func TestAPIKeyAuth_UnknownKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registrySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer registrySrv.Close()

	registry := consumers.NewClient(registrySrv.URL, "acct", "bucket", "rk", http.DefaultClient, zap.NewNop())
	engine := gin.New()
	engine.Use(APIKeyAuth(registry, cache.NewMemoryCache(), zap.NewNop()))
	engine.GET("/", okHandler)

	w := serve(engine, http.MethodGet, "/", "", map[string]string{"Authorization": "Bearer pk-bogus"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid API key")
}

func TestRequireSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequireSubject())
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sub":   c.GetString(ContextUserSub),
			"email": c.GetString(ContextUserEmail),
		})
	})

	w := serve(engine, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(engine, http.MethodGet, "/", "", map[string]string{
		"X-User-Sub":   "auth0|abc",
		"X-User-Email": "dev@example.com",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "auth0|abc")
	assert.Contains(t, w.Body.String(), "dev@example.com")
}

func TestRateLimiter_PerKeyBuckets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(60, 2, zap.NewNop())

	engine := gin.New()
	engine.Use(func(c *gin.Context) { c.Set(ContextAPIKey, c.GetHeader("X-Test-Key")) })
	engine.Use(rl.Middleware())
	engine.GET("/", okHandler)

	keyA := map[string]string{"X-Test-Key": "key-a"}
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/", "", keyA).Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/", "", keyA).Code)
	w := serve(engine, http.MethodGet, "/", "", keyA)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")

	// A different key gets its own bucket.
	keyB := map[string]string{"X-Test-Key": "key-b"}
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/", "", keyB).Code)
}

func balanceEngine(t *testing.T, lagoURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lagoClient := lago.NewClient(lagoURL, "lk", http.DefaultClient, zap.NewNop())
	svc := billing.NewService(lagoClient, nil, zap.NewNop(), 10, "pay_as_you_go", "stripe_test", 0.10)

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(ContextConsumer, &consumers.Consumer{Name: "consumer-1"})
	})
	engine.Use(BalanceGate(svc, zap.NewNop()))
	engine.GET("/", okHandler)
	return engine
}

func TestBalanceGate_BlocksEmptyWallet(t *testing.T) {
	lagoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"wallets":[{"lago_id":"w1","ongoing_balance_cents":5}]}`))
	}))
	defer lagoSrv.Close()

	w := serve(balanceEngine(t, lagoSrv.URL), http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_balance")
}

func TestBalanceGate_FailsOpenOnBillingOutage(t *testing.T) {
	lagoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer lagoSrv.Close()

	w := serve(balanceEngine(t, lagoSrv.URL), http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func guardrailEngine(svc *bedrock.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Guardrail(svc, zap.NewNop()))
	engine.POST("/", func(c *gin.Context) {
		// The handler must still see the full body after screening.
		raw, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"len": len(raw)})
	})
	return engine
}

func TestGuardrail_BlockedMessage(t *testing.T) {
	client := &fakeHTTP{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"action":"GUARDRAIL_INTERVENED"}`), nil
	}}
	svc := bedrock.NewService("gr-1", "DRAFT", "eu-central-2",
		bedrock.Credentials{AccessKeyID: "ak", SecretAccessKey: "sk"}, client, zap.NewNop())

	body := `{"model":"m","messages":[{"role":"user","content":"something hostile"}]}`
	w := serve(guardrailEngine(svc), http.MethodPost, "/", body, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "content_filter")
}

func TestGuardrail_AllowedMessageKeepsBody(t *testing.T) {
	client := &fakeHTTP{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"action":"NONE"}`), nil
	}}
	svc := bedrock.NewService("gr-1", "DRAFT", "eu-central-2",
		bedrock.Credentials{AccessKeyID: "ak", SecretAccessKey: "sk"}, client, zap.NewNop())

	body := `{"model":"m","messages":[{"role":"user","content":"hello"}]}`
	w := serve(guardrailEngine(svc), http.MethodPost, "/", body, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"len":`+strconv.Itoa(len(body)))
}

func TestGuardrail_DisabledSkipsScreening(t *testing.T) {
	// No guardrail ID configured; the nil client proves no call is made.
	svc := bedrock.NewService("", "DRAFT", "eu-central-2", bedrock.Credentials{}, nil, zap.NewNop())

	body := `{"model":"m","messages":[{"role":"user","content":"hello"}]}`
	w := serve(guardrailEngine(svc), http.MethodPost, "/", body, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardrail_FailsOpenOnScreeningOutage(t *testing.T) {
	client := &fakeHTTP{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	}}
	svc := bedrock.NewService("gr-1", "DRAFT", "eu-central-2",
		bedrock.Credentials{AccessKeyID: "ak", SecretAccessKey: "sk"}, client, zap.NewNop())

	body := `{"model":"m","messages":[{"role":"user","content":"hello"}]}`
	w := serve(guardrailEngine(svc), http.MethodPost, "/", body, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

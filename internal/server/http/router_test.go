package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/auth"
	"github.com/storefeedback/qrverify/internal/server/config"
	"github.com/storefeedback/qrverify/internal/server/models"
	"github.com/storefeedback/qrverify/internal/server/ratelimit"
	"github.com/storefeedback/qrverify/internal/server/repositories/repomanager"
	"github.com/storefeedback/qrverify/internal/server/services"
)

var secret = []byte("test-secret")

type testServer struct {
	router   http.Handler
	repos    *repomanager.MemoryRepositoryManager
	sessions *services.SessionManager
	cfg      *config.Config
}

func newTestServer(t *testing.T, tweak ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, fn := range tweak {
		fn(cfg)
	}
	log := logging.Nop()
	repos := repomanager.NewMemoryRepositoryManager()

	fraud := services.NewFraudDetector(repos, ratelimit.NewMemoryLimiter(), cfg, log)
	t.Cleanup(fraud.Close)
	sessions := services.NewSessionManager(repos, cfg.SessionTTL, log)
	coord := services.NewCoordinator(repos, sessions, fraud, nil, cfg, log)

	ctx := context.Background()
	require.NoError(t, repos.Stores().Upsert(ctx, &models.Store{
		ID: "store-1", Name: "ICA Nära Odenplan", BusinessName: "ICA AB", QRVersion: 1, Active: true,
	}))
	require.NoError(t, repos.Transactions().Create(ctx, &models.Transaction{
		ID: "pos-1", StoreID: "store-1", Time: time.Now().Add(-30 * time.Second), Amount: decimal.RequireFromString("125.50"),
	}))

	// httptest requests come from 192.0.2.1
	proxies, err := ParseTrustedProxies([]string{"192.0.2.1", "10.0.0.0/8"})
	require.NoError(t, err)

	return &testServer{
		router:   NewRouter(NewHandler(coord, sessions, secret, proxies, log)),
		repos:    repos,
		sessions: sessions,
		cfg:      cfg,
	}
}

func (s *testServer) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) scan(t *testing.T) string {
	t.Helper()
	rr := s.do(t, http.MethodPost, scanPath("store-1", "1", time.Now().Add(-time.Minute)),
		`{"ip_address":"192.0.2.10","user_agent":"Mozilla/5.0 (iPhone)"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out scanResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out.SessionToken
}

func scanPath(store, v string, at time.Time) string {
	return "/qr/verify/" + store + "?v=" + v + "&t=" + strconv.FormatInt(at.Unix(), 10)
}

func claimNow(t *testing.T) string {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	return time.Now().In(loc).Format("15:04")
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var out errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	assert.False(t, out.Success)
	return out
}

func TestScan(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, scanPath("store-1", "1", time.Now()), "", map[string]string{
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
		"User-Agent":      "Mozilla/5.0 (Android)",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	assert.Len(t, out["session_token"], 48)
	assert.Equal(t, false, out["fraud_warning"])
	store := out["store_info"].(map[string]any)
	assert.Equal(t, "store-1", store["store_id"])
	assert.Equal(t, "ICA Nära Odenplan", store["store_name"])

	sess, err := s.repos.Sessions().GetByToken(context.Background(), out["session_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", sess.IPAddress)
	assert.Equal(t, "Mozilla/5.0 (Android)", sess.UserAgent)
}

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{name: "bad store id", target: scanPath("bad%20id", "1", time.Now()), status: http.StatusBadRequest, code: common.CodeInvalidStoreID},
		{name: "missing params", target: "/qr/verify/store-1", status: http.StatusBadRequest, code: common.CodeInvalidQRParams},
		{name: "old code", target: scanPath("store-1", "1", time.Now().Add(-48*time.Hour)), status: http.StatusBadRequest, code: common.CodeQRCodeExpired},
		{name: "unknown store", target: scanPath("store-2", "1", time.Now()), status: http.StatusNotFound, code: common.CodeStoreNotFound},
		{name: "malformed body", target: scanPath("store-1", "1", time.Now()), body: `{"ip_address":`, status: http.StatusBadRequest, code: common.CodeValidation},
		{name: "unknown field", target: scanPath("store-1", "1", time.Now()), body: `{"device":"x"}`, status: http.StatusBadRequest, code: common.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rr := s.do(t, http.MethodPost, tt.target, tt.body, nil)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeError(t, rr).Error.Code)
		})
	}
}

func TestScan_RateLimited(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.ScanRateLimit = 1 })

	s.scan(t)
	rr := s.do(t, http.MethodPost, scanPath("store-1", "1", time.Now()),
		`{"ip_address":"192.0.2.10","user_agent":"Mozilla/5.0 (iPhone)"}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, common.CodeRateLimitExceeded, decodeError(t, rr).Error.Code)
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retry)
}

func TestSubmit_Verified(t *testing.T) {
	s := newTestServer(t)
	token := s.scan(t)

	body := `{"transaction_time":"` + claimNow(t) + `","transaction_amount":"126,50 kr","phone_number":"070-123 45 67"}`
	rr := s.do(t, http.MethodPost, "/verification/submit", body, map[string]string{common.SessionTokenHeaderName: token})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out submitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.VerificationID)
	assert.Equal(t, models.SessionCompleted, out.Status)
	assert.True(t, out.ValidationResults.OverallValid)
	assert.Equal(t, "+46701234567", out.ValidationResults.Phone.E164)

	rr = s.do(t, http.MethodGet, "/verification/status/"+out.VerificationID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, out.VerificationID, status.VerificationID)
	assert.Equal(t, models.SessionCompleted, status.Status)

	rr = s.do(t, http.MethodPost, "/verification/submit", body, map[string]string{common.SessionTokenHeaderName: token})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, common.CodeVerificationAlreadyExists, decodeError(t, rr).Error.Code)
}

func TestSubmit_OutOfToleranceIsSuccessfulResponse(t *testing.T) {
	s := newTestServer(t)
	token := s.scan(t)

	body := `{"transaction_time":"` + claimNow(t) + `","transaction_amount":128.00,"phone_number":"0701234567"}`
	rr := s.do(t, http.MethodPost, "/verification/submit", body, map[string]string{common.SessionTokenHeaderName: token})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out submitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, models.SessionFailed, out.Status)
	assert.False(t, out.ValidationResults.OverallValid)
	assert.Equal(t, models.StatusTooHigh, out.ValidationResults.Amount.Status)

	rr = s.do(t, http.MethodGet, "/verification/session/"+token, "", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, common.CodeSessionInvalidState, decodeError(t, rr).Error.Code)
}

func TestSubmit_Errors(t *testing.T) {
	s := newTestServer(t)
	token := s.scan(t)
	valid := `{"transaction_time":"12:00","transaction_amount":10,"phone_number":"0701234567"}`

	rr := s.do(t, http.MethodPost, "/verification/submit", valid, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, common.CodeInvalidSessionToken, decodeError(t, rr).Error.Code)

	rr = s.do(t, http.MethodPost, "/verification/submit", valid, map[string]string{common.SessionTokenHeaderName: strings.Repeat("a", 40)})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, common.CodeSessionNotFound, decodeError(t, rr).Error.Code)

	rr = s.do(t, http.MethodPost, "/verification/submit", `{"transaction_amount":{}}`, map[string]string{common.SessionTokenHeaderName: token})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, common.CodeValidation, decodeError(t, rr).Error.Code)

	rr = s.do(t, http.MethodPost, "/verification/submit", "", map[string]string{common.SessionTokenHeaderName: token})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSession(t *testing.T) {
	s := newTestServer(t)
	token := s.scan(t)

	rr := s.do(t, http.MethodGet, "/verification/session/"+token, "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, models.SessionPending, out.Status)
	assert.Equal(t, 1, out.QRVersion)
	assert.Equal(t, "store-1", out.StoreInfo.StoreID)
	assert.Equal(t, int64(120), out.ToleranceHints.TimeToleranceSeconds)
	assert.Equal(t, []string{"070", "072", "073", "076", "079"}, out.ToleranceHints.MobilePrefixes)

	rr = s.do(t, http.MethodGet, "/verification/session/short", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, common.CodeInvalidSessionToken, decodeError(t, rr).Error.Code)
}

func TestSession_Expired(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.SessionTTL = time.Millisecond })
	token := s.scan(t)
	time.Sleep(5 * time.Millisecond)

	rr := s.do(t, http.MethodGet, "/verification/session/"+token, "", nil)
	assert.Equal(t, http.StatusGone, rr.Code)
	assert.Equal(t, common.CodeSessionExpired, decodeError(t, rr).Error.Code)
}

func TestStatus_NotFound(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/verification/status/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, common.CodeVerificationNotFound, decodeError(t, rr).Error.Code)
}

func TestAdminCleanup(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.SessionTTL = time.Millisecond })
	s.scan(t)
	time.Sleep(5 * time.Millisecond)

	rr := s.do(t, http.MethodPost, "/admin/sessions/cleanup", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, common.CodeUnauthorized, decodeError(t, rr).Error.Code)

	rr = s.do(t, http.MethodPost, "/admin/sessions/cleanup", "", map[string]string{"Authorization": "Bearer nonsense"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := auth.GenerateOperatorToken("ops", secret, time.Minute)
	require.NoError(t, err)
	rr = s.do(t, http.MethodPost, "/admin/sessions/cleanup", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out cleanupResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, int64(1), out.ExpiredCount)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/verification/submit", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

type stubVerifier struct {
	err   error
	panic bool
}

func (v stubVerifier) HandleScan(context.Context, services.ScanRequest) (*services.ScanResult, error) {
	if v.panic {
		panic("boom")
	}
	return nil, v.err
}

func (v stubVerifier) HandleSubmission(context.Context, string, services.Submission, *services.ExpectedTransaction, services.ClientInfo) (*services.SubmissionResult, error) {
	return nil, v.err
}

func (v stubVerifier) SessionDetails(context.Context, string) (*services.SessionDetails, error) {
	return nil, v.err
}

func (v stubVerifier) GetVerification(context.Context, string) (*models.Verification, error) {
	return nil, v.err
}

func TestInternalErrorsAreNotExposed(t *testing.T) {
	router := NewRouter(NewHandler(stubVerifier{err: errors.New("pq: connection refused to 10.0.0.5")}, nil, secret, nil, logging.Nop()))

	req := httptest.NewRequest(http.MethodGet, "/verification/status/abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	out := decodeError(t, rr)
	assert.Equal(t, common.CodeInternal, out.Error.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.5")
}

func TestPanicRecovered(t *testing.T) {
	router := NewRouter(NewHandler(stubVerifier{panic: true}, nil, secret, nil, logging.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/qr/verify/store-1?v=1&t=1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, common.CodeInternal, decodeError(t, rr).Error.Code)
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{common.ErrValidation, http.StatusBadRequest},
		{common.ErrInvalidQRParams, http.StatusBadRequest},
		{common.ErrQRCodeExpired, http.StatusBadRequest},
		{common.ErrUnauthorizedOperator, http.StatusUnauthorized},
		{common.ErrFraudDetectionBlocked, http.StatusForbidden},
		{common.ErrStoreNotFound, http.StatusNotFound},
		{common.ErrSessionNotFound, http.StatusNotFound},
		{common.ErrTransactionNotFound, http.StatusNotFound},
		{common.ErrSessionInvalidState, http.StatusConflict},
		{common.ErrVerificationAlreadyExists, http.StatusConflict},
		{common.ErrSessionExpired, http.StatusGone},
		{common.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := mapDomainError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestReadIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "2001:db8::1"})
	require.NoError(t, err)
	h := NewHandler(nil, nil, secret, proxies, logging.Nop())

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{name: "direct client", remote: "198.51.100.9:5000", want: "198.51.100.9"},
		{name: "untrusted peer cannot spoof", remote: "198.51.100.9:5000", xff: "203.0.113.1", want: "198.51.100.9"},
		{name: "trusted proxy", remote: "10.0.0.2:80", xff: "203.0.113.1", want: "203.0.113.1"},
		{name: "client prepends a fake hop", remote: "10.0.0.2:80", xff: "1.2.3.4, 203.0.113.1, 10.0.0.7", want: "203.0.113.1"},
		{name: "only trusted hops", remote: "10.0.0.2:80", xff: "10.1.1.1, 10.0.0.7", want: "10.1.1.1"},
		{name: "trusted ipv6 peer", remote: "[2001:db8::1]:4711", xff: " 198.51.100.2 , 10.0.0.1", want: "198.51.100.2"},
		{name: "trusted peer without header", remote: "10.0.0.2:80", want: "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, h.readIP(req))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 127.0.0.1 ", "", "10.1.2.3/8", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "127.0.0.1/32", got[0].String())
	assert.Equal(t, "10.0.0.0/8", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/40"})
	assert.Error(t, err)
}

func TestScan_UntrustedPeerCannotNameOrigin(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, scanPath("store-1", "1", time.Now()),
		strings.NewReader(`{"ip_address":"203.0.113.50","user_agent":"Mozilla/5.0 (iPhone)"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.51")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Android)")
	req.RemoteAddr = "198.51.100.77:40000"
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out scanResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	sess, err := s.repos.Sessions().GetByToken(context.Background(), out.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.77", sess.IPAddress)
	assert.Equal(t, "Mozilla/5.0 (Android)", sess.UserAgent)
}

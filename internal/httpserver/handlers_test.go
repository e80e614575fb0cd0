package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"adpoints/internal/config"
	"adpoints/internal/httpserver"
	"adpoints/internal/ledger"
	"adpoints/internal/metrics"
	"adpoints/internal/referral"
	"adpoints/internal/reward"
	"adpoints/internal/store"
	"adpoints/internal/withdraw"
	"adpoints/migrations"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	server    *httptest.Server
	client    *http.Client
	clock     *fakeClock
	authToken string
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.RunMigrations(context.Background(), migrations.Files); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	policy := config.RewardPolicy{
		AdRewardPoints:   10,
		AdCooldown:       60 * time.Second,
		DailyBonusPoints: 20,
		DailyBonusWindow: 24 * time.Hour,
		ReferralBonus:    100,
		MinWithdrawal:    100,
	}

	m := metrics.Registry("httptest")
	ledgerSvc := ledger.New(st, nil, m, logger, policy)
	ledgerSvc.SetNowFunc(clock.Now)

	authToken := "test-token"
	srv := httpserver.New(":0", logger, m, httpserver.Dependencies{
		Ledger:      ledgerSvc,
		Rewards:     reward.New(ledgerSvc, m, logger),
		Referrals:   referral.New(ledgerSvc, m, logger),
		Withdrawals: withdraw.New(st, ledgerSvc, nil, m, logger, ""),
	}, authToken, "")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:    ts,
		client:    &http.Client{Timeout: 3 * time.Second},
		clock:     clock,
		authToken: authToken,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, admin bool) map[string]any {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+e.authToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response for %s %s: %v", method, path, err)
	}
	return decoded
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	got := e.do(t, http.MethodGet, "/api/balance?userId="+userID, "", false)
	balance, ok := got["balance"].(float64)
	if !ok {
		t.Fatalf("balance response = %v", got)
	}
	return int64(balance)
}

func TestEndToEndRewardAndWithdrawal(t *testing.T) {
	env := setupTest(t)

	got := env.do(t, http.MethodPost, "/api/register", `{"userId":"alice","displayName":"Alice"}`, false)
	if got["success"] != true {
		t.Fatalf("register = %v", got)
	}
	if b := env.balance(t, "alice"); b != 0 {
		t.Fatalf("initial balance = %d, want 0", b)
	}

	got = env.do(t, http.MethodPost, "/api/ads/watch", `{"userId":"alice"}`, false)
	if got["success"] != true || got["reward"] != float64(10) {
		t.Fatalf("watch ad = %v", got)
	}
	if b := env.balance(t, "alice"); b != 10 {
		t.Fatalf("balance after ad = %d, want 10", b)
	}

	// Inside the cooldown the claim is rejected with a wait message.
	got = env.do(t, http.MethodPost, "/api/ads/watch", `{"userId":"alice"}`, false)
	if got["success"] != false || !strings.Contains(got["error"].(string), "wait") {
		t.Fatalf("watch ad during cooldown = %v", got)
	}

	got = env.do(t, http.MethodPost, "/api/bonus/daily", `{"userId":"alice"}`, false)
	if got["success"] != true {
		t.Fatalf("daily bonus = %v", got)
	}
	got = env.do(t, http.MethodPost, "/api/bonus/daily", `{"userId":"alice"}`, false)
	if got["success"] != false {
		t.Fatalf("repeat daily bonus = %v", got)
	}
	if b := env.balance(t, "alice"); b != 30 {
		t.Fatalf("balance after daily bonus = %d, want 30", b)
	}

	got = env.do(t, http.MethodPost, "/api/withdraw", `{"userId":"alice","amount":100,"method":"bKash","destinationNumber":"01712345678"}`, false)
	if got["success"] != false || got["message"] != "Insufficient balance" {
		t.Fatalf("premature withdraw = %v", got)
	}
	if b := env.balance(t, "alice"); b != 30 {
		t.Fatalf("balance after rejected withdraw = %d, want 30", b)
	}

	for i := 0; i < 7; i++ {
		env.clock.Advance(61 * time.Second)
		got = env.do(t, http.MethodPost, "/api/ads/watch", `{"userId":"alice"}`, false)
		if got["success"] != true {
			t.Fatalf("ad watch %d = %v", i, got)
		}
	}
	if b := env.balance(t, "alice"); b != 100 {
		t.Fatalf("balance after ad run = %d, want 100", b)
	}

	got = env.do(t, http.MethodPost, "/api/withdraw", `{"userId":"alice","amount":100,"method":"bKash","destinationNumber":"01712345678"}`, false)
	if got["success"] != true {
		t.Fatalf("withdraw = %v", got)
	}
	withdrawalID, ok := got["withdrawalId"].(string)
	if !ok || withdrawalID == "" {
		t.Fatalf("withdrawalId missing in %v", got)
	}
	if b := env.balance(t, "alice"); b != 0 {
		t.Fatalf("balance after withdraw = %d, want 0", b)
	}

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/admin/withdrawals", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+env.authToken)
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("list withdrawals: %v", err)
	}
	defer resp.Body.Close()
	var pending []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pending list: %v", err)
	}
	if len(pending) != 1 || pending[0]["id"] != withdrawalID || pending[0]["status"] != "pending" {
		t.Fatalf("pending list = %v", pending)
	}

	got = env.do(t, http.MethodGet, "/api/admin/withdrawals?id="+withdrawalID, "", true)
	if got["id"] != withdrawalID || got["status"] != "pending" {
		t.Fatalf("withdrawal lookup = %v", got)
	}

	body := fmt.Sprintf(`{"withdrawalId":%q,"action":"approve"}`, withdrawalID)
	got = env.do(t, http.MethodPost, "/api/admin/withdrawals/decide", body, true)
	if got["success"] != true {
		t.Fatalf("approve = %v", got)
	}
	if b := env.balance(t, "alice"); b != 0 {
		t.Fatalf("balance after approve = %d, want 0", b)
	}

	got = env.do(t, http.MethodGet, "/api/admin/withdrawals?id="+withdrawalID, "", true)
	if got["status"] != "approved" || got["decidedAt"] == "" {
		t.Fatalf("decided withdrawal lookup = %v", got)
	}
	got = env.do(t, http.MethodGet, "/api/admin/withdrawals?id=no-such-id", "", true)
	if got["success"] != false || got["message"] != "Not found" {
		t.Fatalf("unknown withdrawal lookup = %v", got)
	}

	got = env.do(t, http.MethodPost, "/api/admin/withdrawals/decide", body, true)
	if got["success"] != false || got["message"] != "Already decided" {
		t.Fatalf("double approve = %v", got)
	}
}

func TestRejectRefundsThroughAPI(t *testing.T) {
	env := setupTest(t)

	env.do(t, http.MethodPost, "/api/register", `{"userId":"bob","displayName":"Bob"}`, false)
	got := env.do(t, http.MethodPost, "/api/coins", `{"userId":"bob","amount":150}`, true)
	if got["success"] != true {
		t.Fatalf("add coins = %v", got)
	}

	got = env.do(t, http.MethodPost, "/api/withdraw", `{"userId":"bob","amount":120,"method":"USDT","destinationNumber":"TXabc"}`, false)
	if got["success"] != true {
		t.Fatalf("withdraw = %v", got)
	}
	withdrawalID := got["withdrawalId"].(string)
	if b := env.balance(t, "bob"); b != 30 {
		t.Fatalf("balance after withdraw = %d, want 30", b)
	}

	body := fmt.Sprintf(`{"withdrawalId":%q,"action":"reject"}`, withdrawalID)
	got = env.do(t, http.MethodPost, "/api/admin/withdrawals/decide", body, true)
	if got["success"] != true {
		t.Fatalf("reject = %v", got)
	}
	if b := env.balance(t, "bob"); b != 150 {
		t.Fatalf("balance after refund = %d, want 150", b)
	}
}

func TestWithdrawValidationMessages(t *testing.T) {
	env := setupTest(t)
	env.do(t, http.MethodPost, "/api/register", `{"userId":"carol"}`, false)

	got := env.do(t, http.MethodPost, "/api/withdraw", `{"userId":"carol","amount":100,"method":"PayPal","destinationNumber":"x"}`, false)
	if got["message"] != "Invalid withdraw method" {
		t.Fatalf("invalid method = %v", got)
	}

	got = env.do(t, http.MethodPost, "/api/withdraw", `{"userId":"carol","amount":50,"method":"bKash","destinationNumber":"x"}`, false)
	if got["message"] != "Minimum withdraw 100 coins" {
		t.Fatalf("below minimum = %v", got)
	}

	got = env.do(t, http.MethodPost, "/api/withdraw", `{"userId":"carol","amount":100,"method":"bKash"}`, false)
	if got["message"] != "Missing fields" {
		t.Fatalf("missing fields = %v", got)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	env := setupTest(t)

	got := env.do(t, http.MethodGet, "/api/admin/withdrawals", "", false)
	if got["success"] != false {
		t.Fatalf("unauthenticated list = %v", got)
	}
	got = env.do(t, http.MethodPost, "/api/coins", `{"userId":"x","amount":10}`, false)
	if got["success"] != false {
		t.Fatalf("unauthenticated add coins = %v", got)
	}
}

func TestBalanceMissingUserID(t *testing.T) {
	env := setupTest(t)
	got := env.do(t, http.MethodGet, "/api/balance", "", false)
	if got["balance"] != float64(0) {
		t.Fatalf("balance without userId = %v", got)
	}
}

func TestWatchAdUnknownUser(t *testing.T) {
	env := setupTest(t)
	got := env.do(t, http.MethodPost, "/api/ads/watch", `{"userId":"nobody"}`, false)
	if got["success"] != false || got["error"] != "User not found" {
		t.Fatalf("unknown user ad watch = %v", got)
	}
}

func TestWatchAdRequestValidation(t *testing.T) {
	env := setupTest(t)

	got := env.do(t, http.MethodPost, "/api/ads/watch", `{"userId":`, false)
	if got["error"] != "Invalid request" {
		t.Fatalf("malformed body = %v", got)
	}
	got = env.do(t, http.MethodPost, "/api/ads/watch", `{}`, false)
	if got["error"] != "Missing userId" {
		t.Fatalf("missing userId = %v", got)
	}
}

func TestReferralBeforeRegister(t *testing.T) {
	env := setupTest(t)
	env.do(t, http.MethodPost, "/api/register", `{"userId":"ref1"}`, false)

	// The referred user never registered; attribution creates the record and
	// pays the referrer anyway.
	got := env.do(t, http.MethodPost, "/api/referral", `{"userId":"stranger","referrerId":"ref1"}`, false)
	if got["success"] != true {
		t.Fatalf("referral = %v", got)
	}
	if b := env.balance(t, "ref1"); b != 100 {
		t.Fatalf("referrer balance = %d, want 100", b)
	}
	if b := env.balance(t, "stranger"); b != 0 {
		t.Fatalf("referred user balance = %d, want 0", b)
	}

	got = env.do(t, http.MethodPost, "/api/referral", `{"userId":"stranger","referrerId":"ref1"}`, false)
	if len(got) != 0 {
		t.Fatalf("repeat referral response = %v, want empty object", got)
	}
}

func TestReferralIsSilentOnNoOp(t *testing.T) {
	env := setupTest(t)
	env.do(t, http.MethodPost, "/api/register", `{"userId":"dave"}`, false)

	got := env.do(t, http.MethodPost, "/api/referral", `{"userId":"dave","referrerId":"dave"}`, false)
	if len(got) != 0 {
		t.Fatalf("self referral response = %v, want empty object", got)
	}

	got = env.do(t, http.MethodPost, "/api/referral", `{"userId":"dave","referrerId":"erin"}`, false)
	if got["success"] != true {
		t.Fatalf("referral = %v", got)
	}
	if b := env.balance(t, "erin"); b != 100 {
		t.Fatalf("referrer balance = %d, want 100", b)
	}

	got = env.do(t, http.MethodPost, "/api/referral", `{"userId":"dave","referrerId":"frank"}`, false)
	if len(got) != 0 {
		t.Fatalf("repeat referral response = %v, want empty object", got)
	}
	if b := env.balance(t, "frank"); b != 0 {
		t.Fatalf("second referrer balance = %d, want 0", b)
	}
}

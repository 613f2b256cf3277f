package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/feed"
	"fsp-staking/internal/observability"
	"fsp-staking/internal/service"
)

var (
	deployer = domain.AddressFromLabel("deployer")
	alice    = domain.AddressFromLabel("alice")
	stranger = domain.AddressFromLabel("stranger")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func testFees() domain.FeeSchedule {
	pair := func(a, b uint64) domain.FeePair { return domain.FeePair{NonReflection: u(a), Reflection: u(b)} }
	return domain.FeeSchedule{
		Creation:          [4]*uint256.Int{u(400), u(300), u(200), u(100)},
		Deposit:           pair(10, 20),
		Withdraw:          pair(1, 2),
		EmergencyWithdraw: pair(40, 40),
		Claim:             pair(8, 12),
		ReflectionFeeBps:  100,
	}
}

type testServer struct {
	*httptest.Server
	svc   *service.Service
	clock *chain.ManualClock
}

func newTestServer(t *testing.T, dev bool) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	clock := chain.NewManualClock(1_700_000_000)
	c, err := service.NewChain(service.ChainConfig{
		Clock:        clock,
		Fees:         testFees(),
		FactoryLabel: "factory",
		OwnerLabel:   "deployer",
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	hub := feed.NewHub(feed.DefaultHubConfig(), zerolog.Nop(), metrics)
	svc, err := service.New(service.Options{
		Env:       c.Env,
		Tokens:    c.Tokens,
		Factory:   c.Factory,
		Stores:    service.MemoryStores(),
		Publisher: hub,
		Metrics:   metrics,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	svc.Start(context.Background())

	srv := New(Options{
		Service:        svc,
		Feed:           hub,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         zerolog.Nop(),
		DevEndpoints:   dev,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		hub.Close()
		_ = svc.Close(context.Background())
	})
	return &testServer{Server: ts, svc: svc, clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// setup creates a staked token, funds accounts and deploys a pool.
func (ts *testServer) setup(t *testing.T) (stk domain.Address, pool PoolResponse) {
	t.Helper()
	var tok TokenResponse
	status := ts.do(t, http.MethodPost, "/tokens", CreateTokenRequest{
		Symbol: "STK",
		Mints: []MintRequest{
			{To: deployer, Amount: "5000000"},
			{To: alice, Amount: "5000000"},
		},
	}, &tok)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, uint8(18), tok.Decimals)
	assert.Equal(t, "10000000", tok.TotalSupply)

	for _, acct := range []domain.Address{deployer, alice} {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/native/mint", MintRequest{To: acct, Amount: "10000"}, nil))
	}

	factoryAddr := ts.svc.FactoryAddress()
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/tokens/"+tok.Address.String()+"/approve",
		ApproveRequest{Sender: deployer, Spender: factoryAddr, Amount: "1000000"}, nil))

	var deployed DeployPoolResponse
	status = ts.do(t, http.MethodPost, "/factory/pools", DeployPoolRequest{
		Sender:       deployer,
		Value:        "400",
		StakedToken:  tok.Address,
		RewardSupply: "1000000",
		APYPercent:   10,
		LockTier:     0,
		LimitPerUser: "100000",
	}, &deployed)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, deployed.Pool.Funded)
	require.NotEmpty(t, deployed.Tx.Events)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/pools/"+deployed.Pool.Address.String(), nil, &pool))
	require.NotNil(t, pool.Fees)
	return tok.Address, pool
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, false)
	var h HealthResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil, &h))
	assert.Equal(t, "OK", h.Status)
	assert.Equal(t, int64(1_700_000_000), h.Time)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_DevEndpointsDisabled(t *testing.T) {
	ts := newTestServer(t, false)
	status := ts.do(t, http.MethodPost, "/tokens", CreateTokenRequest{Symbol: "X"}, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestServer_StakingFlow(t *testing.T) {
	ts := newTestServer(t, true)
	stk, pool := ts.setup(t)
	poolPath := "/pools/" + pool.Address.String()

	var got PoolResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, poolPath, nil, &got))
	require.NotNil(t, got.Fees)
	assert.Equal(t, "ACTIVE", got.State)
	assert.Equal(t, "NO_LOCK", got.LockTier)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/tokens/"+stk.String()+"/approve",
		ApproveRequest{Sender: alice, Spender: pool.Address, Amount: "1000"}, nil))

	var tx TxResponse
	status := ts.do(t, http.MethodPost, poolPath+"/deposit",
		TxRequest{Sender: alice, Value: got.Fees.Deposit, Amount: "1000"}, &tx)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, tx.Events, 1)
	assert.Equal(t, domain.EventDeposit, tx.Events[0].Kind)
	assert.Equal(t, "1000", tx.Events[0].Amount)

	ts.clock.Advance(365 * domain.SecondsPerDay)

	var pos PositionResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, poolPath+"/positions/"+alice.String(), nil, &pos))
	assert.True(t, pos.Exists)
	assert.Equal(t, "1000", pos.StakedAmount)
	assert.Equal(t, "100", pos.PendingReward)

	status = ts.do(t, http.MethodPost, poolPath+"/withdraw-all",
		TxRequest{Sender: alice, Value: got.Fees.Withdraw}, &tx)
	require.Equal(t, http.StatusOK, status)

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/tokens/"+stk.String()+"/balances/"+alice.String(), nil, &bal))
	assert.Equal(t, "5000100", bal.Balance)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.svc.Flush(ctx))

	var events []feed.Event
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, poolPath+"/events", nil, &events))
	kinds := make([]domain.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []domain.EventKind{domain.EventFunded, domain.EventDeposit, domain.EventWithdraw}, kinds)

	var activity ActivityResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet,
		poolPath+"/activity?from=0&to=1900000000", nil, &activity))
	require.Len(t, activity.Days, 2)
	assert.Equal(t, uint64(1), activity.Days[0].Deposits)
	assert.Equal(t, uint64(1), activity.Days[1].Withdrawals)

	var positions []PositionResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, poolPath+"/positions", nil, &positions))
	assert.Empty(t, positions)

	var verify VerifyResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, poolPath+"/verify", nil, &verify))
	assert.True(t, verify.Match)
	assert.Equal(t, 3, verify.Events)
	assert.Empty(t, verify.Divergences)

	var all VerifyAllResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/verify", nil, &all))
	assert.Equal(t, 1, all.Total)
	assert.Equal(t, 1, all.Matched)
}

func TestServer_RevertMapping(t *testing.T) {
	ts := newTestServer(t, true)
	_, pool := ts.setup(t)
	poolPath := "/pools/" + pool.Address.String()

	var e ErrorResponse
	status := ts.do(t, http.MethodPost, poolPath+"/deposit", TxRequest{Sender: alice, Value: "1", Amount: "10"}, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "FeeInsufficient", e.Code)

	status = ts.do(t, http.MethodPost, poolPath+"/stop", TxRequest{Sender: stranger}, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "NotAuthorized", e.Code)

	status = ts.do(t, http.MethodPost, "/factory/admins", AdminRequest{Sender: stranger, Account: alice}, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "NotOwner", e.Code)

	unknown := domain.AddressFromLabel("nowhere")
	status = ts.do(t, http.MethodGet, "/pools/"+unknown.String(), nil, &e)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UnknownPool", e.Code)
}

func TestServer_BadRequests(t *testing.T) {
	ts := newTestServer(t, true)
	_, pool := ts.setup(t)
	poolPath := "/pools/" + pool.Address.String()

	var e ErrorResponse
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/pools/not-an-address", nil, &e))
	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodPost, poolPath+"/deposit", map[string]string{"bogus": "1"}, &e))
	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodPost, poolPath+"/deposit", TxRequest{Sender: alice}, &e))
	assert.Contains(t, e.Error, "amount")
	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodPost, poolPath+"/deposit", TxRequest{Sender: alice, Amount: "-5"}, &e))
}

func TestServer_FactoryAdmin(t *testing.T) {
	ts := newTestServer(t, true)
	ts.setup(t)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/factory/admins", AdminRequest{Sender: deployer, Account: alice}, nil))

	var f FactoryResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/factory", nil, &f))
	assert.Contains(t, f.Admins, alice)
	assert.Equal(t, "400", f.Treasury)
	assert.Equal(t, 1, f.PoolCount)
	assert.Equal(t, "10", f.Fees.Deposit.NonReflection)

	fees := f.Fees
	fees.Deposit.NonReflection = "11"
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/factory/fees", UpdateFeesRequest{Sender: deployer, Fees: fees}, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/factory", nil, &f))
	assert.Equal(t, "11", f.Fees.Deposit.NonReflection)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/factory/admins/"+alice.String(), AdminRequest{Sender: deployer}, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/factory/withdraw",
		TreasuryWithdrawRequest{Sender: deployer, To: deployer, Amount: "400"}, nil))

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/accounts/"+deployer.String()+"/native", nil, &bal))
	assert.Equal(t, "10000", bal.Balance)
}

func TestServer_FeedThroughMiddleware(t *testing.T) {
	ts := newTestServer(t, true)
	stk, pool := ts.setup(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?pool=" + pool.Address.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg feed.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, feed.TypeSubscribed, msg.Type)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/tokens/"+stk.String()+"/approve",
		ApproveRequest{Sender: alice, Spender: pool.Address, Amount: "500"}, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/pools/"+pool.Address.String()+"/deposit",
		TxRequest{Sender: alice, Value: pool.Fees.Deposit, Amount: "500"}, nil))

	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, feed.TypeEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, domain.EventDeposit, msg.Event.Kind)
	assert.Equal(t, alice, msg.Event.Actor)
}

package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chowfast/internal/domain"
	"chowfast/internal/money"
	"chowfast/internal/orchestrator"
	"chowfast/internal/service/checkout"
	"chowfast/internal/service/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type stubCatalog struct {
	products []domain.Product
}

func (s *stubCatalog) ListProducts(_ context.Context, category string) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range s.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubCatalog) ListCategories(context.Context) ([]domain.Category, error) {
	return []domain.Category{{Key: "budget", Title: "Budget-Friendly Packages"}}, nil
}

type stubCheckout struct {
	err    error
	wallet *common.Address
	last   *domain.LastOrder
}

func (s *stubCheckout) Checkout(_ context.Context, sess *session.Session, deliveryInfo string) (*checkout.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	sess.Cart.Clear()
	return &checkout.Result{
		Receipt: &types.Receipt{TxHash: common.HexToHash("0xabc"), BlockNumber: big.NewInt(7), Status: types.ReceiptStatusSuccessful},
		Request: &domain.OrderRequest{Value: money.MustWei("0.000106")},
	}, nil
}

func (s *stubCheckout) LastOrder(context.Context, *session.Session) (*domain.LastOrder, error) {
	if s.last == nil {
		return nil, domain.ErrNotFound
	}
	last := s.last
	s.last = nil
	return last, nil
}

func (s *stubCheckout) Cancel(_ context.Context, _ *session.Session, id *big.Int) (*types.Receipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.Receipt{TxHash: common.HexToHash("0xdef")}, nil
}

func (s *stubCheckout) Fee() *big.Int {
	return money.MustWei(money.DefaultFee)
}

func (s *stubCheckout) Wallet() (common.Address, bool) {
	if s.wallet == nil {
		return common.Address{}, false
	}
	return *s.wallet, true
}

type stubOrders struct {
	record  *domain.OrderRecord
	err     error
	calls   int
	lastBuy common.Address
}

func (s *stubOrders) ByTxHash(_ context.Context, hash common.Hash) (*domain.OrderRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	rec := *s.record
	rec.TxHash = hash
	return &rec, nil
}

func (s *stubOrders) ByOrderID(context.Context, *big.Int) (*domain.OrderRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func (s *stubOrders) ListByBuyer(_ context.Context, buyer common.Address, _ uint64) ([]domain.OrderRecord, error) {
	s.calls++
	s.lastBuy = buyer
	return nil, s.err
}

type idleWaiter struct{}

func (idleWaiter) WaitMined(ctx context.Context, _ *types.Transaction) (*types.Receipt, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	router   *gin.Engine
	catalog  *stubCatalog
	checkout *stubCheckout
	orders   *stubOrders
	sessions *session.Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		checkout: &stubCheckout{},
		orders: &stubOrders{record: &domain.OrderRecord{
			OrderID: big.NewInt(1),
			Total:   money.MustWei("0.000106"),
			Items:   []domain.OrderItem{{ProductID: "middle-e", ProductName: "Nutritious Combo", UnitPrice: money.MustWei("0.000096"), Quantity: 1}},
		}},
	}
	catalog := &stubCatalog{products: []domain.Product{
		{ID: "budget-a", Name: "Quick Refresh Package", Price: decimal.RequireFromString("0.000016"), Category: "budget"},
		{ID: "middle-e", Name: "Nutritious Combo", Price: decimal.RequireFromString("0.000096"), Category: "middle"},
	}}
	sessions := session.New(time.Hour, func() *orchestrator.Orchestrator {
		return orchestrator.New(idleWaiter{}, 0, nil)
	})
	f.sessions = sessions
	f.catalog = catalog
	router, err := buildRouter(log.New(io.Discard, "", 0), Deps{
		CatalogSvc:  catalog,
		SessionSvc:  sessions,
		CheckoutSvc: f.checkout,
		Orders:      f.orders,
	}, opts)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	f.router = router
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(sessionHeader, token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	rec, body := f.do(t, http.MethodPost, "/sessions", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("expected token in %v", body)
	}
	return token
}

func TestProducts(t *testing.T) {
	f := newFixture(t, Options{})

	rec, body := f.do(t, http.MethodGet, "/products?category=middle", "", nil)
	if rec.Code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodGet, "/products/budget-a", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	price := body["price"].(map[string]interface{})
	if price["wei"] != "16000000000000" || price["display"] != "0.000016 ETH" {
		t.Fatalf("unexpected price %v", price)
	}

	rec, _ = f.do(t, http.MethodGet, "/products/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCartRequiresSession(t *testing.T) {
	f := newFixture(t, Options{})

	rec, _ := f.do(t, http.MethodGet, "/cart", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/cart", "bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCartFlow(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.session(t)

	rec, body := f.do(t, http.MethodPost, "/cart/items", token, gin.H{"productId": "middle-e"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	subtotal := body["subtotal"].(map[string]interface{})
	total := body["total"].(map[string]interface{})
	if subtotal["ether"] != "0.000096" || total["ether"] != "0.000106" {
		t.Fatalf("unexpected totals %v %v", subtotal, total)
	}

	f.do(t, http.MethodPost, "/cart/items", token, gin.H{"productId": "middle-e", "quantity": 2})
	rec, body = f.do(t, http.MethodGet, "/cart", token, nil)
	lines := body["lines"].([]interface{})
	if rec.Code != http.StatusOK || len(lines) != 1 || body["itemCount"].(float64) != 3 {
		t.Fatalf("expected one line with 3 items, got %v", body)
	}

	rec, _ = f.do(t, http.MethodPost, "/cart/items", token, gin.H{"productId": "ghost"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown product, got %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/cart/items", token, gin.H{"productId": "budget-a", "quantity": -1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative quantity, got %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPut, "/cart/items/budget-a", token, gin.H{"quantity": 4})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 updating absent line, got %d", rec.Code)
	}

	rec, body = f.do(t, http.MethodPut, "/cart/items/middle-e", token, gin.H{"quantity": 0})
	if rec.Code != http.StatusOK || len(body["lines"].([]interface{})) != 0 {
		t.Fatalf("expected zero quantity to remove line, got %v", body)
	}

	rec, _ = f.do(t, http.MethodDelete, "/cart/items/absent", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected removing absent line to succeed, got %d", rec.Code)
	}
}

func TestCheckoutSuccess(t *testing.T) {
	f := newFixture(t, Options{ExplorerURL: "https://sepolia.arbiscan.io"})
	token := f.session(t)
	f.do(t, http.MethodPost, "/cart/items", token, gin.H{"productId": "middle-e"})

	rec, body := f.do(t, http.MethodPost, "/checkout", token, gin.H{"deliveryInfo": "Hall 3, Room 12"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	want := "https://sepolia.arbiscan.io/tx/" + common.HexToHash("0xabc").Hex()
	if body["explorerUrl"] != want || body["blockNumber"].(float64) != 7 {
		t.Fatalf("unexpected checkout response %v", body)
	}
}

func TestCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", domain.Invalid("deliveryInfo", "delivery information is required"), http.StatusBadRequest},
		{"in flight", orchestrator.ErrSubmitInFlight, http.StatusConflict},
		{"revert", &domain.RevertError{Reason: "Insufficient payment"}, http.StatusBadGateway},
		{"rejected", domain.ErrSigningRejected, http.StatusBadGateway},
		{"network", domain.ErrNetworkUnavailable, http.StatusBadGateway},
		{"timeout", domain.ErrConfirmationTimeout, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.checkout.err = tc.err
			token := f.session(t)

			rec, body := f.do(t, http.MethodPost, "/checkout", token, gin.H{"deliveryInfo": "x"})
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %v", tc.code, rec.Code, body)
			}
		})
	}
}

func TestRevertReasonIsShown(t *testing.T) {
	f := newFixture(t, Options{})
	f.checkout.err = &domain.RevertError{Reason: "No items"}
	token := f.session(t)

	_, body := f.do(t, http.MethodPost, "/checkout", token, gin.H{"deliveryInfo": "x"})
	if body["error"] != "Transaction reverted: No items" || body["kind"] != "revert" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCheckoutStatusStartsIdle(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.session(t)

	rec, body := f.do(t, http.MethodGet, "/checkout/status", token, nil)
	if rec.Code != http.StatusOK || body["status"] != string(domain.TxStatusIdle) {
		t.Fatalf("unexpected status %d %v", rec.Code, body)
	}
	rec, _ = f.do(t, http.MethodPost, "/checkout/reset", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reset to succeed, got %d", rec.Code)
	}
}

func TestLastOrderConsumedOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.checkout.last = &domain.LastOrder{TxHash: "0xabc", Total: "0.000106"}
	token := f.session(t)

	rec, body := f.do(t, http.MethodGet, "/orders/last", token, nil)
	if rec.Code != http.StatusOK || body["txHash"] != "0xabc" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
	rec, _ = f.do(t, http.MethodGet, "/orders/last", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second read, got %d", rec.Code)
	}
}

func TestOrderLookups(t *testing.T) {
	f := newFixture(t, Options{ExplorerURL: "https://sepolia.arbiscan.io"})
	hash := common.HexToHash("0x1234")

	rec, body := f.do(t, http.MethodGet, "/orders/tx/"+hash.Hex(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	total := body["total"].(map[string]interface{})
	if total["wei"] != "106000000000000" || body["txHash"] != hash.Hex() {
		t.Fatalf("unexpected order view %v", body)
	}

	for _, path := range []string{"/orders/tx/0x12", "/orders/tx/nothex", "/orders/0", "/orders/abc"} {
		rec, _ = f.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}

	rec, _ = f.do(t, http.MethodGet, "/orders/1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	f.orders.err = domain.ErrRemoteUnavailable
	rec, _ = f.do(t, http.MethodGet, "/orders/1", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	f.orders.err = &domain.DecodeError{What: "OrderCreated event"}
	rec, _ = f.do(t, http.MethodGet, "/orders/tx/"+hash.Hex(), "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestListOrdersBuyer(t *testing.T) {
	f := newFixture(t, Options{})

	rec, _ := f.do(t, http.MethodGet, "/orders", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without buyer or wallet, got %d", rec.Code)
	}

	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	f.checkout.wallet = &wallet
	rec, _ = f.do(t, http.MethodGet, "/orders?fromBlock=10", "", nil)
	if rec.Code != http.StatusOK || f.orders.lastBuy != wallet {
		t.Fatalf("expected wallet lookup, got %d for %s", rec.Code, f.orders.lastBuy.Hex())
	}

	rec, _ = f.do(t, http.MethodGet, "/orders?buyer=0xnope", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad buyer, got %d", rec.Code)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.session(t)

	rec, body := f.do(t, http.MethodPost, "/orders/3/cancel", token, nil)
	if rec.Code != http.StatusOK || body["orderId"] != "3" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}

	f.checkout.err = &domain.RevertError{Reason: "Time expired"}
	rec, _ = f.do(t, http.MethodPost, "/orders/3/cancel", token, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestLookupRateLimit(t *testing.T) {
	f := newFixture(t, Options{LookupRatePerSecond: 1})
	path := "/orders/1"

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec, _ := f.do(t, http.MethodGet, path, "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	// catalog reads are not limited
	rec, _ = f.do(t, http.MethodGet, "/products", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLookupLimiterForgetsIdleClients(t *testing.T) {
	now := time.Unix(0, 0)
	l := newLookupLimiter(1, func() time.Time { return now })

	l.allow("a")
	now = now.Add(limiterIdle + time.Minute)
	l.allow("b")
	if _, ok := l.clients["a"]; ok {
		t.Fatalf("expected idle client to be dropped")
	}
}

func TestBuildRouterRequiresDeps(t *testing.T) {
	if _, err := buildRouter(log.New(io.Discard, "", 0), Deps{}, Options{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
}

func TestCartEditsRejectedWhilePending(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.session(t)
	if rec, _ := f.do(t, http.MethodPost, "/cart/items", token, map[string]interface{}{"productId": "budget-a", "quantity": 2}); rec.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", rec.Code)
	}
	sess, err := f.sessions.Lookup(context.Background(), token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sess.Tx.Submit(ctx, func(context.Context) (*types.Transaction, error) {
			return types.NewTx(&types.LegacyTx{Nonce: 1}), nil
		})
	}()
	deadline := time.Now().Add(time.Second)
	for sess.Tx.State().Status != domain.TxStatusPending {
		if time.Now().After(deadline) {
			t.Fatal("transaction never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	edits := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodPost, "/cart/items", map[string]interface{}{"productId": "middle-e"}},
		{http.MethodPut, "/cart/items/budget-a", map[string]interface{}{"quantity": 5}},
		{http.MethodDelete, "/cart/items/budget-a", nil},
		{http.MethodDelete, "/cart", nil},
	}
	for _, e := range edits {
		rec, _ := f.do(t, e.method, e.path, token, e.body)
		if rec.Code != http.StatusConflict {
			t.Fatalf("%s %s: expected 409, got %d", e.method, e.path, rec.Code)
		}
	}
	if rec, _ := f.do(t, http.MethodGet, "/cart", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("get cart: expected 200, got %d", rec.Code)
	}
	lines := sess.Cart.Lines()
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("cart changed while pending: %+v", lines)
	}

	cancel()
	<-done
	if rec, _ := f.do(t, http.MethodDelete, "/cart", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("clear after settle: expected 200, got %d", rec.Code)
	}
}

func TestSubWeiPriceIsNotTruncated(t *testing.T) {
	f := newFixture(t, Options{})
	dust := domain.Product{ID: "dust", Name: "Dust", Price: decimal.RequireFromString("0.0000000000000000015"), Category: "budget"}
	f.catalog.products = append(f.catalog.products, dust)

	if rec, _ := f.do(t, http.MethodGet, "/products/dust", "", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("product: expected 500, got %d", rec.Code)
	}
	if rec, _ := f.do(t, http.MethodGet, "/products", "", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("list: expected 500, got %d", rec.Code)
	}

	token := f.session(t)
	rec, body := f.do(t, http.MethodPost, "/cart/items", token, map[string]interface{}{"productId": "dust"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("add: expected 400, got %d", rec.Code)
	}
	if body["field"] != "price" {
		t.Fatalf("expected price field error, got %v", body)
	}
	rec, body = f.do(t, http.MethodGet, "/cart", token, nil)
	if rec.Code != http.StatusOK || body["itemCount"] != float64(0) {
		t.Fatalf("expected empty cart, got %d %v", rec.Code, body)
	}
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	cases := []struct {
		name   string
		checks []Check
		code   int
		failed string
	}{
		{"none configured", nil, http.StatusServiceUnavailable, ""},
		{"all ok", []Check{{"catalog", ok}, {"rpc", ok}}, http.StatusOK, ""},
		{"rpc down", []Check{{"catalog", ok}, {"rpc", down}}, http.StatusServiceUnavailable, "rpc"},
		{"redis slow", []Check{{"catalog", ok}, {"redis", slow}}, http.StatusServiceUnavailable, "redis"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{ReadyChecks: tc.checks, ReadyTimeout: 20 * time.Millisecond})
			rec, body := f.do(t, http.MethodGet, "/readyz", "", nil)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d body=%v", tc.code, rec.Code, body)
			}
			if tc.checks == nil {
				return
			}
			results, _ := body["checks"].(map[string]interface{})
			if len(results) != len(tc.checks) {
				t.Fatalf("expected %d check results, got %v", len(tc.checks), body)
			}
			for _, c := range tc.checks {
				want := "ok"
				if c.Name == tc.failed {
					want = "unreachable"
				}
				if results[c.Name] != want {
					t.Fatalf("check %s: expected %s, got %v", c.Name, want, results[c.Name])
				}
			}
		})
	}

	f := newFixture(t, Options{})
	if rec, _ := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
}

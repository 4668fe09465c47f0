package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-commerce/checkout/internal/domain/address"
	"github.com/atelier-commerce/checkout/internal/domain/cart"
	"github.com/atelier-commerce/checkout/internal/domain/checkout"
	"github.com/atelier-commerce/checkout/internal/domain/notification"
	"github.com/atelier-commerce/checkout/internal/domain/order"
	"github.com/atelier-commerce/checkout/internal/domain/preference"
	"github.com/atelier-commerce/checkout/internal/domain/pricing"
	"github.com/atelier-commerce/checkout/internal/domain/product"
	"github.com/atelier-commerce/checkout/internal/domain/receipt"
	"github.com/atelier-commerce/checkout/internal/storage/postgres"
	"github.com/atelier-commerce/checkout/internal/submit"
)

type memCartRepo struct {
	m map[string][]cart.Line
}

func (r *memCartRepo) Get(_ context.Context, uid string) ([]cart.Line, error) {
	return append([]cart.Line(nil), r.m[uid]...), nil
}

func (r *memCartRepo) Set(_ context.Context, uid string, lines []cart.Line) error {
	r.m[uid] = append([]cart.Line(nil), lines...)
	return nil
}

func (r *memCartRepo) Del(_ context.Context, uid string) error {
	delete(r.m, uid)
	return nil
}

type mockOrders struct {
	created  []order.Draft
	statuses map[string]order.Status
}

func (m *mockOrders) Create(_ context.Context, d *order.Draft) (int64, error) {
	m.created = append(m.created, *d)
	return int64(len(m.created)), nil
}

func (m *mockOrders) GetByOrderID(_ context.Context, orderID string) (*order.Persisted, error) {
	for _, d := range m.created {
		if d.OrderID == orderID {
			return &order.Persisted{Draft: d, PersistedID: 1, Status: order.StatusPlaced}, nil
		}
	}
	return nil, postgres.ErrOrderNotFound
}

func (m *mockOrders) ListByUser(_ context.Context, uid string) ([]order.Persisted, error) {
	var out []order.Persisted
	for _, d := range m.created {
		if d.UserID == uid {
			out = append(out, order.Persisted{Draft: d, Status: order.StatusPlaced})
		}
	}
	return out, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, orderID string, s order.Status) error {
	if _, err := m.GetByOrderID(context.Background(), orderID); err != nil {
		return err
	}
	if m.statuses == nil {
		m.statuses = map[string]order.Status{}
	}
	m.statuses[orderID] = s
	return nil
}

func (m *mockOrders) Cancel(ctx context.Context, orderID string) error {
	return m.UpdateStatus(ctx, orderID, order.StatusCancelled)
}

type mockReceipts struct {
	orders *mockOrders
	saved  map[string]*receipt.Receipt
}

func (m *mockReceipts) Save(ctx context.Context, rec *receipt.Receipt) error {
	if _, err := m.orders.GetByOrderID(ctx, rec.OrderID); err != nil {
		return err
	}
	if m.saved == nil {
		m.saved = map[string]*receipt.Receipt{}
	}
	m.saved[rec.OrderID] = rec
	return nil
}

func (m *mockReceipts) Get(_ context.Context, orderID string) (*receipt.Receipt, error) {
	if rec, ok := m.saved[orderID]; ok {
		return rec, nil
	}
	return nil, postgres.ErrOrderNotFound
}

type mockNotifications struct {
	created []notification.Notification
	read    []string
}

func (m *mockNotifications) Create(_ context.Context, n *notification.Notification) error {
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotifications) ListByUser(_ context.Context, uid string) ([]notification.Notification, error) {
	var out []notification.Notification
	for _, n := range m.created {
		if n.UserID == uid {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotifications) MarkRead(_ context.Context, id string) error {
	m.read = append(m.read, id)
	return nil
}

type mockAddresses struct {
	addrs []address.Address
}

func (m *mockAddresses) ListByUser(_ context.Context, _ string) ([]address.Address, error) {
	return m.addrs, nil
}

func (m *mockAddresses) Default(_ context.Context, _ string) (*address.Address, error) {
	if len(m.addrs) == 0 {
		return nil, address.ErrNoAddresses
	}
	return &m.addrs[0], nil
}

type mockPreferences struct {
	m map[string]json.RawMessage
}

func (m *mockPreferences) Get(_ context.Context, uid string) (json.RawMessage, error) {
	if p, ok := m.m[uid]; ok {
		return p, nil
	}
	return json.RawMessage(`{}`), nil
}

func (m *mockPreferences) Set(_ context.Context, uid string, prefs json.RawMessage) error {
	if m.m == nil {
		m.m = map[string]json.RawMessage{}
	}
	m.m[uid] = prefs
	return nil
}

type mockProducts struct {
	m map[string]product.Product
}

func (m *mockProducts) Upsert(_ context.Context, _ *product.Product) error              { return nil }
func (m *mockProducts) UpsertVariantPrice(_ context.Context, _ *product.VariantPrice) error { return nil }

func (m *mockProducts) GetBySKU(_ context.Context, sku string) (*product.Product, error) {
	if p, ok := m.m[sku]; ok {
		return &p, nil
	}
	return nil, product.ErrNotFound
}

func (m *mockProducts) List(_ context.Context) ([]product.Product, error) { return nil, nil }

type mockSubmitter struct{}

func (mockSubmitter) Submit(_ context.Context, draft *order.Draft) (*submit.Outcome, error) {
	return &submit.Outcome{
		Delivered: true,
		Endpoint:  "https://api.example.com/save",
		OrderID:   draft.OrderID,
		Attempts:  []submit.Attempt{{Endpoint: "https://api.example.com/save", Status: 200, Reason: "accepted"}},
	}, nil
}

type mockPending struct{}

func (mockPending) Append(_ context.Context, _ string, _ *order.Draft) error { return nil }

type fixture struct {
	router        chi.Router
	orders        *mockOrders
	notifications *mockNotifications
	receipts      *mockReceipts
	cartRepo      *memCartRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	policy := order.ShippingPolicy{
		FreeThreshold: decimal.NewFromInt(40),
		FlatFee:       decimal.NewFromInt(5),
	}
	orders := &mockOrders{}
	notifications := &mockNotifications{}
	receipts := &mockReceipts{orders: orders}
	cartRepo := &memCartRepo{m: map[string][]cart.Line{}}
	store := cart.NewStore(cartRepo, pricing.NewEngine(), nil)
	addrs := &mockAddresses{addrs: []address.Address{{
		ID: 1, UserID: "u1", FullName: "A. Customer", Line1: "1 Main St", City: "Springfield", IsDefault: true,
	}}}
	svc := checkout.NewService(store, addrs, mockSubmitter{}, mockPending{}, policy)

	h := NewHandler(store, svc, orders, receipts, notifications, addrs,
		&mockPreferences{}, &mockProducts{m: map[string]product.Product{
			"TOTE-01": {SKU: "TOTE-01", Family: pricing.FamilyTote, Name: "Canvas Tote Bag", BasePrice: decimal.NewFromInt(40)},
		}}, policy)

	r := chi.NewRouter()
	h.Routes(r)
	return &fixture{router: r, orders: orders, notifications: notifications, receipts: receipts, cartRepo: cartRepo}
}

func (f *fixture) do(t *testing.T, method, target, user string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, rd)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestReadDataUnknownAction(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/data?action=everything", "u1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "unknown action", env.Error)
}

func TestReadDataRequiresUser(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/data?action=orders", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReadDataNotifications(t *testing.T) {
	f := newFixture(t)
	f.notifications.created = []notification.Notification{
		{ID: "n1", UserID: "u1", Type: notification.TypeOrderPlaced, Title: "Order placed"},
	}

	rec := f.do(t, http.MethodGet, "/api/data?action=notifications", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"n1"`)
}

func TestWriteDataSaveOrder(t *testing.T) {
	f := newFixture(t)
	body := `{
		"action": "save-order",
		"order_id": "ATL-abc",
		"user_id": "u1",
		"items": [{"product_name": "Canvas Tote Bag", "unit_price": "43", "quantity": 1, "line_total": "43"}],
		"subtotal": "43", "shipping": "0", "total": "43"
	}`

	rec := f.do(t, http.MethodPost, "/api/data", "u1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	// The response doubles as a submission-candidate response: top-level
	// success and order_id.
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "ATL-abc", resp["order_id"])

	require.Len(t, f.orders.created, 1)
	require.Len(t, f.notifications.created, 1)
	assert.Equal(t, notification.TypeOrderPlaced, f.notifications.created[0].Type)
	assert.Equal(t, "ATL-abc", f.notifications.created[0].OrderID)
}

func TestWriteDataCancelUnknownOrder(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/data", "u1", `{"action":"cancel-order","order_id":"ATL-missing"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteDataMarkNotificationRead(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/data", "u1", `{"action":"mark-notification-read","id":"n7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"n7"}, f.notifications.read)
}

func TestWriteDataUnknownAction(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/data", "u1", `{"action":"drop-tables"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/checkout", "u1", `{"user_id":"u1","payment_method":"cod","courier_service":"standard"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var env struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Data    stageErrorBody `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, checkout.StageCart, env.Data.Stage)
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newFixture(t)
	f.cartRepo.m["u1"] = []cart.Line{{
		ProductName: "Canvas Tote Bag",
		Family:      pricing.FamilyTote,
		UnitPrice:   decimal.NewFromInt(43),
		Quantity:    1,
	}}

	rec := f.do(t, http.MethodPost, "/api/checkout", "u1", `{"user_id":"u1","payment_method":"cod","courier_service":"standard"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data checkoutResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, checkout.SourceRemote, env.Data.Source)
	assert.True(t, strings.HasPrefix(env.Data.OrderID, "ATL-"))

	// Cart emptied after the definitive outcome.
	assert.Empty(t, f.cartRepo.m["u1"])
}

func TestPostReceiptUnknownOrderRefused(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/receipt", "u1", `{"order_id":"ATL-none","items":[]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostReceiptNormalizesPayload(t *testing.T) {
	f := newFixture(t)
	f.orders.created = append(f.orders.created, order.Draft{OrderID: "ATL-r1", UserID: "u1"})

	body := `{"order_id":"ATL-r1","items":[{"name":"Desk Vanity","price":30}]}`
	rec := f.do(t, http.MethodPost, "/api/receipt", "u1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	saved := f.receipts.saved["ATL-r1"]
	require.NotNil(t, saved)
	require.Len(t, saved.Items, 1)
	assert.True(t, saved.Items[0].UnitPrice.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 1, saved.Items[0].Quantity)
	assert.True(t, saved.Items[0].LineTotal.Equal(decimal.NewFromInt(30)))
	// subtotal 30 < 40 threshold, so flat fee applies and total reconciles.
	assert.True(t, saved.Shipping.Equal(decimal.NewFromInt(5)))
	assert.True(t, saved.Total.Equal(decimal.NewFromInt(35)))
}

func TestGetReceiptFallsBackToOrder(t *testing.T) {
	f := newFixture(t)
	f.orders.created = append(f.orders.created, order.Draft{
		OrderID:  "ATL-r2",
		UserID:   "u1",
		Items:    []order.Line{{ProductName: "LED Ring Light", UnitPrice: decimal.NewFromInt(25), Quantity: 2, LineTotal: decimal.NewFromInt(50)}},
		Subtotal: decimal.NewFromInt(50),
		Shipping: decimal.Zero,
		Total:    decimal.NewFromInt(50),
	})

	rec := f.do(t, http.MethodGet, "/api/receipt/ATL-r2", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data receipt.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "ATL-r2", env.Data.OrderID)
	assert.True(t, env.Data.Total.Equal(decimal.NewFromInt(50)))
}

func TestCartAddBySKUAndPatch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cart", "u1", `{"sku":"TOTE-01","variant":{"size":"10 x 12","color":"red"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := f.cartRepo.m["u1"]
	require.Len(t, lines, 1)
	// Colored tote at 10 x 12 prices at 43, not the neutral 45.
	assert.True(t, lines[0].UnitPrice.Equal(decimal.NewFromInt(43)))

	rec = f.do(t, http.MethodPatch, "/api/cart/0", "u1", `{"op":"quantity","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.cartRepo.m["u1"][0].Quantity)

	rec = f.do(t, http.MethodPatch, "/api/cart/9", "u1", `{"op":"quantity","quantity":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cart/0", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.cartRepo.m["u1"])
}

func TestCartUnknownSKU(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/cart", "u1", `{"sku":"NOPE"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

var (
	_ order.Repository        = (*mockOrders)(nil)
	_ ReceiptStore            = (*mockReceipts)(nil)
	_ notification.Repository = (*mockNotifications)(nil)
	_ address.Repository      = (*mockAddresses)(nil)
	_ preference.Repository   = (*mockPreferences)(nil)
	_ product.Repository      = (*mockProducts)(nil)
)

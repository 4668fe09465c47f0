package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-commerce/checkout/internal/domain/address"
	"github.com/atelier-commerce/checkout/internal/domain/cart"
	"github.com/atelier-commerce/checkout/internal/domain/order"
	"github.com/atelier-commerce/checkout/internal/domain/pricing"
	"github.com/atelier-commerce/checkout/internal/submit"
)

// --- Mocks ---

type memCartRepo struct {
	carts map[string][]cart.Line
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string][]cart.Line)}
}

func (m *memCartRepo) Get(_ context.Context, userID string) ([]cart.Line, error) {
	stored := m.carts[userID]
	out := make([]cart.Line, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *memCartRepo) Set(_ context.Context, userID string, lines []cart.Line) error {
	stored := make([]cart.Line, len(lines))
	copy(stored, lines)
	m.carts[userID] = stored
	return nil
}

func (m *memCartRepo) Del(_ context.Context, userID string) error {
	delete(m.carts, userID)
	return nil
}

type mockAddressRepo struct {
	addrs []address.Address
	err   error
}

func (m *mockAddressRepo) ListByUser(_ context.Context, _ string) ([]address.Address, error) {
	return m.addrs, m.err
}

func (m *mockAddressRepo) Default(_ context.Context, _ string) (*address.Address, error) {
	if len(m.addrs) == 0 {
		return nil, address.ErrNoAddresses
	}
	for i := range m.addrs {
		if m.addrs[i].IsDefault {
			return &m.addrs[i], nil
		}
	}
	return &m.addrs[0], nil
}

type mockSubmitter struct {
	outcome *submit.Outcome
	err     error
	calls   int
	last    *order.Draft
}

func (m *mockSubmitter) Submit(_ context.Context, d *order.Draft) (*submit.Outcome, error) {
	m.calls++
	m.last = d
	return m.outcome, m.err
}

type mockPending struct {
	drafts []*order.Draft
	err    error
}

func (m *mockPending) Append(_ context.Context, _ string, d *order.Draft) error {
	if m.err != nil {
		return m.err
	}
	m.drafts = append(m.drafts, d)
	return nil
}

// --- Helpers ---

const user = "u1"

func policy() order.ShippingPolicy {
	return order.ShippingPolicy{
		FreeThreshold: decimal.RequireFromString("40"),
		FlatFee:       decimal.RequireFromString("5"),
	}
}

func oneAddress() []address.Address {
	return []address.Address{{
		ID: 1, UserID: user, FullName: "Ada L", Phone: "555",
		Line1: "1 Main St", City: "Nairobi", State: "NBO",
		PostalCode: "00100", Country: "KE", IsDefault: true,
	}}
}

func toteProduct() cart.Product {
	return cart.Product{
		Name:            "Canvas Tote",
		Family:          pricing.FamilyTote,
		BasePrice:       decimal.RequireFromString("40"),
		AvailableColors: []string{"white", "black", "red"},
		AvailableSizes:  []string{"8 x 10", "10 x 12"},
	}
}

func candleProduct() cart.Product {
	return cart.Product{Name: "Soy Candle", BasePrice: decimal.RequireFromString("18.50")}
}

type fixture struct {
	store     *cart.Store
	repo      *memCartRepo
	addrs     *mockAddressRepo
	submitter *mockSubmitter
	pending   *mockPending
	svc       *Service
}

func newFixture(addrs []address.Address, outcome *submit.Outcome) *fixture {
	f := &fixture{
		repo:      newMemCartRepo(),
		addrs:     &mockAddressRepo{addrs: addrs},
		submitter: &mockSubmitter{outcome: outcome},
		pending:   &mockPending{},
	}
	f.store = cart.NewStore(f.repo, pricing.NewEngine(), nil)
	f.svc = NewService(f.store, f.addrs, f.submitter, f.pending, policy())
	return f
}

func validRequest() Request {
	return Request{
		UserID:         user,
		PaymentMethod:  "card",
		CourierService: "dhl",
		CustomerEmail:  "ada@example.com",
		CustomerPhone:  "555",
	}
}

func requireStage(t *testing.T, err error, stage Stage) *StageError {
	t.Helper()
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage, se.Stage)
	return se
}

// --- Tests ---

func TestSubmit_RequiresAuthentication(t *testing.T) {
	f := newFixture(oneAddress(), nil)

	req := validRequest()
	req.UserID = ""
	_, err := f.svc.Submit(context.Background(), req)

	se := requireStage(t, err, StageAuth)
	assert.Equal(t, "/signin", se.Redirect)
	assert.Zero(t, f.submitter.calls)
}

func TestSubmit_RejectsEmptyCart(t *testing.T) {
	f := newFixture(oneAddress(), nil)

	_, err := f.svc.Submit(context.Background(), validRequest())

	requireStage(t, err, StageCart)
	assert.Zero(t, f.submitter.calls)
}

func TestSubmit_ZeroAddressesRedirectsBeforeSubmission(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	_, err := f.svc.Submit(ctx, validRequest())

	se := requireStage(t, err, StageAddress)
	assert.Equal(t, "/account/addresses", se.Redirect)
	assert.Zero(t, f.submitter.calls, "no order may be created without an address")
}

func TestSubmit_MissingColorNeverReachesSubmission(t *testing.T) {
	f := newFixture(oneAddress(), nil)
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, toteProduct(), cart.Variant{Size: "10 x 12"}))

	_, err := f.svc.Submit(ctx, validRequest())

	se := requireStage(t, err, StageVariant)
	assert.Equal(t, 0, se.LineIndex)
	assert.Equal(t, "Canvas Tote", se.ProductName)
	assert.Zero(t, f.submitter.calls)
}

func TestSubmit_RequiresPaymentAndCourier(t *testing.T) {
	f := newFixture(oneAddress(), nil)
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	req := validRequest()
	req.PaymentMethod = ""
	_, err := f.svc.Submit(ctx, req)
	requireStage(t, err, StagePayment)

	req = validRequest()
	req.CourierService = ""
	_, err = f.svc.Submit(ctx, req)
	requireStage(t, err, StagePayment)
}

func TestSubmit_RemoteSuccess(t *testing.T) {
	f := newFixture(oneAddress(), &submit.Outcome{
		Delivered: true,
		Endpoint:  "https://api.example.com/api/data",
		OrderID:   "7",
	})
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, toteProduct(), cart.Variant{Size: "10 x 12", Color: "red"}))

	res, err := f.svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	assert.Equal(t, SourceRemote, res.Source)
	assert.Equal(t, "7", res.OrderID)

	// Colored tote table: 43, above the free threshold.
	d := res.Draft
	assert.True(t, decimal.RequireFromString("43").Equal(d.Subtotal))
	assert.True(t, decimal.Zero.Equal(d.Shipping))
	assert.True(t, decimal.RequireFromString("43").Equal(d.Total))
	require.NotNil(t, d.Address)
	assert.Equal(t, "Ada L", d.Address.FullName)

	// Cart is emptied of the submitted line.
	lines, err := f.store.Lines(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSubmit_FlatFeeBelowThreshold(t *testing.T) {
	f := newFixture(oneAddress(), &submit.Outcome{Delivered: true, OrderID: "8"})
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	res, err := f.svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	d := res.Draft
	assert.True(t, decimal.RequireFromString("18.50").Equal(d.Subtotal))
	assert.True(t, decimal.RequireFromString("5").Equal(d.Shipping))
	assert.True(t, decimal.RequireFromString("23.50").Equal(d.Total))
}

func TestSubmit_PrunesOnlySubmittedLines(t *testing.T) {
	f := newFixture(oneAddress(), &submit.Outcome{Delivered: true, OrderID: "9"})
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, toteProduct(), cart.Variant{Size: "10 x 12", Color: "red"}))
	require.NoError(t, f.store.AddLine(ctx, user, candleProduct(), cart.Variant{}))
	require.NoError(t, f.store.ToggleSelected(ctx, user, 1, false))

	_, err := f.svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	require.Len(t, f.submitter.last.Items, 1)
	assert.Equal(t, "Canvas Tote", f.submitter.last.Items[0].ProductName)

	lines, err := f.store.Lines(ctx, user)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Soy Candle", lines[0].ProductName)
}

func TestSubmit_AllCandidatesFailQueuesPending(t *testing.T) {
	f := newFixture(oneAddress(), &submit.Outcome{
		Delivered: false,
		Attempts: []submit.Attempt{
			{Endpoint: "a", Status: 404, Reason: "endpoint not present", Skipped: true},
			{Endpoint: "b", Reason: "network: connection refused"},
			{Endpoint: "c", Status: 500, Reason: "status 500"},
		},
	})
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	res, err := f.svc.Submit(ctx, validRequest())
	require.NoError(t, err, "submission failure must not block confirmation")

	assert.Equal(t, SourcePending, res.Source)
	assert.Equal(t, res.Draft.OrderID, res.OrderID)
	assert.Len(t, res.Attempts, 3)

	// The queued draft is the original, byte for byte.
	require.Len(t, f.pending.drafts, 1)
	assert.Equal(t, res.Draft, f.pending.drafts[0])

	// Success path still prunes the cart.
	lines, err := f.store.Lines(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSubmit_PendingQueueFailureIsLoud(t *testing.T) {
	f := newFixture(oneAddress(), &submit.Outcome{Delivered: false})
	f.pending.err = errors.New("disk full")
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	_, err := f.svc.Submit(ctx, validRequest())
	require.Error(t, err)

	// No definitive outcome: the cart must stay intact.
	lines, lerr := f.store.Lines(ctx, user)
	require.NoError(t, lerr)
	assert.Len(t, lines, 1)
}

func TestSubmit_OrderIDForm(t *testing.T) {
	f := newFixture(oneAddress(), &submit.Outcome{Delivered: true, OrderID: "x"})
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	ctx := context.Background()
	require.NoError(t, f.store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	res, err := f.svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	assert.Equal(t, order.NewOrderID(time.UnixMilli(1700000000000)), res.Draft.OrderID)
	assert.Equal(t, "1700000000000", res.Draft.OrderNumber)
}

// failingSetRepo delegates to memCartRepo but fails every Set after the
// first n successful writes.
type failingSetRepo struct {
	*memCartRepo
	failAfter int
	sets      int
}

func (f *failingSetRepo) Set(ctx context.Context, userID string, lines []cart.Line) error {
	if f.sets >= f.failAfter {
		return errors.New("connection reset by peer")
	}
	f.sets++
	return f.memCartRepo.Set(ctx, userID, lines)
}

func TestSubmit_PruneFailureStillReportsDeliveredOrder(t *testing.T) {
	repo := &failingSetRepo{memCartRepo: newMemCartRepo(), failAfter: 1}
	store := cart.NewStore(repo, pricing.NewEngine(), nil)
	submitter := &mockSubmitter{outcome: &submit.Outcome{Delivered: true, OrderID: "7"}}
	svc := NewService(store, &mockAddressRepo{addrs: oneAddress()}, submitter, &mockPending{}, policy())
	ctx := context.Background()
	require.NoError(t, store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	// The order exists on the remote backend; a failed cart prune afterwards
	// must not turn the checkout into an error, or a retry duplicates it.
	res, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, SourceRemote, res.Source)
	assert.Equal(t, "7", res.OrderID)
	assert.Equal(t, 1, submitter.calls)

	// The stale lines survive until the next successful cart write.
	lines, err := store.Lines(ctx, user)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestSubmit_PruneFailureStillReportsPendingOrder(t *testing.T) {
	repo := &failingSetRepo{memCartRepo: newMemCartRepo(), failAfter: 1}
	store := cart.NewStore(repo, pricing.NewEngine(), nil)
	submitter := &mockSubmitter{outcome: &submit.Outcome{Delivered: false}}
	pending := &mockPending{}
	svc := NewService(store, &mockAddressRepo{addrs: oneAddress()}, submitter, pending, policy())
	ctx := context.Background()
	require.NoError(t, store.AddLine(ctx, user, candleProduct(), cart.Variant{}))

	res, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, SourcePending, res.Source)
	require.Len(t, pending.drafts, 1)
}

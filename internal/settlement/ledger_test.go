package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

type memStore struct {
	sales  map[string]*models.Sale
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{sales: map[string]*models.Sale{}}
}

func (m *memStore) GetSaleByOrderID(_ context.Context, orderID string) (*models.Sale, error) {
	s, ok := m.sales[orderID]
	if !ok {
		return nil, errors.New("no rows")
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) InsertSale(_ context.Context, sale *models.Sale) error {
	if _, ok := m.sales[sale.OrderID]; ok {
		return errors.New("unique violation")
	}
	m.nextID++
	sale.ID = m.nextID
	cp := *sale
	m.sales[sale.OrderID] = &cp
	return nil
}

func (m *memStore) ListSalesBySeller(_ context.Context, sellerID string) ([]models.Sale, error) {
	var out []models.Sale
	for _, s := range m.sales {
		if s.SellerID == sellerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type memOrders struct {
	orders map[string]*models.Order
	paid   []string
}

func newMemOrders(orders ...*models.Order) *memOrders {
	m := &memOrders{orders: map[string]*models.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return o, nil
}

func (m *memOrders) MarkPaidToSeller(_ context.Context, orderID string) error {
	m.paid = append(m.paid, orderID)
	if o, ok := m.orders[orderID]; ok {
		o.PaidToSeller = true
	}
	return nil
}

func (m *memOrders) ListUnsettled(context.Context) ([]models.Order, error) {
	var out []models.Order
	for _, o := range m.orders {
		if o.Status == models.OrderCompleted && !o.PaidToSeller {
			out = append(out, *o)
		}
	}
	return out, nil
}

func completedOrder() *models.Order {
	return &models.Order{
		ID:             "o-1",
		SellerID:       "seller-1",
		SellerEmail:    "seller@example.com",
		Quantity:       2,
		SellerProceeds: decimal.NewFromInt(200),
		Status:         models.OrderCompleted,
	}
}

func admin() models.Buyer {
	return models.Buyer{ID: "ops-1", Email: "ops@example.com", IsPrivileged: true}
}

func newLedger(store SaleStore, orders OrderStore) *Ledger {
	return &Ledger{Store: store, Orders: orders, Log: logger.NewDiscard()}
}

func TestRecordPayout(t *testing.T) {
	store := newMemStore()
	orders := newMemOrders(completedOrder())
	l := newLedger(store, orders)

	sale, err := l.RecordPayout(context.Background(), "o-1", admin())
	require.NoError(t, err)
	assert.Equal(t, "seller-1", sale.SellerID)
	assert.True(t, sale.Amount.Equal(decimal.NewFromInt(200)), "amount is the seller's gross proceeds")
	assert.False(t, sale.PayoutDate.IsZero())
	assert.Equal(t, []string{"o-1"}, orders.paid)
}

func TestRecordPayoutIdempotent(t *testing.T) {
	store := newMemStore()
	l := newLedger(store, newMemOrders(completedOrder()))
	ctx := context.Background()

	first, err := l.RecordPayout(ctx, "o-1", admin())
	require.NoError(t, err)
	second, err := l.RecordPayout(ctx, "o-1", admin())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "replaying the payout must not duplicate the sale")
	assert.Len(t, store.sales, 1)
}

// racingStore misses the first lookup, as when another call inserts the
// sale between the lookup and the insert.
type racingStore struct {
	*memStore
	missed bool
}

func (r *racingStore) GetSaleByOrderID(ctx context.Context, orderID string) (*models.Sale, error) {
	if !r.missed {
		r.missed = true
		return nil, errors.New("no rows")
	}
	return r.memStore.GetSaleByOrderID(ctx, orderID)
}

func TestRecordPayoutSurvivesInsertRace(t *testing.T) {
	store := &racingStore{memStore: newMemStore()}
	ctx := context.Background()

	winner := existingSale("o-1")
	require.NoError(t, store.memStore.InsertSale(ctx, winner))

	l := newLedger(store, newMemOrders(completedOrder()))
	got, err := l.RecordPayout(ctx, "o-1", admin())
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID, "the loser gets the winner's sale back")
	assert.Len(t, store.sales, 1)
}

func existingSale(orderID string) *models.Sale {
	return &models.Sale{
		OrderID:     orderID,
		SellerID:    "seller-1",
		SellerEmail: "seller@example.com",
		Amount:      decimal.NewFromInt(200),
	}
}

func TestRecordPayoutRequiresPrivilege(t *testing.T) {
	l := newLedger(newMemStore(), newMemOrders(completedOrder()))
	ctx := context.Background()

	_, err := l.RecordPayout(ctx, "o-1", models.Buyer{ID: "seller-1"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = l.UnpaidOrders(ctx, models.Buyer{ID: "seller-1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRecordPayoutMissingOrder(t *testing.T) {
	l := newLedger(newMemStore(), newMemOrders())

	_, err := l.RecordPayout(context.Background(), "ghost", admin())
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRecordPayoutPendingOrderRefused(t *testing.T) {
	pending := completedOrder()
	pending.Status = models.OrderPending
	l := newLedger(newMemStore(), newMemOrders(pending))

	_, err := l.RecordPayout(context.Background(), "o-1", admin())
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUnpaidOrders(t *testing.T) {
	settled := completedOrder()
	owed := completedOrder()
	owed.ID = "o-2"
	l := newLedger(newMemStore(), newMemOrders(settled, owed))
	ctx := context.Background()

	_, err := l.RecordPayout(ctx, "o-1", admin())
	require.NoError(t, err)

	unpaid, err := l.UnpaidOrders(ctx, admin())
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "o-2", unpaid[0].ID)
}

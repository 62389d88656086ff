package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-marketplace/internal/models"
	"ms-marketplace/internal/order"
)

func setupDB(t *testing.T) *DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bdb := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bdb.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.Section)(nil),
		(*models.Listing)(nil),
		(*models.Order)(nil),
	} {
		_, err := bdb.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	return &DB{Bun: bdb}
}

func seed(t *testing.T, d *DB) (*models.Event, *models.Section, *models.Listing) {
	t.Helper()
	ctx := context.Background()

	event := &models.Event{
		ID:       uuid.NewString(),
		Name:     "Arena Night",
		StartsAt: time.Now().Add(10 * 24 * time.Hour),
	}
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)

	section := &models.Section{ID: uuid.NewString(), EventID: event.ID, Name: "Floor"}
	_, err = d.Bun.NewInsert().Model(section).Exec(ctx)
	require.NoError(t, err)

	l := &models.Listing{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		SectionID:   section.ID,
		SellerID:    "seller-1",
		Quantity:    2,
		Seats:       []string{"D1", "D2"},
		AskingPrice: decimal.NewFromInt(100),
	}
	_, err = d.Bun.NewInsert().Model(l).Exec(ctx)
	require.NoError(t, err)

	return event, section, l
}

func orderFor(event *models.Event, l *models.Listing) *models.Order {
	return &models.Order{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		EventName:   event.Name,
		Quantity:    l.Quantity,
		Seats:       l.Seats,
		ListingIDs:  []string{l.ID},
		BuyerEmail:  "buyer@example.com",
		Status:      models.OrderPending,
		TotalAmount: decimal.NewFromInt(240),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	d := setupDB(t)
	event, _, l := seed(t, d)
	ctx := context.Background()

	o := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, o))

	got, err := d.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ListingIDs, got.ListingIDs)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(240)))
}

func TestAttachSession(t *testing.T) {
	d := setupDB(t)
	event, _, l := seed(t, d)
	ctx := context.Background()

	o := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, o))
	require.NoError(t, d.AttachSession(ctx, o.ID, "cs_1", "https://pay.example/cs_1"))

	got, err := d.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", got.SessionID)
	assert.Equal(t, "https://pay.example/cs_1", got.CheckoutURL)
}

func TestConfirmOrderMarksListingsSold(t *testing.T) {
	d := setupDB(t)
	event, section, l := seed(t, d)
	ctx := context.Background()

	o := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, o))
	require.NoError(t, d.ConfirmOrder(ctx, o))

	var sold models.Listing
	require.NoError(t, d.Bun.NewSelect().Model(&sold).Where("id = ?", l.ID).Scan(ctx))
	assert.True(t, sold.Sold)
	assert.True(t, sold.Ordered)
	assert.Equal(t, "buyer@example.com", sold.BuyerEmail)

	got, err := d.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)

	// The sold listing leaves the section's price range and joins the
	// event's sold count.
	var sec models.Section
	require.NoError(t, d.Bun.NewSelect().Model(&sec).Where("id = ?", section.ID).Scan(ctx))
	assert.True(t, sec.LowerPrice.IsZero())
	assert.True(t, sec.UpperPrice.IsZero())

	var ev models.Event
	require.NoError(t, d.Bun.NewSelect().Model(&ev).Where("id = ?", event.ID).Scan(ctx))
	assert.Equal(t, 2, ev.SoldTickets)
}

func TestConfirmOrderLeavesSiblingListingsInRange(t *testing.T) {
	d := setupDB(t)
	event, section, l := seed(t, d)
	ctx := context.Background()

	sibling := &models.Listing{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		SectionID:   section.ID,
		SellerID:    "seller-2",
		Quantity:    1,
		Seats:       []string{"E1"},
		AskingPrice: decimal.NewFromInt(75),
	}
	_, err := d.Bun.NewInsert().Model(sibling).Exec(ctx)
	require.NoError(t, err)

	o := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, o))
	require.NoError(t, d.ConfirmOrder(ctx, o))

	got, err := d.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)

	// The unsold sibling alone defines the section's range now.
	var sec models.Section
	require.NoError(t, d.Bun.NewSelect().Model(&sec).Where("id = ?", section.ID).Scan(ctx))
	assert.True(t, sec.LowerPrice.Equal(decimal.NewFromInt(75)))
	assert.True(t, sec.UpperPrice.Equal(decimal.NewFromInt(75)))
}

func TestConfirmOrderLosesRaceToEarlierSale(t *testing.T) {
	d := setupDB(t)
	event, _, l := seed(t, d)
	ctx := context.Background()

	first := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, first))
	require.NoError(t, d.ConfirmOrder(ctx, first))

	second := orderFor(event, l)
	second.BuyerEmail = "late@example.com"
	require.NoError(t, d.CreateOrder(ctx, second))

	err := d.ConfirmOrder(ctx, second)
	var race *order.RaceLostError
	require.ErrorAs(t, err, &race)
	assert.Equal(t, second.ID, race.OrderID)

	// The loser's transaction rolled back entirely.
	got, err := d.GetOrderByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)

	var sold models.Listing
	require.NoError(t, d.Bun.NewSelect().Model(&sold).Where("id = ?", l.ID).Scan(ctx))
	assert.Equal(t, "buyer@example.com", sold.BuyerEmail, "winner's sale is untouched")
}

func TestSetStatusOnlyMovesPendingOrders(t *testing.T) {
	d := setupDB(t)
	event, _, l := seed(t, d)
	ctx := context.Background()

	o := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, o))
	require.NoError(t, d.ConfirmOrder(ctx, o))

	require.NoError(t, d.SetStatus(ctx, o.ID, models.OrderFailed))
	got, err := d.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status, "terminal status never rewritten")
}

func TestDeleteOrder(t *testing.T) {
	d := setupDB(t)
	event, _, l := seed(t, d)
	ctx := context.Background()

	o := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, o))
	require.NoError(t, d.DeleteOrder(ctx, o.ID))

	_, err := d.GetOrderByID(ctx, o.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMarkPaidToSeller(t *testing.T) {
	d := setupDB(t)
	event, _, l := seed(t, d)
	ctx := context.Background()

	o := orderFor(event, l)
	require.NoError(t, d.CreateOrder(ctx, o))
	require.NoError(t, d.MarkPaidToSeller(ctx, o.ID))

	got, err := d.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidToSeller)
}

func TestListUnsettled(t *testing.T) {
	d := setupDB(t)
	event, _, l := seed(t, d)
	ctx := context.Background()

	owed := orderFor(event, l)
	owed.Status = models.OrderCompleted
	require.NoError(t, d.CreateOrder(ctx, owed))

	settled := orderFor(event, l)
	settled.ID = uuid.NewString()
	settled.Status = models.OrderCompleted
	require.NoError(t, d.CreateOrder(ctx, settled))
	require.NoError(t, d.MarkPaidToSeller(ctx, settled.ID))

	pending := orderFor(event, l)
	pending.ID = uuid.NewString()
	require.NoError(t, d.CreateOrder(ctx, pending))

	unsettled, err := d.ListUnsettled(ctx)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, owed.ID, unsettled[0].ID)
}

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
	} {
		_, err := bdb.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	return &DB{Bun: bdb}
}

func seedEvent(t *testing.T, d *DB) (*models.Event, *models.Section) {
	t.Helper()
	ctx := context.Background()

	event := &models.Event{
		ID:           uuid.NewString(),
		Name:         "Stadium Show",
		Venue:        "Riverside Arena",
		StartsAt:     time.Now().Add(45 * 24 * time.Hour),
		NormalRate:   decimal.NewFromInt(20),
		ResellerRate: decimal.NewFromInt(12),
		CreatedAt:    time.Now().UTC(),
	}
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)

	section := &models.Section{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		Name:      "Lower Bowl",
		CreatedAt: time.Now().UTC(),
	}
	_, err = d.Bun.NewInsert().Model(section).Exec(ctx)
	require.NoError(t, err)

	return event, section
}

func newListing(event *models.Event, section *models.Section, asking string, qty int) *models.Listing {
	seats := make([]string, qty)
	for i := range seats {
		seats[i] = uuid.NewString()[:8]
	}
	return &models.Listing{
		ID:           uuid.NewString(),
		EventID:      event.ID,
		SectionID:    section.ID,
		SellerID:     "seller-1",
		SellerEmail:  "seller@example.com",
		Quantity:     qty,
		Row:          "C",
		Seats:        seats,
		FaceValue:    decimal.NewFromInt(50),
		AskingPrice:  mustDec(asking),
		TicketType:   models.TicketTypeETicket,
		UploadChoice: models.UploadNow,
		DocumentRef:  "doc://x",
		CreatedAt:    time.Now().UTC(),
	}
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInsertRefreshesAggregates(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	require.NoError(t, d.InsertListing(ctx, newListing(event, section, "80", 2)))
	require.NoError(t, d.InsertListing(ctx, newListing(event, section, "120.50", 3)))

	sec, err := d.GetSection(ctx, section.ID)
	require.NoError(t, err)
	assert.True(t, sec.LowerPrice.Equal(mustDec("80")), "lower = %s", sec.LowerPrice)
	assert.True(t, sec.UpperPrice.Equal(mustDec("120.50")), "upper = %s", sec.UpperPrice)

	ev, err := d.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, ev.TotalTickets)
	assert.Equal(t, 0, ev.SoldTickets)
}

func TestZeroPricedListingExcludedFromRange(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	require.NoError(t, d.InsertListing(ctx, newListing(event, section, "0", 1)))
	require.NoError(t, d.InsertListing(ctx, newListing(event, section, "60", 1)))

	sec, err := d.GetSection(ctx, section.ID)
	require.NoError(t, err)
	assert.True(t, sec.LowerPrice.Equal(mustDec("60")))
	assert.True(t, sec.UpperPrice.Equal(mustDec("60")))

	ev, err := d.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.TotalTickets, "zero-priced seats still count")
}

func TestDeleteLastListingResetsRange(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	l := newListing(event, section, "95", 2)
	require.NoError(t, d.InsertListing(ctx, l))
	require.NoError(t, d.DeleteListing(ctx, l))

	sec, err := d.GetSection(ctx, section.ID)
	require.NoError(t, err)
	assert.True(t, sec.LowerPrice.IsZero())
	assert.True(t, sec.UpperPrice.IsZero())

	ev, err := d.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.TotalTickets)
}

func TestUpdateListingMovesRange(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	l := newListing(event, section, "100", 1)
	require.NoError(t, d.InsertListing(ctx, l))

	l.AskingPrice = mustDec("75")
	require.NoError(t, d.UpdateListing(ctx, l))

	sec, err := d.GetSection(ctx, section.ID)
	require.NoError(t, err)
	assert.True(t, sec.LowerPrice.Equal(mustDec("75")))
	assert.True(t, sec.UpperPrice.Equal(mustDec("75")))
}

func TestListByEventFilters(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	require.NoError(t, d.InsertListing(ctx, newListing(event, section, "40", 1)))
	require.NoError(t, d.InsertListing(ctx, newListing(event, section, "90", 2)))
	require.NoError(t, d.InsertListing(ctx, newListing(event, section, "150", 2)))

	got, err := d.ListByEvent(ctx, event.ID, EventFilter{MinPrice: mustDec("50"), MaxPrice: mustDec("100")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].AskingPrice.Equal(mustDec("90")))

	got, err = d.ListByEvent(ctx, event.ID, EventFilter{Quantity: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = d.ListByEvent(ctx, event.ID, EventFilter{SectionID: "missing"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListExpiredUploads(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	overdue := newListing(event, section, "70", 1)
	overdue.UploadChoice = models.UploadLater
	overdue.DocumentRef = ""
	overdue.UploadBy = time.Now().Add(-time.Hour)
	require.NoError(t, d.InsertListing(ctx, overdue))

	onTime := newListing(event, section, "70", 1)
	onTime.UploadChoice = models.UploadLater
	onTime.DocumentRef = ""
	onTime.UploadBy = time.Now().Add(24 * time.Hour)
	require.NoError(t, d.InsertListing(ctx, onTime))

	got, err := d.ListExpiredUploads(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

func TestSplitListingAtomic(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	l := newListing(event, section, "100", 4)
	l.Seats = []string{"C1", "C2", "C3", "C4"}
	require.NoError(t, d.InsertListing(ctx, l))

	remainder := *l
	remainder.Quantity = 1
	remainder.Seats = []string{"C4"}

	carved := *l
	carved.ID = uuid.NewString()
	carved.Quantity = 3
	carved.Seats = []string{"C1", "C2", "C3"}

	require.NoError(t, d.SplitListing(ctx, &remainder, &carved))

	gotRemainder, err := d.GetListingByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotRemainder.Quantity)
	assert.Equal(t, []string{"C4"}, gotRemainder.Seats)

	gotCarved, err := d.GetListingByID(ctx, carved.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, gotCarved.Quantity)

	// Total seat count across the event is unchanged by a split.
	ev, err := d.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, ev.TotalTickets)
}

func TestSplitListingLosesRaceWhenSold(t *testing.T) {
	d := setupDB(t)
	event, section := seedEvent(t, d)
	ctx := context.Background()

	l := newListing(event, section, "100", 2)
	require.NoError(t, d.InsertListing(ctx, l))

	_, err := d.Bun.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("sold = ?", true).
		Where("id = ?", l.ID).
		Exec(ctx)
	require.NoError(t, err)

	remainder := *l
	remainder.Quantity = 1
	carved := *l
	carved.ID = uuid.NewString()
	carved.Quantity = 1

	err = d.SplitListing(ctx, &remainder, &carved)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// The carved listing must not exist.
	_, err = d.GetListingByID(ctx, carved.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

// Package api exposes the marketplace over HTTP.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/bundle"
	"ms-marketplace/internal/listing"
	listingdb "ms-marketplace/internal/listing/db"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/order"
	"ms-marketplace/internal/payment"
	"ms-marketplace/internal/settlement"
	"ms-marketplace/internal/utils"
)

type Handler struct {
	Listings     *listing.Service
	ListingStore *listingdb.DB
	Orders       *order.Service
	OrderStore   order.DBLayer
	Ledger       *settlement.Ledger
	Log          *logger.Logger
}

// Routes mounts every marketplace endpoint on a fresh router. Callers wrap
// it with the auth middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/listings", func(r chi.Router) {
		r.Post("/", h.createListing)
		r.Get("/{id}", h.getListing)
		r.Put("/{id}", h.updateListing)
		r.Patch("/{id}", h.updateListing)
		r.Delete("/{id}", h.deleteListing)
	})

	r.Get("/events/{id}/listings", h.listByEvent)
	r.Get("/sellers/me/listings", h.listMyListings)
	r.Get("/sellers/me/sales", h.listMySales)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.initiateOrder)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/return", h.orderReturn)
		r.Post("/{id}/payout", h.recordPayout)
	})
	r.Get("/buyers/me/orders", h.listMyOrders)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/listings/expired-uploads", h.expiredUploads)
		r.Get("/payouts/unpaid", h.unpaidPayouts)
	})

	return r
}

// ---------------- LISTINGS ----------------

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var l models.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	l.SellerID = actor.ID
	l.SellerEmail = actor.Email

	created, err := h.Listings.Create(r.Context(), &l)
	if err != nil {
		h.writeErr(w, "failed to create listing", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "listing created", created)
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.ListingStore.GetListingByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, "listing not found", &models.NotFoundError{Resource: "listing", ID: chi.URLParam(r, "id")})
		return
	}
	utils.WriteJSON(w, http.StatusOK, "listing", l)
}

func (h *Handler) updateListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var patch models.ListingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	updated, err := h.Listings.Update(r.Context(), chi.URLParam(r, "id"), patch, actor)
	if err != nil {
		h.writeErr(w, "failed to update listing", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "listing updated", updated)
}

func (h *Handler) deleteListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	if err := h.Listings.Delete(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.writeErr(w, "failed to delete listing", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "listing deleted", nil)
}

func (h *Handler) listByEvent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := listingdb.EventFilter{SectionID: q.Get("section_id")}
	if v := q.Get("min_price"); v != "" {
		p, err := decimal.NewFromString(v)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid min_price", err)
			return
		}
		filter.MinPrice = p
	}
	if v := q.Get("max_price"); v != "" {
		p, err := decimal.NewFromString(v)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid max_price", err)
			return
		}
		filter.MaxPrice = p
	}
	if v := q.Get("quantity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid quantity", err)
			return
		}
		filter.Quantity = n
	}

	listings, err := h.ListingStore.ListByEvent(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		h.writeErr(w, "failed to list listings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "listings", listings)
}

func (h *Handler) listMyListings(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	listings, err := h.ListingStore.ListBySeller(r.Context(), actor.ID)
	if err != nil {
		h.writeErr(w, "failed to list listings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "listings", listings)
}

func (h *Handler) expiredUploads(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok || !actor.IsPrivileged {
		utils.WriteError(w, http.StatusForbidden, "privileged access required", nil)
		return
	}

	listings, err := h.ListingStore.ListExpiredUploads(r.Context(), time.Now())
	if err != nil {
		h.writeErr(w, "failed to list expired uploads", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "expired uploads", listings)
}

// ---------------- ORDERS ----------------

type initiateOrderRequest struct {
	ListingID string `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) initiateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req initiateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ListingID == "" {
		utils.WriteError(w, http.StatusBadRequest, "listing_id is required", nil)
		return
	}

	o, err := h.Orders.Initiate(r.Context(), actor, req.ListingID, req.Quantity)
	if err != nil {
		h.writeErr(w, "failed to initiate order", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "order initiated", o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	id := chi.URLParam(r, "id")
	o, err := h.OrderStore.GetOrderByID(r.Context(), id)
	if err != nil {
		h.writeErr(w, "order not found", &models.NotFoundError{Resource: "order", ID: id})
		return
	}
	if o.BuyerEmail != actor.Email && o.SellerID != actor.ID && !actor.IsPrivileged {
		h.writeErr(w, "order not found", &models.NotFoundError{Resource: "order", ID: id})
		return
	}
	utils.WriteJSON(w, http.StatusOK, "order", o)
}

// orderReturn is the gateway redirect target. status=cancel fails the
// pending order; anything else asks the gateway for the session's verdict.
func (h *Handler) orderReturn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	var (
		o   *models.Order
		err error
	)
	if q.Get("status") == "cancel" {
		o, err = h.Orders.Cancel(r.Context(), id)
	} else {
		o, err = h.Orders.ConfirmReturn(r.Context(), id, q.Get("session_id"))
	}
	if err != nil {
		h.writeErr(w, "failed to finish order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, fmt.Sprintf("order %s", o.Status), o)
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	orders, err := h.OrderStore.ListOrdersByBuyer(r.Context(), actor.Email)
	if err != nil {
		h.writeErr(w, "failed to list orders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "orders", orders)
}

// ---------------- SETTLEMENT ----------------

func (h *Handler) listMySales(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	sales, err := h.Ledger.SellerSales(r.Context(), actor.ID)
	if err != nil {
		h.writeErr(w, "failed to list sales", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "sales", sales)
}

func (h *Handler) unpaidPayouts(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	orders, err := h.Ledger.UnpaidOrders(r.Context(), actor)
	if err != nil {
		h.writeErr(w, "failed to list payouts", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "unpaid payouts", orders)
}

func (h *Handler) recordPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.BuyerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	sale, err := h.Ledger.RecordPayout(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeErr(w, "failed to record payout", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "payout recorded", sale)
}

// writeErr maps domain errors onto HTTP statuses.
func (h *Handler) writeErr(w http.ResponseWriter, message string, err error) {
	var (
		validation  *models.ValidationError
		notFound    *models.NotFoundError
		expired     *listing.ExpiredEventError
		immutable   *listing.ImmutableSoldListingError
		unavailable *bundle.UnavailableError
		claimed     *order.ClaimedError
		raceLost    *order.RaceLostError
		gateway     *payment.GatewayError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation), errors.As(err, &expired):
		status = http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.As(err, &immutable), errors.As(err, &unavailable),
		errors.As(err, &claimed), errors.As(err, &raceLost):
		status = http.StatusConflict
	case errors.As(err, &gateway):
		status = http.StatusBadGateway
	case errors.Is(err, settlement.ErrUnauthorized):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		h.Log.Error("API", fmt.Sprintf("%s: %v", message, err))
	}
	utils.WriteError(w, status, message, err)
}

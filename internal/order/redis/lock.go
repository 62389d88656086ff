// Package redis holds the listing claim locks taken during checkout. A
// claim keeps two buyers out of the payment flow for the same listings; the
// database sold flag stays the source of truth, the lock only narrows the
// race window. TTL expiry releases claims abandoned mid-checkout.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-marketplace/internal/logger"
)

const keyPrefix = "listing_claim:"

// Locks claims and releases listings on behalf of an order.
type Locks struct {
	Client *redis.Client
	TTL    time.Duration
	Log    *logger.Logger
}

func NewLocks(client *redis.Client, ttl time.Duration, log *logger.Logger) *Locks {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locks{Client: client, TTL: ttl, Log: log}
}

// ClaimListings claims every listing for the order, all or nothing. On a
// conflict the claims already taken are rolled back and the holder is left
// untouched.
func (l *Locks) ClaimListings(ctx context.Context, listingIDs []string, orderID string) (bool, error) {
	claimed := make([]string, 0, len(listingIDs))
	for _, id := range listingIDs {
		ok, err := l.Client.SetNX(ctx, keyPrefix+id, orderID, l.TTL).Result()
		if err != nil {
			l.release(ctx, claimed, orderID)
			return false, fmt.Errorf("failed to claim listing %s: %w", id, err)
		}
		if !ok {
			l.Log.Info("REDIS", fmt.Sprintf("listing %s already claimed, order %s backs off", id, orderID))
			l.release(ctx, claimed, orderID)
			return false, nil
		}
		claimed = append(claimed, id)
	}
	return true, nil
}

// ReleaseListings drops the order's claims. Claims held by another order
// are left alone, so a late release after TTL expiry cannot steal a lock.
func (l *Locks) ReleaseListings(ctx context.Context, listingIDs []string, orderID string) error {
	var firstErr error
	for _, id := range listingIDs {
		if err := l.releaseOne(ctx, id, orderID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Locks) release(ctx context.Context, listingIDs []string, orderID string) {
	for _, id := range listingIDs {
		if err := l.releaseOne(ctx, id, orderID); err != nil {
			l.Log.Warn("REDIS", fmt.Sprintf("rollback of claim on %s: %v", id, err))
		}
	}
}

func (l *Locks) releaseOne(ctx context.Context, listingID, orderID string) error {
	key := keyPrefix + listingID
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != orderID {
		return nil
	}
	return l.Client.Del(ctx, key).Err()
}

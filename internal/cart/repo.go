// Package cart stores each customer's cart in redis as one JSON document
// keyed cart:{uid} with a 24h TTL. The embedded product snapshot is what
// checkout later freezes into OrderItems.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/redis/go-redis/v9"
)

const cartTTL = 24 * time.Hour

type Repo struct {
	rdb *redis.Client
}

func NewRepo(rdb *redis.Client) *Repo {
	return &Repo{rdb: rdb}
}

func key(userID string) string { return fmt.Sprintf("cart:%s", userID) }

// Get returns the cart, empty when none exists.
func (r *Repo) Get(ctx context.Context, userID string) ([]models.CartItem, error) {
	raw, err := r.rdb.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: get failed: %w", err)
	}
	var items []models.CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("cart: corrupt cart payload: %w", err)
	}
	return items, nil
}

// Add merges quantity into an existing line or appends a new one.
func (r *Repo) Add(ctx context.Context, userID string, product models.Product, quantity uint) ([]models.CartItem, error) {
	if quantity < 1 {
		quantity = 1
	}
	items, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	merged := false
	for i := range items {
		if items[i].Product.ID == product.ID {
			items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		items = append(items, models.CartItem{Product: product, Quantity: quantity})
	}
	if err := r.save(ctx, userID, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Remove decrements a line by quantity, dropping it at zero.
func (r *Repo) Remove(ctx context.Context, userID, productID string, quantity uint) ([]models.CartItem, error) {
	if quantity < 1 {
		quantity = 1
	}
	items, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Product.ID == productID {
			if it.Quantity > quantity {
				it.Quantity -= quantity
				out = append(out, it)
			}
			continue
		}
		out = append(out, it)
	}
	if err := r.save(ctx, userID, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear drops the whole cart; called after a successful checkout.
func (r *Repo) Clear(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("cart: clear failed: %w", err)
	}
	return nil
}

func (r *Repo) save(ctx context.Context, userID string, items []models.CartItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("cart: marshal failed: %w", err)
	}
	if err := r.rdb.Set(ctx, key(userID), data, cartTTL).Err(); err != nil {
		return fmt.Errorf("cart: save failed: %w", err)
	}
	return nil
}

// Package notify pushes order events to peers over Redis. Delivery is
// best-effort: a failed publish is logged and dropped, it never fails the
// settlement that produced it.
package notify

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

const (
	streamPush       = "escrowflow.push"
	channelOrders    = "escrowflow.orders."
	keySubscriptions = "escrowflow.subscriptions."
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

type Sender struct {
	rdb *redis.Client
}

func NewSender(rdb *redis.Client) *Sender {
	return &Sender{rdb: rdb}
}

// Send pushes one message per recipient onto the push stream.
func (s *Sender) Send(ctx context.Context, recipients []string, message string, extra map[string]any) {
	for _, recipient := range recipients {
		values := map[string]any{
			"recipient": recipient,
			"message":   message,
		}
		for k, v := range extra {
			values[k] = v
		}
		if err := s.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: streamPush,
			Values: values,
		}).Err(); err != nil {
			log.Printf("notify: push to %s: %v", recipient, err)
		}
	}
}

// PublishOrderUpdate fans a status change out to the order's channel.
func (s *Sender) PublishOrderUpdate(ctx context.Context, orderID string, payload map[string]any) {
	values := map[string]any{"order_id": orderID}
	for k, v := range payload {
		values[k] = v
	}
	if err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: channelOrders + orderID,
		Values: values,
	}).Err(); err != nil {
		log.Printf("notify: order update %s: %v", orderID, err)
	}
}

// Subscriptions tracks which addresses the chain watcher follows per
// contract.
type Subscriptions struct {
	rdb *redis.Client
}

func NewSubscriptions(rdb *redis.Client) *Subscriptions {
	return &Subscriptions{rdb: rdb}
}

// Remove drops a subscriber from a contract's watch set. Removing an absent
// member is not an error.
func (s *Subscriptions) Remove(ctx context.Context, contractAddress, subscriberID string) error {
	return s.rdb.SRem(ctx, keySubscriptions+contractAddress, subscriberID).Err()
}

// Add registers a subscriber for a contract address.
func (s *Subscriptions) Add(ctx context.Context, contractAddress, subscriberID string) error {
	return s.rdb.SAdd(ctx, keySubscriptions+contractAddress, subscriberID).Err()
}

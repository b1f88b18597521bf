package redisx

import "time"

const (
	// checkout idempotency: idem:checkout:{user_id}:{idempotency_key} -> order_id, or "pending" while in flight
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// order read cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// outbox dedup: dedup:{group}:{intent_id}
	KeyDedup = "dedup:%s:%s"

	// pub/sub channel carrying notifications to every API instance
	ChannelNotifications = "thriftian:notifications"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

package orders

const (
	TopicOrderEvents   = "thriftian.order.events"
	TopicOutboxIntents = "thriftian.outbox.intents"
)

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

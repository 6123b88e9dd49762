package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderClaimed   = "order.claimed"
	TopicOrderDelivered = "order.delivered"
	TopicOrderCancelled = "order.cancelled"
	TopicStockLow       = "stock.low"
)

// Partition key per order so every event of one order keeps its ordering.
func PartitionKey(id string) []byte { return []byte(id) }

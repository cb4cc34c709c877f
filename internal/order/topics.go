package order

const TopicNotifications = "order.notifications"

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// OutletRecipient addresses every staff member of an outlet.
func OutletRecipient(outletID string) string { return "outlet:" + outletID }

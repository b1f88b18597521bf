package notify

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/outbox"
)

func intent(key, userID, title, message string, t Type) outbox.Intent {
	return outbox.Notify(key, outbox.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    string(t),
	})
}

// OrderPlaced notifies both parties of a new order.
func OrderPlaced(orderID, buyerID, buyerName, sellerID string, total decimal.Decimal) outbox.Batch {
	return outbox.Batch{
		intent(orderID, buyerID, "Order Placed",
			fmt.Sprintf("Your order #%s has been placed successfully. Total: ₱%s", orderID, total.StringFixed(2)), TypeOrder),
		intent(orderID, sellerID, "New Order",
			fmt.Sprintf("You have received a new order #%s from %s.", orderID, buyerName), TypeOrder),
	}
}

func OrderStatusChanged(orderID, buyerID, status string) outbox.Intent {
	return intent(orderID, buyerID, "Order Status Updated",
		fmt.Sprintf("Your order #%s status is now: %s", orderID, status), TypeOrder)
}

func OrderShipped(orderID, buyerID, tracking string) outbox.Intent {
	return intent(orderID, buyerID, "Order Shipped",
		fmt.Sprintf("Your order #%s has been shipped. Tracking: %s", orderID, tracking), TypeOrder)
}

func DisputeOpened(disputeID, orderID, sellerID string) outbox.Intent {
	return intent(disputeID, sellerID, "Dispute Opened",
		fmt.Sprintf("A dispute has been opened for order #%s", orderID), TypeDispute)
}

func DisputeResolved(disputeID, orderID, buyerID, sellerID, outcome string) outbox.Batch {
	return outbox.Batch{
		intent(disputeID, buyerID, "Dispute Resolved",
			fmt.Sprintf("Your dispute for order #%s has been %s", orderID, outcome), TypeDispute),
		intent(disputeID, sellerID, "Dispute Resolved",
			fmt.Sprintf("Dispute for order #%s has been %s", orderID, outcome), TypeDispute),
	}
}

func ProductApproved(productID, sellerID, title string) outbox.Intent {
	return intent(productID, sellerID, "Product Approved",
		fmt.Sprintf("Your product %q has been approved and is now live.", title), TypeListing)
}

func ProductRejected(productID, sellerID, title, reason string) outbox.Intent {
	if reason == "" {
		reason = "Policy violation"
	}
	return intent(productID, sellerID, "Product Rejected",
		fmt.Sprintf("Your product %q was rejected. Reason: %s", title, reason), TypeListing)
}

func RoleChanged(userID, role string) outbox.Intent {
	return intent(userID, userID, "Account Role Updated",
		fmt.Sprintf("Your account role is now: %s", role), TypeSystem)
}

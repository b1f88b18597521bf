package orders

import "github.com/thriftian/marketplace/internal/auth"

func CanPlace(actor auth.Identity) bool { return actor.IsBuyer() }

func CanView(actor auth.Identity, o Order) bool {
	return actor.IsAdmin() || actor.UID == o.BuyerID || actor.UID == o.SellerID
}

// CanUpdateStatus: buyers read their orders but never move them.
func CanUpdateStatus(actor auth.Identity, o Order) bool {
	return actor.IsAdmin() || (actor.UID != "" && actor.UID == o.SellerID)
}

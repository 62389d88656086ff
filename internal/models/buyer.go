package models

// BuyerClass selects which service-charge rate applies to a purchase. It is
// resolved once at order-initiation time and baked into the order snapshot.
type BuyerClass string

const (
	BuyerClassNormal   BuyerClass = "normal"
	BuyerClassReseller BuyerClass = "reseller"
)

// Buyer is the identity the auth layer hands to the core. The core treats
// the flags as given and never derives them itself.
type Buyer struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	IsReseller   bool   `json:"is_reseller"`
	IsPrivileged bool   `json:"is_privileged"`
}

// Class maps the reseller flag to a buyer class.
func (b Buyer) Class() BuyerClass {
	if b.IsReseller {
		return BuyerClassReseller
	}
	return BuyerClassNormal
}

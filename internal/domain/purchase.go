package domain

import "time"

// PurchaseType selects one of the two products offered at checkout.
type PurchaseType string

const (
	PurchaseOneTime      PurchaseType = "one_time"
	PurchaseSubscription PurchaseType = "subscription"
)

// Product describes the single line item placed on a hosted checkout session.
type Product struct {
	Name        string
	Currency    string
	UnitAmount  int64 // minor units (cents)
	Recurring   bool
	Interval    string
	SessionMode string
}

var products = map[PurchaseType]Product{
	PurchaseOneTime: {
		Name:        "One-Time File Download",
		Currency:    "usd",
		UnitAmount:  100,
		SessionMode: "payment",
	},
	PurchaseSubscription: {
		Name:        "Unlimited Subscription",
		Currency:    "usd",
		UnitAmount:  500,
		Recurring:   true,
		Interval:    "month",
		SessionMode: "subscription",
	},
}

// ProductFor returns the product for a purchase type. ok is false for any
// value other than the two recognized literals.
func ProductFor(t PurchaseType) (Product, bool) {
	p, ok := products[t]
	return p, ok
}

// EntitlementLifetime is how long a redeemed purchase unlocks downloads.
func (t PurchaseType) EntitlementLifetime() time.Duration {
	if t == PurchaseSubscription {
		return 31 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// CheckoutRequest is everything the payment provider needs to mint a hosted
// checkout session.
type CheckoutRequest struct {
	Type           PurchaseType
	Product        Product
	SuccessURL     string
	CancelURL      string
	ObjectKey      string
	IdempotencyKey string
}

// CheckoutSession is the provider's view of a hosted checkout session.
type CheckoutSession struct {
	ID            string
	URL           string
	Status        string
	PaymentStatus string
	Type          PurchaseType
	ObjectKey     string
}

// Paid reports whether the provider considers the session settled.
func (s CheckoutSession) Paid() bool {
	if s.Status != "complete" {
		return false
	}
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

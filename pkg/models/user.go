package models

// User is created on first sign-in and never hard-deleted.
type User struct {
	ID              string `json:"id"`
	TokenIdentifier string `json:"tokenIdentifier"`
	Email           string `json:"email"`
	// SubscriptionEndsOn is epoch milliseconds, set by the billing callback.
	SubscriptionEndsOn *int64 `json:"subscriptionEndsOn,omitempty"`
	SubscriptionID     string `json:"subscriptionId,omitempty"`
}

// SubscriptionActive reports whether the subscription runs past nowMS.
func (u User) SubscriptionActive(nowMS int64) bool {
	return u.SubscriptionEndsOn != nil && *u.SubscriptionEndsOn > nowMS
}

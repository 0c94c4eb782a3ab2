package rewards

import (
	"fmt"

	"racestay-engine/pkg/errutil"
	"racestay-engine/services/ledger"
)

// Trigger identifies a platform event that earns points. The award table
// below is fixed; there is no per-tenant or rule-driven variation.
type Trigger string

const (
	TriggerPropertyAdded         Trigger = "property_added"
	TriggerRaceAdded             Trigger = "race_added"
	TriggerHostingCompleted      Trigger = "hosting_completed"
	TriggerFiveStarReview        Trigger = "five_star_review"
	TriggerVerificationApproved  Trigger = "verification_approved"
	TriggerSubscriptionPurchased Trigger = "subscription_purchased"
	TriggerSubscriptionRenewed   Trigger = "subscription_renewed"
)

const (
	propertyBonus       = 30
	raceBonus           = 40
	hostingPerNight     = 40
	fiveStarReviewBonus = 15
	verificationBonus   = 25
	subscriptionBonus   = 30
	subscriptionRenewal = 50
)

// Context carries the identifiers that scope an award. Which fields are
// required depends on the trigger.
type Context struct {
	PropertyID string `json:"property_id,omitempty"`
	RaceID     string `json:"race_id,omitempty"`
	BookingID  string `json:"booking_id,omitempty"`
	// EventID identifies one webhook delivery; required for renewals,
	// where every renewal event earns again.
	EventID string `json:"event_id,omitempty"`
	Nights  int    `json:"nights,omitempty"`
}

// award is one resolved row of the award table: how much, under which
// ledger kind, and the reference key enforcing its at-most-once scope.
type award struct {
	Amount      int64
	Kind        ledger.Kind
	ReferenceID string
	BookingID   string
	Description string
}

// resolve maps a trigger and its context onto the award table.
func resolve(userID string, trigger Trigger, c Context) (*award, error) {
	switch trigger {
	case TriggerPropertyAdded:
		if c.PropertyID == "" {
			return nil, errutil.BadRequest("property_id is required", nil)
		}
		return &award{
			Amount:      propertyBonus,
			Kind:        ledger.KindPropertyBonus,
			ReferenceID: c.PropertyID,
			Description: "Bonus for adding a property",
		}, nil

	case TriggerRaceAdded:
		if c.RaceID == "" {
			return nil, errutil.BadRequest("race_id is required", nil)
		}
		return &award{
			Amount:      raceBonus,
			Kind:        ledger.KindRaceBonus,
			ReferenceID: c.RaceID,
			Description: "Bonus for adding a race",
		}, nil

	case TriggerHostingCompleted:
		if c.BookingID == "" {
			return nil, errutil.BadRequest("booking_id is required", nil)
		}
		if c.Nights <= 0 {
			return nil, errutil.BadRequest("nights must be positive", nil)
		}
		return &award{
			Amount:      int64(c.Nights) * hostingPerNight,
			Kind:        ledger.KindBookingEarningHosting,
			ReferenceID: c.BookingID,
			BookingID:   c.BookingID,
			Description: fmt.Sprintf("Hosting reward for %d nights", c.Nights),
		}, nil

	case TriggerFiveStarReview:
		if c.BookingID == "" {
			return nil, errutil.BadRequest("booking_id is required", nil)
		}
		return &award{
			Amount:      fiveStarReviewBonus,
			Kind:        ledger.KindReviewBonus,
			ReferenceID: c.BookingID,
			BookingID:   c.BookingID,
			Description: "Bonus for a five-star review",
		}, nil

	case TriggerVerificationApproved:
		// Lifetime: the user ID itself is the scope key.
		return &award{
			Amount:      verificationBonus,
			Kind:        ledger.KindVerificationBonus,
			ReferenceID: userID,
			Description: "Identity verification bonus",
		}, nil

	case TriggerSubscriptionPurchased:
		// Lifetime first purchase; renewals use their own trigger.
		return &award{
			Amount:      subscriptionBonus,
			Kind:        ledger.KindSubscriptionBonus,
			ReferenceID: userID,
			Description: "New subscription bonus",
		}, nil

	case TriggerSubscriptionRenewed:
		if c.EventID == "" {
			return nil, errutil.BadRequest("event_id is required for renewals", nil)
		}
		return &award{
			Amount:      subscriptionRenewal,
			Kind:        ledger.KindSubscriptionBonus,
			ReferenceID: c.EventID,
			Description: "Subscription renewal bonus",
		}, nil

	default:
		return nil, errutil.BadRequest("unsupported trigger", nil)
	}
}

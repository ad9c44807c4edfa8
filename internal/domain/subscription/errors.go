package subscription

import "errors"

var (
	ErrNotFound                    = errors.New("subscription not found")
	ErrOrderNotFound               = errors.New("no subscription matches this order")
	ErrInvalidPlan                 = errors.New("unknown subscription plan")
	ErrInvalidDuration             = errors.New("unknown billing duration")
	ErrClinicNotFound              = errors.New("clinic not found")
	ErrDuplicateActiveSubscription = errors.New("clinic already has an active subscription")
	ErrSignatureMismatch           = errors.New("payment signature verification failed")
	ErrInvalidUpgradeDirection     = errors.New("upgrades must move to a higher plan")
	ErrNoActiveSubscription        = errors.New("clinic has no active subscription")
	ErrSubscriptionExpired         = errors.New("subscription has expired")
	ErrNoPendingUpgrade            = errors.New("no upgrade order is pending for this subscription")
	ErrInvalidState                = errors.New("subscription is not in a valid state for this operation")
)

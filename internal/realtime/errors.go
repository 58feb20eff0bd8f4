package realtime

import "github.com/textileio/starknet-indexer/pkg/apierrors"

// ErrSubscriptionLagged is the terminal error set on Subscription.Err when a
// subscriber's buffer overflows.
var ErrSubscriptionLagged = apierrors.New(apierrors.SubscriptionLagged, "subscription buffer overflowed")

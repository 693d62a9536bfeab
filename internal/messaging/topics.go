package messaging

import (
	"context"
	"errors"
)

const (
	TopicOrderSettled = "order.settled"
	TopicVendorPayout = "vendor.payout"

	SettlementNotifierGroup = "settlement-notifier"
	PayoutNotifierGroup     = "payout-notifier"

	// HeaderEventType names the payload schema, which is the topic it was
	// first published on.
	HeaderEventType   = "event-type"
	HeaderContentType = "content-type"
)

// ErrSkip marks a message that can never be processed, such as a payload that
// does not decode. The consumer logs it and moves past it.
var ErrSkip = errors.New("skip message")

// Handler processes one message payload. Returning an error other than one
// wrapping ErrSkip stops the consumer without committing the offset.
type Handler func(ctx context.Context, payload []byte) error

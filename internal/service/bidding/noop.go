package bidding

import (
	"context"

	"github.com/nezuni1812/bidhub/internal/domain/bid"
)

// NopNotifier drops every event. Useful for tools and tests that do not
// care about broadcast.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) {}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) RecordBidAccepted(bid.Origin)  {}
func (NopMetrics) RecordBidRejected(string)      {}
func (NopMetrics) RecordCascadeDepth(int)        {}
func (NopMetrics) RecordExtension()              {}
func (NopMetrics) RecordAuctionClosed(bool)      {}

package pull

import (
	"context"
	"time"
)

// PageFetcher retrieves one page of channel history starting at a cursor.
// The empty cursor means the start of pagination. Implementations classify
// remote failures into the RateLimited/Transient/Fatal taxonomy.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// ThreadExpander fetches all replies under a thread root, oldest first,
// excluding the root itself. It paginates internally.
type ThreadExpander interface {
	ExpandThread(ctx context.Context, channelID, threadTS string) ([]Message, error)
}

// ChannelLister enumerates channels on the remote platform. ListChannels
// returns only channels the service is a member of; ListAllChannels returns
// every visible channel with its membership flag.
type ChannelLister interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	ListAllChannels(ctx context.Context) ([]Channel, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

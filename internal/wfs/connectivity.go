package wfs

import "context"

// Connectivity reports whether the remote side is reachable. Watch streams
// observations (true for online) until ctx is done, then closes the channel.
// The first value is the current state.
type Connectivity interface {
	Watch(ctx context.Context) (<-chan bool, error)
}

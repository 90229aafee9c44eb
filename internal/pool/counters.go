package pool

import "sync/atomic"

// counters are cumulative and only ever increase.
type counters struct {
	created          atomic.Int64
	reused           atomic.Int64
	closed           atomic.Int64
	healthChecks     atomic.Int64
	healthFailures   atomic.Int64
	databasesCleaned atomic.Int64
	evictions        atomic.Int64
}

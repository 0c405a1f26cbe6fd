package patcher

import "github.com/ethereum/go-ethereum/metrics"

var (
	patchedCounter  = metrics.NewRegisteredCounter("evmrepair/patched", nil)
	failedCounter   = metrics.NewRegisteredCounter("evmrepair/failed", nil)
	cacheHitCounter = metrics.NewRegisteredCounter("evmrepair/cache/hit", nil)
	guardCounter    = metrics.NewRegisteredCounter("evmrepair/guards", nil)
	skippedCounter  = metrics.NewRegisteredCounter("evmrepair/skipped", nil)
	patchTimer      = metrics.NewRegisteredTimer("evmrepair/patch", nil)
)

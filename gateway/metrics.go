package gateway

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// metrics
var (
	submittedMeter = metrics.NewRegisteredMeter("gateway/request/submitted", nil)
	completedMeter = metrics.NewRegisteredMeter("gateway/request/completed", nil)
	failedMeter    = metrics.NewRegisteredMeter("gateway/request/failed", nil)
	retriedMeter   = metrics.NewRegisteredMeter("gateway/request/retried", nil)
	timeoutMeter   = metrics.NewRegisteredMeter("gateway/request/timeout", nil)
	reapedMeter    = metrics.NewRegisteredMeter("gateway/request/reaped", nil)

	pendingGauge    = metrics.NewRegisteredGauge("gateway/queue/pending", nil)
	processingGauge = metrics.NewRegisteredGauge("gateway/queue/processing", nil)

	dispatchTimer = metrics.NewRegisteredTimer("gateway/dispatch", nil)
	limitedMeter  = metrics.NewRegisteredMeter("gateway/ratelimit/skipped", nil)
)

func metricsDispatchCost(start time.Time) {
	dispatchTimer.Update(time.Since(start))
}

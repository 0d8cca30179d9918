package analysis

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/chainsentry/chainsentry/types"
)

// metrics
var (
	jobCompletedMeters = map[types.TaskType]*metrics.Meter{}
	jobFailedMeters    = map[types.TaskType]*metrics.Meter{}
	jobTimers          = map[types.TaskType]*metrics.Timer{}

	scheduledScansMeter = metrics.NewRegisteredMeter("analysis/scheduler/scans", nil)
	reapedJobsMeter     = metrics.NewRegisteredMeter("analysis/jobs/reaped", nil)
	alertsSentMeter     = metrics.NewRegisteredMeter("analysis/alerts/sent", nil)
)

func init() {
	for _, task := range types.AllTasks {
		name := string(task)
		jobCompletedMeters[task] = metrics.NewRegisteredMeter("analysis/"+name+"/completed", nil)
		jobFailedMeters[task] = metrics.NewRegisteredMeter("analysis/"+name+"/failed", nil)
		jobTimers[task] = metrics.NewRegisteredTimer("analysis/"+name+"/duration", nil)
	}
}

func metricsJobDone(task types.TaskType, start time.Time, failed bool) {
	jobTimers[task].Update(time.Since(start))
	if failed {
		jobFailedMeters[task].Mark(1)
	} else {
		jobCompletedMeters[task].Mark(1)
	}
}

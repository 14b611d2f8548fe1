package liteserv

import (
	"github.com/VictoriaMetrics/metrics"
)

var (
	launchesTotal     = metrics.NewCounter(`liteservenv_launches_total`)
	launchErrorsTotal = metrics.NewCounter(`liteservenv_launch_errors_total`)
	exitsTotal        = metrics.NewCounter(`liteservenv_unexpected_exits_total`)
	readyDuration     = metrics.NewHistogram(`liteservenv_ready_duration_seconds`)
)

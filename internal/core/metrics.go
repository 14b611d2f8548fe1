package core

import (
	"github.com/VictoriaMetrics/metrics"
)

var (
	acquiresTotal             = metrics.NewCounter(`liteservenv_pool_acquires_total`)
	acquireErrorsTotal        = metrics.NewCounter(`liteservenv_pool_acquire_errors_total`)
	acquireDuration           = metrics.NewHistogram(`liteservenv_pool_acquire_duration_seconds`)
	releaseFailuresTotal      = metrics.NewCounter(`liteservenv_pool_release_failures_total`)
	instanceStartsTotal       = metrics.NewCounter(`liteservenv_instance_starts_total`)
	instanceStartRetriesTotal = metrics.NewCounter(`liteservenv_instance_start_retries_total`)
	instanceStartDuration     = metrics.NewHistogram(`liteservenv_instance_start_duration_seconds`)
	deletedDatabasesTotal     = metrics.NewCounter(`liteservenv_cleanup_deleted_databases_total`)
)

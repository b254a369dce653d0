// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "runs_total",
		Help:      "Analysis runs started.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "driftline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one analysis run.",
		Buckets:   prometheus.DefBuckets,
	})

	workflowsAffected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "workflows_affected_total",
		Help:      "Workflows implicated by analyzed changesets.",
	})

	docsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "docs_updated_total",
		Help:      "Design documents rewritten with validated diagrams.",
	})

	validationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "validation_failures_total",
		Help:      "Diagrams rejected after exhausting repair rounds.",
	})
)

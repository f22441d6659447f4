// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("testsync.collection")

// Drop reasons used as the "reason" label.
const (
	dropOrphan    = "orphan"
	dropDuplicate = "duplicate"
	dropStale     = "stale"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testsync_collection_ops_total",
		Help: "Diff operations applied, by op type",
	}, []string{"op"})

	opsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testsync_collection_ops_dropped_total",
		Help: "Diff operations dropped or ignored, by reason",
	}, []string{"reason"})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "testsync_collection_batch_size",
		Help:    "Number of operations per applied batch",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
	})
)

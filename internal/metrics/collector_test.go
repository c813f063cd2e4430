package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.RecordAction("approve", "approved")
	c.RecordAction("approve", "approved")
	c.RecordFailure("reject", "unauthorized")
	c.RecordFailure("hold", "")
	c.RecordConflict()
	c.RecordAutoApprovals(2)
	c.RecordAutoApprovals(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.actionsTotal.WithLabelValues("approve", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actionFailures.WithLabelValues("reject", "unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actionFailures.WithLabelValues("hold", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conflictsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.autoApprovalsTotal))
}

func TestCollectorHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("test", reg)

	c.RecordHTTPRequest("GET", "/api/applications", 200, 20*time.Millisecond)
	c.ObserveProcessingTime("approved", 26*time.Hour)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/applications", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.processingDuration))

	// Registering twice on one registry must fail loudly.
	assert.Panics(t, func() { NewCollector("test", reg) })
}

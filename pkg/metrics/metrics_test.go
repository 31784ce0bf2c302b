package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsRepeatable(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterPipelineMetrics()
		RegisterPipelineMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterKafkaMetrics()
		RegisterRelayMetrics()
		RegisterRelayMetrics()
	})
}

func TestHelpersUpdateCollectors(t *testing.T) {
	before := testutil.ToFloat64(PayloadsDroppedTotal.WithLabelValues("oversized"))
	AddPayloadsDropped("oversized", 2)
	assert.Equal(t, before+2, testutil.ToFloat64(PayloadsDroppedTotal.WithLabelValues("oversized")))

	SetDispatchQueueSize("metrics-test", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(DispatchQueueSize.WithLabelValues("metrics-test")))

	before = testutil.ToFloat64(UploadBatchesTotal.WithLabelValues("success"))
	IncUploadBatch("success")
	ObserveUploadDuration("success", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(UploadBatchesTotal.WithLabelValues("success")))
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	assert.Panics(t, func() { NewCollector(reg) }, "duplicate registration must panic")
	assert.NotPanics(t, func() { NewCollector(prometheus.NewRegistry()) })
}

func TestRecord(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordRead()
	c.RecordRead()
	c.RecordCommit(10 * time.Millisecond)
	c.RecordAbort("constraint_violation")
	c.RecordAppend(128, time.Millisecond)
	c.RecordAppend(64, time.Millisecond)
	c.RecordSnapshot(3)
	c.SetRecovery(2*time.Second, 17)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.readUnits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writeUnits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writeAborts.WithLabelValues("constraint_violation")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.appended))
	assert.Equal(t, 192.0, testutil.ToFloat64(c.appendedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshots))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.logRetained))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.recoveryTime))
	assert.Equal(t, 17.0, testutil.ToFloat64(c.recoveryReplayed))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRead()
		c.RecordCommit(time.Second)
		c.RecordAbort("unavailable")
		c.RecordAppend(1, time.Second)
		c.RecordSnapshot(0)
		c.SetRecovery(time.Second, 1)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRead()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "schedstore_read_units_total 1")
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestInstrumentHandlerRecordsMetrics(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/group/42", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, metricCounterGreaterOrEqual(t, "social_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/group/:id",
		"status": "202",
	}, 1))
	require.True(t, metricHistogramCountGreaterOrEqual(t, "social_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/group/:id",
	}, 1))
}

func TestInstrumentHandlerMetricsPathPassthrough(t *testing.T) {
	called := false
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, called)
}

func TestRecordRequestCreatedAndAcquired(t *testing.T) {
	RecordRequestCreated("group")
	require.True(t, metricCounterGreaterOrEqual(t, "social_requests_created_total", map[string]string{"type": "group"}, 1))

	RecordRequestAcquired("group", "ok")
	require.True(t, metricCounterGreaterOrEqual(t, "social_requests_acquired_total", map[string]string{"type": "group", "outcome": "ok"}, 1))
}

func TestRecordRequestsSweptSkipsZero(t *testing.T) {
	RecordRequestsSwept(0)
	RecordRequestsSwept(5)
	require.True(t, metricCounterGreaterOrEqual(t, "social_requests_expired_swept_total", map[string]string{}, 5))
}

func TestRecordGroupJoin(t *testing.T) {
	RecordGroupJoin("full")
	require.True(t, metricCounterGreaterOrEqual(t, "social_groups_join_attempts_total", map[string]string{"outcome": "full"}, 1))
}

func TestRecordNotificationFailure(t *testing.T) {
	RecordNotificationFailure("group_request")
	require.True(t, metricCounterGreaterOrEqual(t, "social_rpc_notification_failures_total", map[string]string{"event": "group_request"}, 1))
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct{ input, expected string }{
		{"", "/"},
		{"/", "/"},
		{"/group/create", "/group/create"},
		{"/group/42", "/group/:id"},
		{"/group/42/join", "/group/:id/join"},
		{"/connection/7/approve", "/connection/:id/approve"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, canonicalPath(tt.input), tt.input)
	}
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: 0}
	n, err := sr.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, http.StatusOK, sr.status)
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

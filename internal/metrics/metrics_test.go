package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebovdev/livetv-cli/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPlaybackFailure(t *testing.T) {
	before := testutil.ToFloat64(metrics.PlaybackFailures.WithLabelValues(metrics.ReasonTimeout))

	metrics.RecordPlaybackFailure(metrics.ReasonTimeout)

	after := testutil.ToFloat64(metrics.PlaybackFailures.WithLabelValues(metrics.ReasonTimeout))
	if after != before+1 {
		t.Errorf("playback failures = %v, want %v", after, before+1)
	}
}

func TestRecordCatalogLoad(t *testing.T) {
	success := testutil.ToFloat64(metrics.CatalogLoads.WithLabelValues(metrics.ResultSuccess))
	failure := testutil.ToFloat64(metrics.CatalogLoads.WithLabelValues(metrics.ResultFailure))

	metrics.RecordCatalogLoad(nil)
	metrics.RecordCatalogLoad(errors.New("boom"))

	if got := testutil.ToFloat64(metrics.CatalogLoads.WithLabelValues(metrics.ResultSuccess)); got != success+1 {
		t.Errorf("successful loads = %v, want %v", got, success+1)
	}
	if got := testutil.ToFloat64(metrics.CatalogLoads.WithLabelValues(metrics.ResultFailure)); got != failure+1 {
		t.Errorf("failed loads = %v, want %v", got, failure+1)
	}
}

func TestMetricsExposed(t *testing.T) {
	metrics.ObserveStartupLatency(750 * time.Millisecond)
	metrics.SessionsStarted.Inc()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		"livetv_sessions_started_total",
		"livetv_startup_latency_seconds",
		"livetv_active_sessions",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

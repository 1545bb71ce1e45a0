package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sdrvault/sdrvault/internal/metrics"
)

func TestInstrumentedGatewayCountsCalls(t *testing.T) {
	mem := NewMemoryGateway()
	seed(t, mem)
	gw := Instrument(mem)
	ctx := context.Background()

	listOK := testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("ListKeys", "success"))
	downloadErr := testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("Download", "error"))

	if _, err := gw.ListKeys(ctx, "sdr", "/2020-02-10"); err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if _, err := gw.Download(ctx, "sdr", "/missing", filepath.Join(t.TempDir(), "m")); err == nil {
		t.Fatal("Download of a missing key should fail")
	}

	if got := testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("ListKeys", "success")); got != listOK+1 {
		t.Errorf("ListKeys success = %v, want %v", got, listOK+1)
	}
	if got := testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("Download", "error")); got != downloadErr+1 {
		t.Errorf("Download error = %v, want %v", got, downloadErr+1)
	}
}

package storage

import (
	"context"
	"time"

	"github.com/sdrvault/sdrvault/internal/metrics"
)

// InstrumentedGateway records Prometheus metrics around every call of the
// wrapped Gateway.
type InstrumentedGateway struct {
	Gateway
}

// Instrument wraps gw so that each call updates the store operation metrics.
func Instrument(gw Gateway) *InstrumentedGateway {
	return &InstrumentedGateway{Gateway: gw}
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (g *InstrumentedGateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := g.Gateway.ListKeys(ctx, bucket, prefix)
	observe("ListKeys", start, err)
	return keys, err
}

func (g *InstrumentedGateway) Download(ctx context.Context, bucket, key, destPath string) (int64, error) {
	start := time.Now()
	n, err := g.Gateway.Download(ctx, bucket, key, destPath)
	observe("Download", start, err)
	return n, err
}

func (g *InstrumentedGateway) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := g.Gateway.HealthCheck(ctx)
	observe("HealthCheck", start, err)
	return err
}

var _ Gateway = (*InstrumentedGateway)(nil)

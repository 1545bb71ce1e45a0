package metrics

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/readyz", "/readyz"},
		{"/docs", "/docs"},
		{"/docs/", "/docs"},
		{"/docs/something", "/docs"},
		{"/metrics", "/metrics"},
		{"/openapi.json", "/openapi.json"},
		{"/", "/"},
		{"", "/"},
		{"/filelist/2020-02-10", "/filelist/{date}"},
		{"/filelist/2020-02-10/120_5MHz", "/filelist/{date}/{freq}"},
		{"/freqlist/2020-02-10", "/freqlist/{date}"},
		{"/preparefiles/2020-02-10_12-00/2", "/preparefiles/{start}/{duration}"},
		{"/preparefiles/2020-02-10_12-00/2/90MHz", "/preparefiles/{start}/{duration}/{freq}"},
		{"/getaudiofile/3f2a/2020_02_10__12_00_00.wav", "/getaudiofile/{uuid}/{filename}"},
		{"/clear", "/clear"},
		{"/clear/", "/clear"},
		{"/clear/3f2a", "/clear/{uuid}"},
		{"/clear/a/b", "/other"},
		{"/unknown/thing", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetricsRegistered(t *testing.T) {
	Register()
	Register()

	// Verify that calling Inc/Set on metrics does not panic.
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/health").Observe(0.001)
	HTTPResponseSize.WithLabelValues("GET", "/getaudiofile/{uuid}/{filename}").Observe(2048)
	BytesSentTotal.Add(2048)
	StoreOperationsTotal.WithLabelValues("Download", "error").Inc()
	StoreOperationDuration.WithLabelValues("Download").Observe(0.2)
	WorkspacesPreparedTotal.WithLabelValues("success").Inc()
	WorkspacesClearedTotal.Add(3)
	ObjectsStagedTotal.Inc()
	BytesStagedTotal.Add(4096)
	TranscodesTotal.WithLabelValues("oggdec", "success").Inc()
	TranscodeDuration.WithLabelValues("oggdec").Observe(0.5)
}

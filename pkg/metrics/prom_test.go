package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(ProviderOperations.WithLabelValues("getOne", "metrics_test", OutcomeOK))
	failedBefore := testutil.ToFloat64(ProviderOperations.WithLabelValues("getOne", "metrics_test", OutcomeError))

	ObserveOperation("getOne", "metrics_test", time.Now(), nil)
	ObserveOperation("getOne", "metrics_test", time.Now(), errors.New("boom"))
	ObserveOperation("getOne", "metrics_test", time.Now(), nil)

	assert.Equal(t, before+2, testutil.ToFloat64(ProviderOperations.WithLabelValues("getOne", "metrics_test", OutcomeOK)))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(ProviderOperations.WithLabelValues("getOne", "metrics_test", OutcomeError)))
}

func TestStartPrometheusServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	StartPrometheusServer(ctx, &wg, &PromServerOpts{Addr: addr})

	SkippedRequests.WithLabelValues("update").Inc()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "dataprovider_skipped_requests_total"))

	cancel()
	wg.Wait()
}

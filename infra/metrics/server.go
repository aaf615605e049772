package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetops/dispatchd/infra/logger"
)

// StartPromServer exposes /metrics on the given port. It blocks until ctx is
// cancelled or the listener fails; run it on its own goroutine.
func StartPromServer(ctx context.Context, port string) error {
	log := logger.New("metrics-server")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Errorf("metrics server shutdown: %v", err)
		}
	}()

	log.Infof("metrics server listening on :%s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

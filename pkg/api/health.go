package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/gpubox/pkg/metrics"
)

// Probe checks one dependency for readiness
type Probe func(ctx context.Context) error

const probeTimeout = 5 * time.Second

// readyHandler runs every probe, records the outcome in the health registry
// and answers with the resulting readiness
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	for name, probe := range s.probes {
		err := probe(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("component", name).Msg("Readiness probe failed")
		}
		metrics.ReportError(name, err)
	}
	metrics.ReadyHandler().ServeHTTP(w, r)
}

package api

import (
	"context"
	"net/http"

	"shopping-lists/internal/metrics"
)

// StoreProbe returns a probe that performs one read against the store.
// User 0 never exists, so only an unreachable store makes it fail.
func (s *Server) StoreProbe() metrics.Probe {
	return func(ctx context.Context) error {
		_, err := s.store.GetUser(ctx, 0)
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := metrics.Collect(r.Context(), string(s.backend), s.StoreProbe(), s.dataPath)
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

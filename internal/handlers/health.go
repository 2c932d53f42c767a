package handlers

import "net/http"

type healthResponse struct {
	Status   string          `json:"status"`
	Degraded map[string]bool `json:"degraded,omitempty"`
}

// Health implements spec §6's `GET /health`: liveness plus degraded
// flags (spec §4.8 "a non-critical failure marks the corresponding
// subsystem DEGRADED and records it").
func (s *Server) Health(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var degraded map[string]bool
	if s.Degraded != nil {
		degraded = s.Degraded()
	}
	return healthResponse{Status: "ok", Degraded: degraded}, nil
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/herdguard/herdguard-server/internal/engine"
)

// ========== Fix handlers ==========

// HandleSubmitFix accepts a location fix over HTTP and forwards it onto
// the tracking stream. The API server does not evaluate fixes itself;
// the tracking server consumes them from NATS like any other producer's.
func (s *RESTServer) HandleSubmitFix(w http.ResponseWriter, r *http.Request) {
	var in engine.FixInput

	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := in.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := json.Marshal(in)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to encode fix")
		return
	}

	subject := fmt.Sprintf("tracker.%s.fix", in.TrackerID)
	if err := s.pub.Publish(subject, data); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "failed to queue fix")
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"tracker_id": in.TrackerID,
		"queued":     true,
	})
}

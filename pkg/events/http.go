// pkg/events/http.go
package events

import (
	"encoding/json"
	"net/http"

	"chartex/pkg/problems"
)

// HTTPHandler bridges orchestrator deliveries arriving over HTTP to the
// dispatcher. The reply body is the Outcome; redelivery scheduling stays on
// the orchestrator side.
func HTTPHandler(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			problems.Write(w, problems.InvalidRequest, "malformed event envelope")
			return
		}
		if evt.Type == "" || evt.InstallationID == "" {
			problems.Write(w, problems.InvalidRequest, "event needs type and installation_id")
			return
		}
		out := d.Dispatch(r.Context(), evt)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// pkg/problems/http.go
package problems

import (
	"encoding/json"
	"net/http"
)

// Body is the wire shape of a structured error response.
type Body struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// WriteError renders err as a problem response. Unclassified errors come out
// as a 502 transient problem so callers can distinguish them from caller errors.
func WriteError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	body := Body{
		Type:   Type(string(kind)),
		Title:  string(kind),
		Status: StatusCode(kind),
		Detail: err.Error(),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(body.Status)
	_ = json.NewEncoder(w).Encode(body)
}

// Write renders an explicit kind with a detail message.
func Write(w http.ResponseWriter, kind Kind, detail string) {
	body := Body{
		Type:   Type(string(kind)),
		Title:  string(kind),
		Status: StatusCode(kind),
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(body.Status)
	_ = json.NewEncoder(w).Encode(body)
}

package api

import (
	"net/http"

	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/server"
)

// HealthResponse is the liveness body. It is not enveloped.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: domain.FormatTimestamp(server.Now()),
	})
}

// HealthOperation documents a health route mounted at path.
func HealthOperation(path string) Operation {
	return Operation{
		Method:      http.MethodGet,
		Path:        path,
		Summary:     "Health check",
		Description: "Returns the health status of the API",
		Tags:        []string{"System"},
		Response:    HealthResponse{},
	}
}

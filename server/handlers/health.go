package handlers

import "net/http"

// HandleHealth is a simple health check handler that returns "ok".
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, "text/plain", "ok")
}

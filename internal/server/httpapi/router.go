package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sonifoy/authsvc/internal/logging"
)

// BasePath prefixes every auth route.
const BasePath = "/api/v1/auth"

// NewRouter registers the auth routes and the health probe.
func NewRouter(auth AuthService, logger logging.Logger) *mux.Router {
	h := &handler{auth: auth, logger: logger}

	r := mux.NewRouter()
	r.Use(loggingMiddleware(logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "OK"); err != nil {
			logger.Warn(r.Context(), "error writing health response", "error", err)
		}
	}).Methods(http.MethodGet)

	api := r.PathPrefix(BasePath).Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, r, http.StatusMethodNotAllowed, &ErrorResponse{Code: CodeMethodNotAllowed, Message: "method not allowed"})
	})
	api.HandleFunc("/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/verify", h.verify).Methods(http.MethodPost)
	api.HandleFunc("/resend-verify", h.resendVerify).Methods(http.MethodPost)
	api.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	return r
}

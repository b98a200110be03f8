// Package api implements the HTTP surface of the storage gateway.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/burrowfs/burrow/internal/events"
	"github.com/burrowfs/burrow/internal/logging"
	"github.com/burrowfs/burrow/internal/metrics"
	"github.com/burrowfs/burrow/internal/session"
	"github.com/burrowfs/burrow/internal/storage"
	"github.com/burrowfs/burrow/pkg/protocol"
)

// Server wires the storage gateway to HTTP.
type Server struct {
	gateway       *storage.Gateway
	broadcaster   *events.Broadcaster
	verifier      *session.Verifier
	maxUploadSize int64
}

// NewServer creates the API server.
func NewServer(gateway *storage.Gateway, broadcaster *events.Broadcaster, verifier *session.Verifier, maxUploadSize int64) *Server {
	return &Server{
		gateway:       gateway,
		broadcaster:   broadcaster,
		verifier:      verifier,
		maxUploadSize: maxUploadSize,
	}
}

// Handler returns the complete HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	authed := http.NewServeMux()
	authed.HandleFunc("GET /api/v1/storage/{path...}", s.handleGet)
	authed.HandleFunc("POST /api/v1/storage/{path...}", s.handlePost)
	authed.HandleFunc("DELETE /api/v1/storage/{path...}", s.handleDelete)
	authed.HandleFunc("GET /api/v1/storage", s.handleNoTenant)
	authed.HandleFunc("POST /api/v1/storage", s.handleNoTenant)
	authed.HandleFunc("DELETE /api/v1/storage", s.handleNoTenant)
	authed.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.Handle("/api/v1/", s.verifier.Middleware(authed))

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNoTenant catches requests that name no tenant at all. The
// storage root is never addressable.
func (s *Server) handleNoTenant(w http.ResponseWriter, r *http.Request) {
	sendError(w, http.StatusForbidden, "forbidden")
}

// target is a parsed and authorized request path.
type target struct {
	tenant storage.Tenant
	path   storage.VirtualPath
}

// parseTarget splits the wildcard into tenant and virtual path and
// checks the caller may address that tenant.
func (s *Server) parseTarget(w http.ResponseWriter, r *http.Request) (target, bool) {
	raw := strings.Trim(r.PathValue("path"), "/")
	if raw == "" {
		// Only slashes or an empty wildcard: no tenant named.
		sendError(w, http.StatusForbidden, "forbidden")
		return target{}, false
	}

	rawTenant, rawPath, _ := strings.Cut(raw, "/")
	tenant, err := storage.ParseTenant(rawTenant)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid tenant")
		return target{}, false
	}
	vp, err := storage.ParsePath(rawPath)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid path")
		return target{}, false
	}

	identity := session.FromContext(r.Context())
	if identity == nil || !identity.CanAccess(tenant) {
		logging.Warn("tenant access denied",
			zap.String("tenant", string(tenant)),
			zap.String("request_id", logging.GetRequestID(r.Context())))
		sendError(w, http.StatusForbidden, "forbidden")
		return target{}, false
	}

	return target{tenant: tenant, path: vp}, true
}

// sendStorageError maps gateway errors onto HTTP statuses. OS detail
// never reaches the response; the gateway already logged it.
func sendStorageError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		// Client went away; nothing useful to send.
		return
	}
	switch {
	case errors.Is(err, storage.ErrInvalidSegment):
		sendError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, storage.ErrEscape):
		metrics.RecordEscapeAttempt()
		logging.Warn("confinement violation",
			zap.String("request_id", logging.GetRequestID(r.Context())),
			zap.Error(err))
		sendError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, storage.ErrNotFound):
		sendError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		sendError(w, http.StatusConflict, "already exists")
	case errors.Is(err, storage.ErrNotADirectory), errors.Is(err, storage.ErrIsDirectory):
		sendError(w, http.StatusConflict, "wrong entry kind")
	default:
		sendError(w, http.StatusInternalServerError, "storage failure")
	}
}

func sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// toWire converts a gateway descriptor to its wire form.
func toWire(d storage.Descriptor) protocol.Descriptor {
	out := protocol.Descriptor{
		Filename:     d.Filename,
		Kind:         d.Kind.String(),
		Created:      d.Created,
		LastAccess:   d.LastAccess,
		LastModified: d.LastModified,
	}
	switch d.Kind {
	case storage.KindFile:
		size := d.Size
		out.Size = &size
	case storage.KindDirectory:
		children := d.Children
		out.Children = &children
	}
	return out
}

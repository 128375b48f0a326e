// Package api serves the engine over HTTP: statement text in, response
// envelope out.
package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/guileen/docsql/engine"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/modules"
	"github.com/guileen/docsql/types"
)

// maxBodySize bounds request bodies.
const maxBodySize = 4 << 20

type RESTHandler struct {
	engine *engine.Engine
}

func NewRESTHandler(e *engine.Engine) *RESTHandler {
	return &RESTHandler{engine: e}
}

// NewRouter returns a chi router with the handler's routes and the standard
// middleware stack.
func NewRouter(e *engine.Engine) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if e.Config().HTTP.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	NewRESTHandler(e).RegisterRoutes(r)
	return r
}

func (h *RESTHandler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.Query)
	r.Post("/reducer", h.Reducer)
	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", h.engine.Metrics().Handler())
}

// QueryRequest is the body of POST /query. TxID continues a transaction
// begun by an earlier request; Database selects the database to run in.
type QueryRequest struct {
	SQL      string `json:"sql"`
	TxID     string `json:"tx_id,omitempty"`
	Database string `json:"database,omitempty"`
}

// ReducerResponse is the reply of POST /reducer.
type ReducerResponse struct {
	Status  uint16          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type HealthResponse struct {
	Status    string   `json:"status"`
	Databases []string `json:"databases"`
}

// Query runs the statements of the request in a fresh session. The HTTP
// status mirrors the envelope status. Transactions are not rolled back when
// the request ends; the client continues them by tx_id.
func (h *RESTHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeEnvelope(w, types.Failure(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if req.SQL == "" {
		writeEnvelope(w, types.Failure(http.StatusBadRequest, "sql is required"))
		return
	}

	ctx := r.Context()
	s, err := h.session(r)
	if err != nil {
		writeEnvelope(w, failure(err))
		return
	}
	if req.Database != "" {
		if err := s.Use(ctx, req.Database); err != nil {
			writeEnvelope(w, failure(err))
			return
		}
	}
	s.SetTxID(req.TxID)

	writeEnvelope(w, s.Execute(ctx, req.SQL))
}

// Reducer validates a reducer envelope and forwards it to the module host.
func (h *RESTHandler) Reducer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ReducerResponse{Status: http.StatusBadRequest, Message: err.Error()})
		return
	}
	s, err := h.session(r)
	if err == nil && h.engine.Config().Auth.RequireAuth && s.User() == "" {
		err = dberrors.NewAuthErrorf("reducer", "authentication required")
	}
	if err != nil {
		writeJSON(w, int(dberrors.Status(err)), ReducerResponse{Status: dberrors.Status(err), Message: err.Error()})
		return
	}

	env, err := modules.ValidateEnvelope(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ReducerResponse{Status: http.StatusBadRequest, Message: err.Error()})
		return
	}
	args, err := env.Arguments()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ReducerResponse{Status: http.StatusBadRequest, Message: err.Error()})
		return
	}

	result, err := h.engine.Modules().Host().Call(r.Context(), env.Module, env.Function, args)
	if err != nil {
		logger.WarnContext(r.Context(), "reducer call failed", logger.Component("api"),
			logger.String("module", env.Module), logger.String("function", env.Function), logger.ErrorField(err))
		status := dberrors.Status(err)
		writeJSON(w, int(status), ReducerResponse{Status: status, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ReducerResponse{Status: http.StatusOK, Message: "OK", Result: result})
}

func (h *RESTHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Databases: h.engine.Databases()})
}

// session opens a session, authenticated from basic auth credentials when
// present. Without credentials the session is anonymous and the engine
// decides whether that is allowed.
func (h *RESTHandler) session(r *http.Request) (*engine.Session, error) {
	s := h.engine.NewSession()
	if user, password, ok := r.BasicAuth(); ok {
		if err := s.Authenticate(r.Context(), user, password); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func failure(err error) *types.Response {
	return types.Failure(dberrors.Status(err), err.Error())
}

func writeEnvelope(w http.ResponseWriter, resp *types.Response) {
	writeJSON(w, int(resp.Status), resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("write response", logger.Component("api"), logger.ErrorField(err))
	}
}

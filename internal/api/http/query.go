package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/observability"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/dispatcher"
	"github.com/g302ge/cnosdb/pkg/types"
)

// SQLRequest is the body of POST /v1/sql. Empty catalog, database and user
// fall back to the session defaults.
type SQLRequest struct {
	SQL      string `json:"sql"`
	Catalog  string `json:"catalog,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
}

// StatementResult is the output of one statement.
type StatementResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// SQLResponse holds one result per statement, in order.
type SQLResponse struct {
	QueryID         string            `json:"query_id"`
	Results         []StatementResult `json:"results"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	RequestID       string            `json:"request_id"`
}

// QueryHandler serves the SQL and query introspection endpoints.
type QueryHandler struct {
	dispatcher dispatcher.QueryDispatcher
	tracker    *observability.QueryTracker
}

// NewQueryHandler creates a handler. tracker may be nil, which disables
// the running-queries listing.
func NewQueryHandler(d dispatcher.QueryDispatcher, tracker *observability.QueryTracker) *QueryHandler {
	return &QueryHandler{dispatcher: d, tracker: tracker}
}

// NewRouter mounts the API under /v1.
func NewRouter(h *QueryHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware, RecoveryMiddleware, CorrelationIDMiddleware, AccessLogMiddleware, ContentTypeMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sql", h.ExecuteSQL)
		r.Get("/queries", h.ListQueries)
		r.Get("/queries/{queryID}", h.GetQuery)
		r.Get("/stats/tables", h.TableStats)
	})
	return r
}

// ExecuteSQL handles POST /v1/sql.
func (h *QueryHandler) ExecuteSQL(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var req SQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql is required", requestID)
		return
	}

	id, err := h.dispatcher.CreateQueryID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create query id: %v", err), requestID)
		return
	}

	start := time.Now()
	q := query.NewQuery(query.QueryContext{User: req.User, Catalog: req.Catalog, Database: req.Database}, req.SQL)
	outputs, err := h.dispatcher.ExecuteQuery(r.Context(), id, q)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("query_id", id.String()).Str("request_id", requestID).Msg("query failed")
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: cerrors.GetCode(err), RequestID: requestID})
		return
	}

	resp := SQLResponse{
		QueryID:   id.String(),
		Results:   make([]StatementResult, 0, len(outputs)),
		RequestID: requestID,
	}
	for _, out := range outputs {
		res := StatementResult{Columns: out.ColumnNames(), Rows: out.Rows()}
		out.Release()
		if res.Columns == nil {
			res.Columns = []string{}
		}
		resp.Results = append(resp.Results, res)
	}
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()

	writeJSON(w, http.StatusOK, resp)
}

// queryInfoResponse is the JSON form of observability.QueryInfo.
type queryInfoResponse struct {
	QueryID  string    `json:"query_id"`
	User     string    `json:"user"`
	Catalog  string    `json:"catalog"`
	Database string    `json:"database"`
	SQL      string    `json:"sql"`
	State    string    `json:"state"`
	Started  time.Time `json:"started"`
}

func toQueryInfoResponse(info observability.QueryInfo) queryInfoResponse {
	return queryInfoResponse{
		QueryID:  info.QueryID.String(),
		User:     info.User,
		Catalog:  info.Catalog,
		Database: info.Database,
		SQL:      info.SQL,
		State:    info.State.String(),
		Started:  info.Started,
	}
}

// ListQueries handles GET /v1/queries.
func (h *QueryHandler) ListQueries(w http.ResponseWriter, r *http.Request) {
	infos := []queryInfoResponse{}
	if h.tracker != nil {
		for _, info := range h.tracker.Running() {
			infos = append(infos, toQueryInfoResponse(info))
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

// GetQuery handles GET /v1/queries/{queryID}.
func (h *QueryHandler) GetQuery(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, err := types.ParseQueryID(chi.URLParam(r, "queryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid query id: %v", err), requestID)
		return
	}
	info, ok := h.dispatcher.QueryInfo(id)
	if !ok {
		writeError(w, http.StatusNotFound, "query not running", requestID)
		return
	}
	writeJSON(w, http.StatusOK, toQueryInfoResponse(info))
}

// defaultTableStatsLimit is the number of tables GET /v1/stats/tables
// returns without a limit parameter.
const defaultTableStatsLimit = 10

// tableStatsResponse is the JSON form of observability.TableStats.
type tableStatsResponse struct {
	Database  string         `json:"database"`
	Table     string         `json:"table"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Kinds     map[string]int `json:"kinds"`
}

// TableStats handles GET /v1/stats/tables?limit=n, listing the most
// accessed tables first.
func (h *QueryHandler) TableStats(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	limit := defaultTableStatsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", v), requestID)
			return
		}
		limit = n
	}

	stats := []tableStatsResponse{}
	if h.tracker != nil {
		for _, s := range h.tracker.Stats().TopTables(limit) {
			stats = append(stats, tableStatsResponse{
				Database:  s.Table.Database,
				Table:     s.Table.Table,
				Frequency: s.Frequency,
				LastSeen:  s.LastSeen,
				Kinds:     s.Kinds,
			})
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// statusFor maps an error chain to an HTTP status. Causes are checked
// before the stage that wrapped them.
func statusFor(err error) int {
	switch {
	case cerrors.HasCode(err, cerrors.ErrCategoryQuery, cerrors.CodeRequestLimit):
		return http.StatusTooManyRequests
	case cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseNotFound),
		cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeTableNotFound),
		cerrors.HasCode(err, cerrors.ErrCategoryStorage, cerrors.CodeObjectNotFound):
		return http.StatusNotFound
	case cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseExists),
		cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeTableExists):
		return http.StatusConflict
	case hasCategory(err, cerrors.ErrCategoryValidation),
		cerrors.HasCode(err, cerrors.ErrCategoryQuery, cerrors.CodeParseError),
		cerrors.HasCode(err, cerrors.ErrCategoryQuery, cerrors.CodeLogicalPlanner):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func hasCategory(err error, category cerrors.ErrorCategory) bool {
	for err != nil {
		var ce *cerrors.CnosError
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Category == category {
			return true
		}
		err = ce.Cause
	}
	return false
}

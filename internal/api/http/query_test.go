package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/observability"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/pkg/types"
)

type fakeDispatcher struct {
	ids     *types.QueryIDGenerator
	outputs func() ([]query.Output, error)
	last    *query.Query
	info    map[types.QueryID]observability.QueryInfo
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{ids: types.NewQueryIDGenerator(), info: map[types.QueryID]observability.QueryInfo{}}
}

func (f *fakeDispatcher) Start() error                          { return nil }
func (f *fakeDispatcher) Stop()                                 {}
func (f *fakeDispatcher) CreateQueryID() (types.QueryID, error) { return f.ids.Next() }
func (f *fakeDispatcher) CancelQuery(types.QueryID)             {}

func (f *fakeDispatcher) QueryInfo(id types.QueryID) (observability.QueryInfo, bool) {
	info, ok := f.info[id]
	return info, ok
}

func (f *fakeDispatcher) ExecuteQuery(_ context.Context, _ types.QueryID, q *query.Query) ([]query.Output, error) {
	f.last = q
	return f.outputs()
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/sql", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestExecuteSQL(t *testing.T) {
	fd := newFakeDispatcher()
	fd.outputs = func() ([]query.Output, error) {
		name := "public"
		out, err := query.StringOutput([]string{"Database"}, [][]*string{{&name}})
		return []query.Output{query.NilOutput(), out}, err
	}
	h := NewRouter(NewQueryHandler(fd, nil))

	rec := post(t, h, `{"sql":"CREATE DATABASE x; SHOW DATABASES","database":"db1","user":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp SQLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, []string{}, resp.Results[0].Columns)
	assert.Equal(t, []string{"Database"}, resp.Results[1].Columns)
	assert.Equal(t, [][]interface{}{{"public"}}, resp.Results[1].Rows)
	assert.NotEmpty(t, resp.QueryID)

	assert.Equal(t, "db1", fd.last.Context().Database)
	assert.Equal(t, "bob", fd.last.Context().User)
}

func TestExecuteSQLRejectsBadRequests(t *testing.T) {
	h := NewRouter(NewQueryHandler(newFakeDispatcher(), nil))

	assert.Equal(t, http.StatusBadRequest, post(t, h, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, `{"sql":""}`).Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sql", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExecuteSQLErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"limit", cerrors.RequestLimitError(4), http.StatusTooManyRequests},
		{"parse", cerrors.ParseError(errors.New("bad token")), http.StatusBadRequest},
		{"table not found", cerrors.LogicalPlannerError(cerrors.TableNotFound("cpu")), http.StatusNotFound},
		{"database exists", cerrors.ExecutionError(cerrors.DatabaseExists("db1")), http.StatusConflict},
		{"invalid schema", cerrors.LogicalPlannerError(cerrors.NewValidationError(cerrors.CodeInvalidSchema, "dup")), http.StatusBadRequest},
		{"schedule", cerrors.ScheduleError(errors.New("disk")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fd := newFakeDispatcher()
			fd.outputs = func() ([]query.Output, error) { return nil, tc.err }
			rec := post(t, NewRouter(NewQueryHandler(fd, nil)), `{"sql":"SELECT 1"}`)
			assert.Equal(t, tc.want, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, cerrors.GetCode(tc.err), resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestGetQuery(t *testing.T) {
	fd := newFakeDispatcher()
	id, err := fd.CreateQueryID()
	require.NoError(t, err)
	fd.info[id] = observability.QueryInfo{QueryID: id, SQL: "SHOW TABLES", State: query.StateExecuting, Started: time.Unix(0, 0)}
	h := NewRouter(NewQueryHandler(fd, observability.NewQueryTracker(time.Hour)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queries/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info queryInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "SHOW TABLES", info.SQL)
	assert.Equal(t, query.StateExecuting.String(), info.State)

	other, err := fd.CreateQueryID()
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queries/"+other.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queries/not-an-id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queries", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestTableStats(t *testing.T) {
	tracker := observability.NewQueryTracker(time.Hour)
	cpu := meta.TableRef{Database: "public", Table: "cpu"}
	tracker.RecordPlan(&query.QueryPlan{Table: cpu})
	tracker.RecordPlan(&query.DescribeTablePlan{Table: cpu})
	tracker.RecordPlan(&query.QueryPlan{Table: meta.TableRef{Database: "public", Table: "a.b"}})
	h := NewRouter(NewQueryHandler(newFakeDispatcher(), tracker))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []tableStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, "public", stats[0].Database)
	assert.Equal(t, "cpu", stats[0].Table)
	assert.EqualValues(t, 2, stats[0].Frequency)
	assert.Equal(t, map[string]int{"Query": 1, "DescribeTable": 1}, stats[0].Kinds)
	assert.Equal(t, "a.b", stats[1].Table)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/tables?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Len(t, stats, 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/tables?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	NewRouter(NewQueryHandler(newFakeDispatcher(), nil)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/tables", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RequestIDMiddleware(RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "req-1")
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ethpandaops/resultgrid/internal/loader"
	"github.com/ethpandaops/resultgrid/internal/query"
	querymocks "github.com/ethpandaops/resultgrid/internal/query/mocks"
	"github.com/ethpandaops/resultgrid/internal/querycache"
	"github.com/ethpandaops/resultgrid/internal/selection"
	"github.com/ethpandaops/resultgrid/internal/testutil"
)

const (
	rowsRoute   = "/query"
	recordRoute = "/record"
)

var testState = query.SearchState{Target: "MATCH (n) RETURN n"}

type testAPI struct {
	loader *loader.Loader
	views  *loader.Views
	client *querymocks.MockClient
	cache  querycache.Cache
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ctrl := gomock.NewController(t)
	client := querymocks.NewMockClient(ctrl)
	cache := querycache.New(testutil.NewTestLogger(), querycache.NewMemoryStore(100, 0))

	l := loader.New(testutil.NewTestLogger(), loader.Config{
		RowsRoute:        rowsRoute,
		RecordRoute:      recordRoute,
		BlockSize:        10,
		NeighborDepth:    1,
		MaxSelectionRows: 100,
	}, client, cache, nil)

	views := loader.NewViews(testutil.NewTestLogger(), l, 10, time.Minute)

	return &testAPI{loader: l, views: views, client: client, cache: cache}
}

func rowsJSON(offset, n int) []byte {
	parts := make([]string, 0, n)
	for i := offset; i < offset+n; i++ {
		parts = append(parts, fmt.Sprintf(`{"id":"row-%d"}`, i))
	}

	return []byte("[" + strings.Join(parts, ",") + "]")
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer

	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func rowIDs(t *testing.T, rows []query.Record) []string {
	t.Helper()

	out := make([]string, 0, len(rows))

	for _, row := range rows {
		id, ok := row.ID("id")
		require.True(t, ok)

		out = append(out, id)
	}

	return out
}

func TestRowsHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		setup          func(c *querymocks.MockClient)
		expectedStatus int
		validateResp   func(t *testing.T, resp RowsResponse)
	}{
		{
			name: "viewport across two blocks",
			body: RowsRequest{Query: testState, StartRow: 5, EndRow: 15},
			setup: func(c *querymocks.MockClient) {
				c.EXPECT().Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, nil, false)).Return(rowsJSON(0, 10), nil)
				c.EXPECT().Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 10, 10, nil, false)).Return(rowsJSON(10, 10), nil)
			},
			expectedStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp RowsResponse) {
				t.Helper()

				assert.Equal(t, []string{
					"row-5", "row-6", "row-7", "row-8", "row-9",
					"row-10", "row-11", "row-12", "row-13", "row-14",
				}, rowIDs(t, resp.Rows))
				assert.Nil(t, resp.LastRow)
			},
		},
		{
			name: "end of result set reports last row",
			body: RowsRequest{Query: testState, StartRow: 0, EndRow: 10, BlockSize: 10},
			setup: func(c *querymocks.MockClient) {
				c.EXPECT().Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, nil, false)).Return(rowsJSON(0, 4), nil)
			},
			expectedStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp RowsResponse) {
				t.Helper()

				require.NotNil(t, resp.LastRow)
				assert.Equal(t, int64(4), *resp.LastRow)
				assert.Len(t, resp.Rows, 4)
			},
		},
		{
			name: "sort model reaches the query service",
			body: RowsRequest{
				Query:     testState,
				StartRow:  0,
				EndRow:    2,
				SortModel: query.SortModel{{ColID: "name", Sort: query.SortDesc}},
			},
			setup: func(c *querymocks.MockClient) {
				c.EXPECT().Query(gomock.Any(), rowsRoute, query.Payload{
					Target:           testState.Target,
					Limit:            10,
					OrderBy:          "name",
					OrderByDirection: query.SortDesc,
				}).Return(rowsJSON(0, 10), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "inverted window",
			body:           RowsRequest{Query: testState, StartRow: 10, EndRow: 5},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing target",
			body:           RowsRequest{StartRow: 0, EndRow: 5},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "block size above limit",
			body:           RowsRequest{Query: testState, StartRow: 0, EndRow: 5, BlockSize: 1001},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "window spanning too many blocks",
			body:           RowsRequest{Query: testState, StartRow: 0, EndRow: 1 << 40},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "window ending at max int",
			body:           RowsRequest{Query: testState, StartRow: 0, EndRow: math.MaxInt, BlockSize: 1000},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "view request",
			body: RowsRequest{Query: testState, StartRow: 0, EndRow: 10, ViewID: "grid-1"},
			setup: func(c *querymocks.MockClient) {
				c.EXPECT().Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, nil, false)).Return(rowsJSON(0, 3), nil)
			},
			expectedStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp RowsResponse) {
				t.Helper()

				require.NotNil(t, resp.LastRow)
				assert.Equal(t, int64(3), *resp.LastRow)
			},
		},
		{
			name:           "view id too long",
			body:           RowsRequest{Query: testState, StartRow: 0, EndRow: 10, ViewID: strings.Repeat("v", loader.MaxViewIDLength+1)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			body:           `{"query":{"target":"x"},"startRow":0,"endRow":5,"page":3}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed body",
			body:           `{"query":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "upstream failure",
			body: RowsRequest{Query: testState, StartRow: 0, EndRow: 5},
			setup: func(c *querymocks.MockClient) {
				c.EXPECT().Query(gomock.Any(), rowsRoute, gomock.Any()).Return(nil, &query.StatusError{StatusCode: 500, Body: "boom"})
			},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestAPI(t)
			if tt.setup != nil {
				tt.setup(env.client)
			}

			rec := postJSON(t, NewRowsHandler(env.loader, env.views, testutil.NewTestLogger()), tt.body)
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.expectedStatus != http.StatusOK {
				var errResp ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
				assert.Equal(t, tt.expectedStatus, errResp.Status)
				assert.NotEmpty(t, errResp.Error)

				return
			}

			if tt.validateResp != nil {
				var resp RowsResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				tt.validateResp(t, resp)
			}
		})
	}
}

func TestRowsHandler_SupersededViewRequestConflicts(t *testing.T) {
	env := newTestAPI(t)
	handler := NewRowsHandler(env.loader, env.views, testutil.NewTestLogger())
	sorted := query.SortModel{{ColID: "name", Sort: query.SortAsc}}

	var (
		started = make(chan struct{})
		release = make(chan struct{})
	)

	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, nil, false)).
		DoAndReturn(func(context.Context, string, query.Payload) ([]byte, error) {
			close(started)
			<-release

			return rowsJSON(0, 10), nil
		})
	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, sorted, false)).
		Return(rowsJSON(0, 10), nil)

	slow := make(chan *httptest.ResponseRecorder, 1)

	go func() {
		slow <- postJSON(t, handler, RowsRequest{Query: testState, StartRow: 0, EndRow: 10, ViewID: "grid-1"})
	}()

	<-started

	rec := postJSON(t, handler, RowsRequest{Query: testState, StartRow: 0, EndRow: 10, SortModel: sorted, ViewID: "grid-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	close(release)

	stale := <-slow
	require.Equal(t, http.StatusConflict, stale.Code, stale.Body.String())

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(stale.Body).Decode(&errResp))
	assert.Equal(t, http.StatusConflict, errResp.Status)
}

func TestRowsHandler_ViewsAreIndependent(t *testing.T) {
	env := newTestAPI(t)
	handler := NewRowsHandler(env.loader, env.views, testutil.NewTestLogger())
	sorted := query.SortModel{{ColID: "name", Sort: query.SortAsc}}

	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, nil, false)).
		Return(rowsJSON(0, 10), nil)
	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, sorted, false)).
		Return(rowsJSON(0, 10), nil)

	rec := postJSON(t, handler, RowsRequest{Query: testState, StartRow: 0, EndRow: 10, ViewID: "a"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, handler, RowsRequest{Query: testState, StartRow: 0, EndRow: 10, SortModel: sorted, ViewID: "b"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Served from the cache; view a keeps its own sort.
	rec = postJSON(t, handler, RowsRequest{Query: testState, StartRow: 0, EndRow: 10, ViewID: "a"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.views.Len())
}

func TestCountHandler_ServeHTTP(t *testing.T) {
	env := newTestAPI(t)

	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildCountPayload(testState)).
		Return([]byte(`[{"count":42}]`), nil).
		Times(1)

	handler := NewCountHandler(env.loader, testutil.NewTestLogger())

	for i := 0; i < 2; i++ {
		rec := postJSON(t, handler, CountRequest{Query: testState})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"count":42}`, rec.Body.String())
	}

	rec := postJSON(t, handler, CountRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionHandler_ServeHTTP(t *testing.T) {
	anchor := 2

	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedRanges []selection.Range
		expectedTotal  int
	}{
		{
			name:           "select into empty selection",
			body:           SelectionRequest{Gesture: selection.Gesture{Action: selection.ActionSelect, Row: 4}},
			expectedStatus: http.StatusOK,
			expectedRanges: []selection.Range{{Min: 4, Max: 4}},
			expectedTotal:  1,
		},
		{
			name: "extend forward from anchor",
			body: SelectionRequest{
				Ranges:  []selection.Range{{Min: 1, Max: 3}, {Min: 5, Max: 5}},
				Gesture: selection.Gesture{Action: selection.ActionExtend, Row: 8, Anchor: &anchor},
			},
			expectedStatus: http.StatusOK,
			expectedRanges: []selection.Range{{Min: 1, Max: 8}},
			expectedTotal:  8,
		},
		{
			name: "unsorted input is normalized",
			body: SelectionRequest{
				Ranges:  []selection.Range{{Min: 10, Max: 12}, {Min: 0, Max: 1}},
				Gesture: selection.Gesture{Action: selection.ActionToggle, Row: 2},
			},
			expectedStatus: http.StatusOK,
			expectedRanges: []selection.Range{{Min: 0, Max: 2}, {Min: 10, Max: 12}},
			expectedTotal:  6,
		},
		{
			name:           "clear",
			body:           SelectionRequest{Ranges: []selection.Range{{Min: 0, Max: 9}}, Gesture: selection.Gesture{Action: selection.ActionClear}},
			expectedStatus: http.StatusOK,
			expectedRanges: []selection.Range{},
			expectedTotal:  0,
		},
		{
			name:           "inverted range",
			body:           SelectionRequest{Ranges: []selection.Range{{Min: 5, Max: 1}}, Gesture: selection.Gesture{Action: selection.ActionSelect}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown action",
			body:           SelectionRequest{Gesture: selection.Gesture{Action: "lasso", Row: 1}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative row",
			body:           SelectionRequest{Gesture: selection.Gesture{Action: selection.ActionSelect, Row: -1}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative range",
			body:           SelectionRequest{Ranges: []selection.Range{{Min: -5, Max: 2}}, Gesture: selection.Gesture{Action: selection.ActionToggle, Row: 1}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "range past last row",
			body:           SelectionRequest{Ranges: []selection.Range{{Min: math.MinInt + 1, Max: math.MaxInt}}, Gesture: selection.Gesture{Action: selection.ActionToggle, Row: 1}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "row past last row",
			body:           SelectionRequest{Gesture: selection.Gesture{Action: selection.ActionSelect, Row: selection.MaxRow + 1}},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, NewSelectionHandler(testutil.NewTestLogger()), tt.body)
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())

			if tt.expectedStatus != http.StatusOK {
				return
			}

			var resp SelectionResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.expectedRanges, resp.Ranges)
			assert.Equal(t, tt.expectedTotal, resp.Total)
		})
	}
}

func TestSelectionRecordsHandler_ServeHTTP(t *testing.T) {
	env := newTestAPI(t)
	handler := NewSelectionRecordsHandler(env.loader, testutil.NewTestLogger())

	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 0, 10, nil, false)).
		Return(rowsJSON(0, 10), nil)
	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildPayload(testState, 10, 10, nil, false)).
		Return(rowsJSON(10, 10), nil)

	rec := postJSON(t, handler, SelectionRecordsRequest{
		Query:  testState,
		Ranges: []selection.Range{{Min: 3, Max: 4}, {Min: 11, Max: 11}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SelectionRecordsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"row-3", "row-4", "row-11"}, rowIDs(t, resp.Rows))

	rec = postJSON(t, handler, SelectionRecordsRequest{
		Query:  testState,
		Ranges: []selection.Range{{Min: 0, Max: 500}},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = postJSON(t, handler, SelectionRecordsRequest{
		Query:  testState,
		Ranges: []selection.Range{{Min: math.MinInt + 1, Max: math.MaxInt}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, SelectionRecordsRequest{
		Query:     testState,
		Ranges:    []selection.Range{{Min: 0, Max: 5}},
		BlockSize: 1001,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		response       []byte
		expectedStatus int
	}{
		{name: "found", id: "row-1", response: []byte(`[{"id":"row-1"},{"id":"row-7"}]`), expectedStatus: http.StatusOK},
		{name: "not found", id: "row-404", response: []byte(`[]`), expectedStatus: http.StatusNotFound},
		{name: "missing id", id: "", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestAPI(t)

			if tt.response != nil {
				env.client.EXPECT().
					Query(gomock.Any(), recordRoute, query.BuildRecordPayload(tt.id, 1)).
					Return(tt.response, nil)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/records/"+tt.id, http.NoBody)
			req.SetPathValue("id", tt.id)

			rec := httptest.NewRecorder()
			NewRecordHandler(env.loader, testutil.NewTestLogger()).ServeHTTP(rec, req)

			require.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var resp RecordResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, []string{"row-1", "row-7"}, rowIDs(t, resp.Records))
			}
		})
	}
}

func TestCachePurgeHandler_ServeHTTP(t *testing.T) {
	env := newTestAPI(t)
	ctx := testutil.NewTestContext(t)

	env.client.EXPECT().
		Query(gomock.Any(), rowsRoute, query.BuildCountPayload(testState)).
		Return([]byte(`[{"count":7}]`), nil).
		Times(2)

	_, err := env.loader.Count(ctx, testState)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewCachePurgeHandler(env.cache, testutil.NewTestLogger()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", http.NoBody))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// The purged count is fetched again.
	_, err = env.loader.Count(ctx, testState)
	require.NoError(t, err)
}

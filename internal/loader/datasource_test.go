package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/testutil"
)

type callbackRecorder struct {
	rows      []query.Record
	lastRow   *int64
	successes int
	failures  int
}

func (r *callbackRecorder) params(start, end int, sort query.SortModel) GetRowsParams {
	return GetRowsParams{
		StartRow:  start,
		EndRow:    end,
		SortModel: sort,
		SuccessCallback: func(rows []query.Record, lastRow *int64) {
			r.successes++
			r.rows = rows
			r.lastRow = lastRow
		},
		FailCallback: func() {
			r.failures++
		},
	}
}

func TestDatasource_GetRows_Success(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, nil)).
		Return(rowsJSON(t, 0, 10), nil)

	rec := &callbackRecorder{}
	ds.GetRows(testutil.NewTestContext(t), rec.params(0, 10, nil))

	assert.Equal(t, 1, rec.successes)
	assert.Zero(t, rec.failures)
	assert.Nil(t, rec.lastRow)
	assert.Equal(t, expectedIDs(0, 10), ids(t, rec.rows))
}

func TestDatasource_GetRows_ReportsLastRow(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(10, 10, nil)).
		Return(rowsJSON(t, 10, 4), nil)

	rec := &callbackRecorder{}
	ds.GetRows(testutil.NewTestContext(t), rec.params(10, 20, nil))

	require.Equal(t, 1, rec.successes)
	require.NotNil(t, rec.lastRow)
	assert.Equal(t, int64(14), *rec.lastRow)
}

func TestDatasource_GetRows_Failure(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, nil)).
		Return(nil, errors.New("boom"))

	rec := &callbackRecorder{}
	ds.GetRows(testutil.NewTestContext(t), rec.params(0, 10, nil))

	assert.Zero(t, rec.successes)
	assert.Equal(t, 1, rec.failures)
}

func TestDatasource_GetRows_InvalidRequestFails(t *testing.T) {
	l, _, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

	rec := &callbackRecorder{}
	ds.GetRows(testutil.NewTestContext(t), rec.params(10, 5, nil))

	assert.Equal(t, 1, rec.failures)
}

func TestDatasource_DropsResponseAfterSearchChange(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

	var (
		started = make(chan struct{})
		release = make(chan struct{})
	)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, nil)).
		DoAndReturn(func(context.Context, string, query.Payload) ([]byte, error) {
			close(started)
			<-release

			return rowsJSON(t, 0, 10), nil
		})

	rec := &callbackRecorder{}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ds.GetRows(testutil.NewTestContext(t), rec.params(0, 10, nil))
	}()

	<-started

	before := ds.Generation()
	ds.SetSearchState(query.SearchState{Target: "MATCH (m) RETURN m"})
	assert.Greater(t, ds.Generation(), before)

	close(release)
	<-done

	assert.Zero(t, rec.successes)
	assert.Zero(t, rec.failures)
}

func TestDatasource_DropsResponseAfterInvalidate(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

	var (
		started = make(chan struct{})
		release = make(chan struct{})
	)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, nil)).
		DoAndReturn(func(context.Context, string, query.Payload) ([]byte, error) {
			close(started)
			<-release

			return nil, errors.New("late failure")
		})

	rec := &callbackRecorder{}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ds.GetRows(testutil.NewTestContext(t), rec.params(0, 10, nil))
	}()

	<-started
	ds.Invalidate()
	close(release)
	<-done

	assert.Zero(t, rec.successes)
	assert.Zero(t, rec.failures)
}

func TestDatasource_SortChangeStartsNewGeneration(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)
	ctx := testutil.NewTestContext(t)

	sort := query.SortModel{{ColID: "name", Sort: query.SortAsc}}

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, nil)).
		Return(rowsJSON(t, 0, 10), nil)
	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, sort)).
		Return(rowsJSON(t, 0, 10), nil)

	rec := &callbackRecorder{}

	ds.GetRows(ctx, rec.params(0, 10, nil))
	unsorted := ds.Generation()

	ds.GetRows(ctx, rec.params(0, 10, nil))
	assert.Equal(t, unsorted, ds.Generation())

	ds.GetRows(ctx, rec.params(0, 10, sort))
	assert.Greater(t, ds.Generation(), unsorted)
	assert.Equal(t, 3, rec.successes)
}

func TestDatasource_DefaultBlockSize(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{BlockSize: 25}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 0)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(25, 25, nil)).
		Return(rowsJSON(t, 25, 25), nil)

	rec := &callbackRecorder{}
	ds.GetRows(testutil.NewTestContext(t), rec.params(30, 40, nil))

	assert.Equal(t, expectedIDs(30, 40), ids(t, rec.rows))
}

func TestDatasource_Fetch(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(10, 10, nil)).
		Return(rowsJSON(t, 10, 6), nil)

	rows, lastRow, err := ds.Fetch(testutil.NewTestContext(t), Viewport{
		StartRow:  12,
		EndRow:    20,
		State:     testState,
		BlockSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, expectedIDs(12, 16), ids(t, rows))
	require.NotNil(t, lastRow)
	assert.Equal(t, int64(16), *lastRow)
}

func TestDatasource_Fetch_StateChangesStartNewGeneration(t *testing.T) {
	other := query.SearchState{Target: "MATCH (m) RETURN m"}

	tests := []struct {
		name     string
		vp       Viewport
		bumped   bool
		expected query.Payload
	}{
		{
			name:     "same search",
			vp:       Viewport{StartRow: 0, EndRow: 10, State: testState, BlockSize: 10},
			expected: blockPayload(0, 10, nil),
		},
		{
			name:     "unset block size keeps the view's",
			vp:       Viewport{StartRow: 0, EndRow: 10, State: testState},
			expected: blockPayload(0, 10, nil),
		},
		{
			name:     "new search",
			vp:       Viewport{StartRow: 0, EndRow: 10, State: other, BlockSize: 10},
			bumped:   true,
			expected: query.BuildPayload(other, 0, 10, nil, false),
		},
		{
			name:     "new block size",
			vp:       Viewport{StartRow: 0, EndRow: 10, State: testState, BlockSize: 20},
			bumped:   true,
			expected: blockPayload(0, 20, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, client, _ := newTestLoader(t, Config{}, nil)
			ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)

			client.EXPECT().
				Query(gomock.Any(), rowsRoute, tt.expected).
				Return(rowsJSON(t, 0, 10), nil)

			before := ds.Generation()

			_, _, err := ds.Fetch(testutil.NewTestContext(t), tt.vp)
			require.NoError(t, err)
			assert.Equal(t, tt.bumped, ds.Generation() > before)
		})
	}
}

func TestDatasource_Fetch_SupersededRequestIsStale(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	ds := NewDatasource(testutil.NewTestLogger(), l, testState, 10)
	sort := query.SortModel{{ColID: "name", Sort: query.SortDesc}}

	var (
		started = make(chan struct{})
		release = make(chan struct{})
	)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, nil)).
		DoAndReturn(func(context.Context, string, query.Payload) ([]byte, error) {
			close(started)
			<-release

			return rowsJSON(t, 0, 10), nil
		})
	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, sort)).
		Return(rowsJSON(t, 0, 10), nil)

	errc := make(chan error, 1)

	go func() {
		_, _, err := ds.Fetch(testutil.NewTestContext(t), Viewport{StartRow: 0, EndRow: 10, State: testState})
		errc <- err
	}()

	<-started

	rows, _, err := ds.Fetch(testutil.NewTestContext(t), Viewport{StartRow: 0, EndRow: 10, State: testState, SortModel: sort})
	require.NoError(t, err)
	assert.Len(t, rows, 10)

	close(release)
	require.ErrorIs(t, <-errc, ErrStaleResponse)
}

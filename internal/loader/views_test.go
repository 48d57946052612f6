package loader

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/testutil"
)

func TestViews_GetRows_ReusesViewByID(t *testing.T) {
	l, client, _ := newTestLoader(t, Config{}, nil)
	views := NewViews(testutil.NewTestLogger(), l, 10, time.Minute)
	ctx := testutil.NewTestContext(t)

	client.EXPECT().
		Query(gomock.Any(), rowsRoute, blockPayload(0, 10, nil)).
		Return(rowsJSON(t, 0, 10), nil)

	vp := Viewport{StartRow: 0, EndRow: 5, State: testState, BlockSize: 10}

	for range 2 {
		rows, lastRow, err := views.GetRows(ctx, "grid-1", vp)
		require.NoError(t, err)
		assert.Equal(t, expectedIDs(0, 5), ids(t, rows))
		assert.Nil(t, lastRow)
	}

	assert.Equal(t, 1, views.Len())

	first := views.view("grid-1", vp)
	assert.Same(t, first, views.view("grid-1", vp))
	assert.NotSame(t, first, views.view("grid-2", vp))
}

func TestViews_GetRows_RejectsBadViewID(t *testing.T) {
	l, _, _ := newTestLoader(t, Config{}, nil)
	views := NewViews(testutil.NewTestLogger(), l, 10, time.Minute)
	vp := Viewport{StartRow: 0, EndRow: 5, State: testState}

	for _, id := range []string{"", strings.Repeat("x", MaxViewIDLength+1)} {
		_, _, err := views.GetRows(testutil.NewTestContext(t), id, vp)
		require.ErrorIs(t, err, ErrInvalidViewport)
	}

	assert.Zero(t, views.Len())
}

func TestViews_EvictsLeastRecentlyUsed(t *testing.T) {
	l, _, _ := newTestLoader(t, Config{}, nil)
	views := NewViews(testutil.NewTestLogger(), l, 2, time.Minute)
	vp := Viewport{State: testState, BlockSize: 10}

	a := views.view("a", vp)
	views.view("b", vp)
	views.view("a", vp)
	views.view("c", vp)

	assert.Equal(t, 2, views.Len())
	assert.Same(t, a, views.view("a", vp))

	_, ok := views.views.Peek("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestViews_IdleViewsExpire(t *testing.T) {
	l, _, _ := newTestLoader(t, Config{}, nil)
	views := NewViews(testutil.NewTestLogger(), l, 10, 50*time.Millisecond)
	vp := Viewport{State: query.SearchState{Target: "MATCH (n) RETURN n"}, BlockSize: 10}

	first := views.view("a", vp)

	require.Eventually(t, func() bool {
		_, ok := views.views.Get("a")

		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotSame(t, first, views.view("a", vp))
}

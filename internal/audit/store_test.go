package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFilter_Query(t *testing.T) {
	assert.Empty(t, Filter{}.query())

	since := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	q := Filter{Outcome: "rejected", Principal: "analyst", Since: since}.query()
	assert.Equal(t, "rejected", q["outcome"])
	assert.Equal(t, "analyst", q["principal"])
	assert.Equal(t, bson.M{"$gte": since}, q["created_at"])
}

func TestFilter_FindOptions(t *testing.T) {
	opts := Filter{}.findOptions()
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(defaultListLimit), *opts.Limit)

	opts = Filter{Limit: 5, Offset: 10}.findOptions()
	assert.Equal(t, int64(5), *opts.Limit)
	assert.Equal(t, int64(10), *opts.Skip)
}

func TestOutcomePipeline(t *testing.T) {
	assert.Len(t, outcomePipeline(time.Time{}), 2)
	assert.Len(t, outcomePipeline(time.Now()), 3)
}

// TestStore_RoundTrip runs against a live server when
// SHEET_TEST_MONGODB_URI is set.
func TestStore_RoundTrip(t *testing.T) {
	uri := os.Getenv("SHEET_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("SHEET_TEST_MONGODB_URI not set, skipping integration test")
	}
	store, err := NewStore(uri, "sheet_analyst_test")
	require.NoError(t, err)
	defer store.Close(context.Background())

	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.Save(ctx, &Record{RequestID: id, Outcome: "ok", Tables: []string{"employees"}}))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"employees"}, got.Tables)

	missing, err := store.Get(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)

	recs, err := store.List(ctx, Filter{Outcome: "ok", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	assert.Error(t, store.Save(ctx, &Record{RequestID: id, Outcome: "ok"}), "request ids are unique")
}

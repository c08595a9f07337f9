package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/monitoring"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func sampleWalk(id string, finished time.Time) nav.Walk {
	return nav.Walk{
		ID:          id,
		StartedAt:   t0,
		FinishedAt:  finished,
		Steps:       10,
		StepLength:  0.76,
		Destination: &nav.Place{Coord: geo.Coordinate{Lat: 55.7558, Lng: 37.6176}, Label: "Museum"},
		WalkedPath:  []geo.Coordinate{{Lat: 55.7539, Lng: 37.6208}, {Lat: 55.7540, Lng: 37.6207}},
	}
}

func TestSaveAndGetWalk(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	w := sampleWalk("walk-1", t0.Add(10*time.Minute))
	w.Origin = &nav.Place{Coord: geo.Coordinate{Lat: 55.7539, Lng: 37.6208}, Label: "Red Square"}
	w.PlannedRoute = []geo.Coordinate{{Lat: 55.7539, Lng: 37.6208}, {Lat: 55.7558, Lng: 37.6176}}
	require.NoError(t, db.SaveWalk(ctx, w))

	got, err := db.GetWalk(ctx, "walk-1")
	require.NoError(t, err)
	if diff := cmp.Diff(w, got); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveWalkWithoutIDAssignsOne(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	w := sampleWalk("", t0)
	w.Destination = nil
	w.WalkedPath = nil
	require.NoError(t, db.SaveWalk(ctx, w))

	list, err := db.ListWalks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].ID, 36)
	assert.Nil(t, list[0].Destination)

	got, err := db.GetWalk(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Empty(t, got.WalkedPath)
	assert.Empty(t, got.PlannedRoute)
}

func TestListWalksNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveWalk(ctx, sampleWalk("old", t0.Add(time.Minute))))
	require.NoError(t, db.SaveWalk(ctx, sampleWalk("new", t0.Add(time.Hour))))
	require.NoError(t, db.SaveWalk(ctx, sampleWalk("mid", t0.Add(30*time.Minute))))

	list, err := db.ListWalks(ctx, 0)
	require.NoError(t, err)
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
	assert.InDelta(t, 7.6, list[0].DistanceM, 1e-9)
	assert.Equal(t, "Museum", list[0].Destination.Label)

	list, err = db.ListWalks(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSaveWalkReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	w := sampleWalk("walk-1", t0)
	require.NoError(t, db.SaveWalk(ctx, w))
	w.Steps = 42
	require.NoError(t, db.SaveWalk(ctx, w))

	got, err := db.GetWalk(ctx, "walk-1")
	require.NoError(t, err)
	assert.Equal(t, 42, got.Steps)

	list, err := db.ListWalks(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetWalkNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetWalk(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrWalkNotFound)
}

func TestReopenKeepsWalks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveWalk(context.Background(), sampleWalk("walk-1", t0)))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.GetWalk(context.Background(), "walk-1")
	assert.NoError(t, err)
}

func TestDBSatisfiesArchiver(t *testing.T) {
	var _ nav.Archiver = (*DB)(nil)
}

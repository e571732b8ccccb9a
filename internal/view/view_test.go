package view

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"city-atlas/internal/catalog"
	"city-atlas/internal/mapview"
	"city-atlas/internal/pipeline"
	"city-atlas/internal/storage"
)

func i64(n int64) *int64 { return &n }

func testStore() *catalog.Store {
	return catalog.NewStore([]catalog.City{
		{ID: catalog.IntID(1), Name: "Москва", Population: i64(12000000),
			Region: &catalog.Region{Name: "Московская область", District: "Центральный"},
			Coords: &catalog.Coords{Lat: 55.7522, Lon: 37.6156}},
		{ID: catalog.IntID(2), Name: "Казань", Population: i64(1250000),
			Region: &catalog.Region{Name: "Татарстан", District: "Приволжский"},
			Coords: &catalog.Coords{Lat: 55.7887, Lon: 49.1221}},
		{ID: catalog.IntID(3), Name: "Ёлабуга", Population: i64(75125),
			Region: &catalog.Region{Name: "Татарстан", District: "Приволжский"}},
		{ID: catalog.IntID(4), Name: "Байконур"},
	})
}

func openTab(t *testing.T, b storage.Backend, store *catalog.Store, id string) *Tab {
	t.Helper()
	tab, err := NewTab(context.Background(), b, store, TabOptions{ID: id})
	require.NoError(t, err)
	t.Cleanup(tab.Close)
	return tab
}

func rowNames(s CatalogSnapshot) []string {
	out := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r.Name
	}
	return out
}

func TestTableSnapshotDefaults(t *testing.T) {
	ctx := context.Background()
	tab := openTab(t, storage.NewMemory(), testStore(), "tab-a")

	snap := tab.Table.Snapshot(ctx)
	assert.Equal(t, TableView, snap.View)
	assert.Equal(t, []string{"Москва", "Казань", "Ёлабуга", "Байконур"}, rowNames(snap), "table keeps dataset order")
	assert.Equal(t, []string{"Московская область", "Татарстан"}, snap.AvailableRegions)
	assert.Equal(t, snap.AvailableRegions, snap.SelectedRegions, "regions auto-selected on first render")
	assert.Equal(t, []string{"Приволжский", "Центральный"}, snap.SelectedDistricts)
	assert.Equal(t, 0, snap.ActiveFilters)
	assert.Equal(t, Counters{Shown: 4, Total: 4}, snap.Counters)
	assert.False(t, snap.AllShownVisited)
	assert.Equal(t, catalog.PopulationPlaceholder, snap.Rows[3].PopulationText)

	admin := tab.Admin.Snapshot(ctx)
	assert.Equal(t, []string{"Байконур", "Ёлабуга", "Казань", "Москва"}, rowNames(admin), "marking view sorts by name")
}

func TestCatalogFilteringAndSort(t *testing.T) {
	ctx := context.Background()
	tab := openTab(t, storage.NewMemory(), testStore(), "tab-a")
	c := tab.Table
	c.Snapshot(ctx)

	c.ToggleDistrict("Центральный")
	snap := c.Snapshot(ctx)
	assert.Equal(t, []string{"Казань", "Ёлабуга", "Байконур"}, rowNames(snap))
	assert.Equal(t, []string{"Татарстан"}, snap.AvailableRegions)
	assert.Equal(t, 2, snap.ActiveFilters, "partial districts, and a region selection wider than what is available")

	c.SortBy(pipeline.ColumnPopulation)
	c.SortBy(pipeline.ColumnPopulation)
	snap = c.Snapshot(ctx)
	assert.Equal(t, pipeline.SortState{Column: pipeline.ColumnPopulation, Direction: pipeline.Descending}, snap.Sort)
	assert.Equal(t, []string{"Казань", "Ёлабуга", "Байконур"}, rowNames(snap))

	c.SetPopulation(i64(100000), nil)
	assert.Equal(t, []string{"Казань"}, rowNames(c.Snapshot(ctx)))

	c.SetPopulation(nil, nil)
	c.SetSearch("ёла")
	assert.Equal(t, []string{"Ёлабуга"}, rowNames(c.Snapshot(ctx)))

	c.SetSearch("")
	c.ToggleAllDistricts()
	snap = c.Snapshot(ctx)
	assert.Len(t, snap.Rows, 4)

	c.ToggleRegion("Татарстан")
	snap = c.Snapshot(ctx)
	assert.Equal(t, []string{"Москва", "Байконур"}, rowNames(snap))
	assert.Equal(t, 1, snap.ActiveFilters)

	c.ToggleAllRegions()
	c.ToggleAllRegions()
	snap = c.Snapshot(ctx)
	assert.Empty(t, snap.SelectedRegions, "cleared region selection means no restriction")
	assert.Len(t, snap.Rows, 4)

	c.SetSort(pipeline.SortState{})
	assert.Equal(t, "Москва", c.Snapshot(ctx).Rows[0].Name)
}

func TestMarkingUpdatesMapInSameTab(t *testing.T) {
	ctx := context.Background()
	tab := openTab(t, storage.NewMemory(), testStore(), "tab-a")
	require.True(t, tab.Map.Ready())

	m := tab.Map.Snapshot(ctx)
	assert.Empty(t, m.Markers.Features)
	assert.Equal(t, mapview.DefaultCenter, m.Center)
	assert.Equal(t, mapview.DefaultZoom, m.Zoom)

	on, err := tab.Admin.ToggleVisited(ctx, catalog.IntID(2))
	require.NoError(t, err)
	assert.True(t, on)

	m = tab.Map.Snapshot(ctx)
	require.Len(t, m.Markers.Features, 1)
	assert.Equal(t, orb.Point{49.1221, 55.7887}, m.Center)
	assert.Equal(t, 1, m.Visited)
	assert.Equal(t, 4, m.Total)

	table := tab.Table.Snapshot(ctx)
	assert.True(t, table.Rows[1].Visited)
	assert.Equal(t, 1, table.Counters.TotalVisited)

	_, err = tab.Admin.ToggleVisited(ctx, catalog.IntID(99))
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestVisitedChangeReachesOtherTab(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	store := testStore()
	a := openTab(t, mem, store, "tab-a")
	b := openTab(t, mem, store, "tab-b")

	signals := 0
	b.Subscribe(func() { signals++ })

	_, err := a.Admin.ToggleVisited(ctx, catalog.IntID(1))
	require.NoError(t, err)
	assert.Equal(t, 1, signals)

	m := b.Map.Snapshot(ctx)
	require.Len(t, m.Markers.Features, 1)
	assert.Equal(t, orb.Point{37.6156, 55.7522}, m.Center)
	assert.True(t, b.Admin.Snapshot(ctx).Rows[3].Visited, "Москва sorts last by name")

	b.Close()
	_, err = a.Admin.ToggleVisited(ctx, catalog.IntID(2))
	require.NoError(t, err)
	assert.Equal(t, 1, signals, "closed tab hears nothing")
	assert.Len(t, b.Map.Snapshot(ctx).Markers.Features, 1)
}

func TestToggleShownRespectsFilters(t *testing.T) {
	ctx := context.Background()
	tab := openTab(t, storage.NewMemory(), testStore(), "tab-a")
	c := tab.Admin
	c.Snapshot(ctx)
	c.SetSearch("татар")

	marked, err := c.ToggleShown(ctx)
	require.NoError(t, err)
	assert.True(t, marked)
	snap := c.Snapshot(ctx)
	assert.True(t, snap.AllShownVisited)
	assert.Equal(t, Counters{TotalVisited: 2, ShownVisited: 2, Shown: 2, Total: 4}, snap.Counters)

	m := tab.Map.Snapshot(ctx)
	assert.Len(t, m.Markers.Features, 1, "Ёлабуга has no coordinates")

	marked, err = c.ToggleShown(ctx)
	require.NoError(t, err)
	assert.False(t, marked)
	assert.Equal(t, 0, tab.Visited(ctx).Len())
}

func TestTabView(t *testing.T) {
	tab := openTab(t, storage.NewMemory(), testStore(), "tab-a")
	v, ok := tab.View("")
	assert.True(t, ok)
	assert.Same(t, tab.Table, v)
	v, ok = tab.View(AdminView)
	assert.True(t, ok)
	assert.Same(t, tab.Admin, v)
	_, ok = tab.View("nope")
	assert.False(t, ok)

	select {
	case <-tab.Done():
		t.Fatal("open tab reports done")
	default:
	}
	tab.Close()
	<-tab.Done()

	_, err := NewTab(context.Background(), storage.NewMemory(), testStore(), TabOptions{})
	assert.Error(t, err)
}

func TestRegionSelectionSurvivesEditBeforeFirstSnapshot(t *testing.T) {
	ctx := context.Background()
	tab := openTab(t, storage.NewMemory(), testStore(), "tab-a")
	c := tab.Table

	c.SetSearch("казань")
	snap := c.Snapshot(ctx)
	assert.Equal(t, []string{"Казань"}, rowNames(snap))
	assert.Equal(t, []string{"Московская область", "Татарстан"}, snap.SelectedRegions)

	c.SetSearch("")
	snap = c.Snapshot(ctx)
	assert.Equal(t, []string{"Москва", "Казань", "Ёлабуга", "Байконур"}, rowNames(snap))
	assert.Equal(t, snap.AvailableRegions, snap.SelectedRegions)
	assert.Equal(t, 0, snap.ActiveFilters)
}

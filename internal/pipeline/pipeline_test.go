package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"city-atlas/internal/catalog"
)

func i64(n int64) *int64 { return &n }

func city(id int64, name string, pop *int64, region, district string) catalog.City {
	c := catalog.City{ID: catalog.IntID(id), Name: name, Population: pop}
	if region != "" || district != "" {
		c.Region = &catalog.Region{Name: region, District: district}
	}
	return c
}

func twoCities() []catalog.City {
	return []catalog.City{
		city(1, "Москва", i64(12000000), "Московская область", "Центральный"),
		city(2, "Казань", i64(1250000), "Татарстан", "Приволжский"),
	}
}

func sample() []catalog.City {
	return []catalog.City{
		city(1, "Москва", i64(13010112), "Москва", "Центральный"),
		city(2, "Суздаль", i64(9081), "Владимирская область", "Центральный"),
		city(3, "Казань", i64(1308660), "Татарстан", "Приволжский"),
		city(4, "Ёлабуга", i64(75125), "Татарстан", "Приволжский"),
		city(5, "Самара", i64(1173299), "Самарская область", "Приволжский"),
		city(6, "Кронштадт", nil, "Санкт-Петербург", "Северо-Западный"),
		city(7, "Байконур", i64(76631), "", ""),
		city(8, "Пятигорск", i64(145448), "Ставропольский край", "Северо-Кавказский"),
	}
}

func allDistricts(records []catalog.City) Set {
	s := NewSet()
	for _, c := range records {
		if d := c.District(); d != "" {
			s[d] = struct{}{}
		}
	}
	return s
}

func names(cs []catalog.City) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestComputeAllDistricts(t *testing.T) {
	recs := twoCities()
	res := Compute(recs, FilterState{Districts: allDistricts(recs)})
	assert.Equal(t, []string{"Москва", "Казань"}, names(res.Filtered))
	assert.Equal(t, []string{"Московская область", "Татарстан"}, res.AvailableRegions)
}

func TestComputeOneDistrict(t *testing.T) {
	res := Compute(twoCities(), FilterState{Districts: NewSet("Приволжский")})
	assert.Equal(t, []string{"Казань"}, names(res.Filtered))
	assert.Equal(t, []string{"Татарстан"}, res.AvailableRegions)
}

func TestComputeEmptySelections(t *testing.T) {
	recs := sample()

	res := Compute(recs, FilterState{Districts: NewSet()})
	assert.Equal(t, []string{"Байконур"}, names(res.Filtered), "no districts selected keeps only cities without one")
	assert.Empty(t, res.AvailableRegions)

	res = Compute(recs, FilterState{Districts: allDistricts(recs), Regions: NewSet()})
	assert.Len(t, res.Filtered, len(recs), "no regions selected restricts nothing")
}

func TestComputeSearch(t *testing.T) {
	recs := sample()
	all := allDistricts(recs)

	res := Compute(recs, FilterState{Districts: all, Search: "ТАТАР"})
	assert.Equal(t, []string{"Казань", "Ёлабуга"}, names(res.Filtered))

	res = Compute(recs, FilterState{Districts: all, Search: "кавказ"})
	assert.Equal(t, []string{"Пятигорск"}, names(res.Filtered))

	res = Compute(recs, FilterState{Districts: all, Search: "ёла"})
	assert.Equal(t, []string{"Ёлабуга"}, names(res.Filtered))

	res = Compute(recs, FilterState{Districts: all, Search: "нет такого"})
	assert.Empty(t, res.Filtered)
	assert.Empty(t, res.AvailableRegions)
}

func TestComputePopulation(t *testing.T) {
	recs := sample()
	all := allDistricts(recs)

	res := Compute(recs, FilterState{Districts: all, MinPopulation: i64(1000000)})
	assert.Equal(t, []string{"Москва", "Казань", "Самара"}, names(res.Filtered))

	res = Compute(recs, FilterState{Districts: all, MaxPopulation: i64(10000)})
	assert.Equal(t, []string{"Суздаль", "Кронштадт"}, names(res.Filtered), "absent population counts as 0")

	res = Compute(recs, FilterState{Districts: all, MinPopulation: i64(500000), MaxPopulation: i64(100)})
	assert.Empty(t, res.Filtered)
}

func TestComputeRegionFacet(t *testing.T) {
	recs := sample()
	res := Compute(recs, FilterState{Districts: allDistricts(recs), Regions: NewSet("Татарстан")})
	assert.Equal(t, []string{"Казань", "Ёлабуга", "Байконур"}, names(res.Filtered), "cities without a region are never excluded by the region facet")
}

func TestAvailableRegionsIgnoreRegionSelection(t *testing.T) {
	recs := sample()
	base := FilterState{Districts: NewSet("Приволжский", "Центральный"), Search: "а"}
	want := Compute(recs, base).AvailableRegions

	for _, regions := range []Set{nil, NewSet(), NewSet("Татарстан"), NewSet("Москва", "нигде")} {
		st := base.Clone()
		st.Regions = regions
		assert.Equal(t, want, Compute(recs, st).AvailableRegions)
	}
}

func TestFilteredIsSubsetSatisfyingPredicates(t *testing.T) {
	recs := sample()
	states := []FilterState{
		{Districts: allDistricts(recs)},
		{Districts: NewSet("Приволжский"), Regions: NewSet("Татарстан")},
		{Districts: allDistricts(recs), Search: "с", MinPopulation: i64(10000)},
		{Districts: NewSet("Центральный", "Северо-Западный"), MaxPopulation: i64(100000)},
	}
	byID := map[catalog.ID]catalog.City{}
	for _, c := range recs {
		byID[c.ID] = c
	}
	for _, st := range states {
		res := Compute(recs, st)
		for _, c := range res.Filtered {
			orig, ok := byID[c.ID]
			require.True(t, ok)
			assert.Equal(t, orig, c)
			assert.True(t, keepDistrict(c, st.Districts))
			assert.True(t, keepPopulation(c, st.MinPopulation, st.MaxPopulation))
			assert.True(t, keepRegion(c, st.Regions))
		}
	}
}

func TestCascadeAutoSelectsRegions(t *testing.T) {
	recs := sample()
	c := NewCascade(allDistricts(recs).Sorted(), ReselectOnChange)
	assert.False(t, c.Latched())

	res := c.Apply(recs)
	assert.True(t, c.Latched())
	assert.Equal(t, res.AvailableRegions, c.State().Regions.Sorted())
	assert.Len(t, res.Filtered, len(recs))

	// 用户清空地区选择；再次 Apply 不得重新填充
	c.ToggleAllRegions(res.AvailableRegions)
	assert.Equal(t, 0, c.State().Regions.Len())
	c.Apply(recs)
	c.Apply(recs)
	assert.Equal(t, 0, c.State().Regions.Len())

	// 联邦区变化改变了可用集合，空选择被重新填充
	c.ToggleDistrict("Центральный")
	res = c.Apply(recs)
	assert.Equal(t, res.AvailableRegions, c.State().Regions.Sorted())
	assert.NotContains(t, res.AvailableRegions, "Москва")
}

func TestCascadeReselectOnce(t *testing.T) {
	recs := sample()
	c := NewCascade(allDistricts(recs).Sorted(), ReselectOnce)
	first := c.Apply(recs)
	require.NotEmpty(t, first.AvailableRegions)

	c.ToggleAllRegions(first.AvailableRegions)
	c.ToggleDistrict("Центральный")
	c.Apply(recs)
	assert.Equal(t, 0, c.State().Regions.Len(), "latched: never auto-selects again")
}

func TestCascadeKeepsNonEmptySelection(t *testing.T) {
	recs := sample()
	c := NewCascade(allDistricts(recs).Sorted(), ReselectOnChange)
	c.Apply(recs)
	c.ToggleAllRegions(nil)
	c.ToggleAllRegions([]string{"Татарстан"})
	c.ToggleDistrict("Северо-Кавказский")
	c.Apply(recs)
	assert.Equal(t, []string{"Татарстан"}, c.State().Regions.Sorted())
}

func TestCascadeToggles(t *testing.T) {
	all := []string{"Приволжский", "Центральный"}
	c := NewCascade(all, ReselectOnChange)
	assert.Equal(t, 0, c.ActiveFilters(len(all), 0))

	c.ToggleDistrict("Центральный")
	assert.False(t, c.State().Districts.Has("Центральный"))
	assert.Equal(t, 1, c.ActiveFilters(len(all), 0))

	c.ToggleAllDistricts(all)
	assert.Equal(t, 2, c.State().Districts.Len())
	c.ToggleAllDistricts(all)
	assert.Equal(t, 0, c.State().Districts.Len())
	c.ToggleAllDistricts(all)

	available := []string{"Москва", "Татарстан"}
	c.ToggleAllRegions(available)
	assert.Equal(t, 0, c.ActiveFilters(len(all), len(available)))
	c.ToggleRegion("Москва")
	assert.Equal(t, 1, c.ActiveFilters(len(all), len(available)))
	c.ToggleRegion("Татарстан")
	assert.Equal(t, 0, c.ActiveFilters(len(all), len(available)), "empty region selection is not a restriction")

	c.SetSearch("каз")
	c.SetPopulation(i64(5), nil)
	st := c.State()
	assert.Equal(t, "каз", st.Search)
	assert.Equal(t, int64(5), *st.MinPopulation)
	assert.Nil(t, st.MaxPopulation)

	st.Districts["mutated"] = struct{}{}
	assert.False(t, c.State().Districts.Has("mutated"))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ReselectOnce, ParseMode("once"))
	assert.Equal(t, ReselectOnChange, ParseMode(""))
	assert.Equal(t, "on_change", ReselectOnChange.String())
}

func TestSortByName(t *testing.T) {
	in := sample()
	got := Sort(in, SortState{Column: ColumnName, Direction: Ascending})
	assert.Equal(t, []string{"Байконур", "Ёлабуга", "Казань", "Кронштадт", "Москва", "Пятигорск", "Самара", "Суздаль"}, names(got))
	assert.Equal(t, "Москва", in[0].Name, "input must not be reordered")
}

func TestSortPopulationMissingIsZero(t *testing.T) {
	got := Sort(sample(), SortState{Column: ColumnPopulation, Direction: Descending})
	assert.Equal(t, []string{"Москва", "Казань", "Самара", "Пятигорск", "Байконур", "Ёлабуга", "Суздаль", "Кронштадт"}, names(got))
}

func TestSortIsStableInBothDirections(t *testing.T) {
	asc := Sort(sample(), SortState{Column: ColumnRegion, Direction: Ascending})
	assert.Equal(t, []string{"Байконур", "Суздаль", "Москва", "Самара", "Кронштадт", "Пятигорск", "Казань", "Ёлабуга"}, names(asc))
	desc := Sort(sample(), SortState{Column: ColumnRegion, Direction: Descending})
	assert.Equal(t, []string{"Казань", "Ёлабуга", "Пятигорск", "Кронштадт", "Самара", "Москва", "Суздаль", "Байконур"}, names(desc))
}

func TestSortIdempotent(t *testing.T) {
	for _, s := range []SortState{
		{Column: ColumnName, Direction: Ascending},
		{Column: ColumnPopulation, Direction: Descending},
		{Column: ColumnRegion, Direction: Descending},
	} {
		once := Sort(sample(), s)
		assert.Equal(t, once, Sort(once, s), s.Column.String())
	}
	assert.Equal(t, names(sample()), names(Sort(sample(), SortState{})))
	assert.Empty(t, Sort(nil, SortState{Column: ColumnName}))
}

func TestSortToggle(t *testing.T) {
	s := SortState{}.Toggle(ColumnName)
	assert.Equal(t, SortState{Column: ColumnName, Direction: Ascending}, s)
	s = s.Toggle(ColumnName)
	assert.Equal(t, Descending, s.Direction)
	assert.Equal(t, SortState{Column: ColumnName, Direction: Ascending}, s.Toggle(ColumnName))
	assert.Equal(t, SortState{Column: ColumnRegion, Direction: Ascending}, s.Toggle(ColumnRegion))

	col, err := ParseColumn("population")
	require.NoError(t, err)
	assert.Equal(t, ColumnPopulation, col)
	_, err = ParseColumn("area")
	assert.Error(t, err)
	dir, err := ParseDirection("desc")
	require.NoError(t, err)
	assert.Equal(t, Descending, dir)
}

func TestSortDirectionRoundTrip(t *testing.T) {
	for _, col := range []Column{ColumnName, ColumnPopulation, ColumnRegion} {
		s := SortState{}.Toggle(col)
		first := Sort(sample(), s)
		s = s.Toggle(col)
		assert.NotEqual(t, names(first), names(Sort(sample(), s)), col.String())
		s = s.Toggle(col)
		assert.Equal(t, names(first), names(Sort(sample(), s)), col.String())
	}
}

func TestCascadeFirstApplyOnUnfilteredRecords(t *testing.T) {
	recs := sample()
	c := NewCascade(allDistricts(recs).Sorted(), ReselectOnChange)
	all := c.Apply(recs).AvailableRegions

	c.SetSearch("казань")
	res := c.Apply(recs)
	assert.Equal(t, []string{"Казань"}, names(res.Filtered))
	assert.Equal(t, all, c.State().Regions.Sorted(), "narrowing must not shrink a full selection")

	c.SetSearch("")
	res = c.Apply(recs)
	assert.Len(t, res.Filtered, len(recs))
	assert.Equal(t, all, c.State().Regions.Sorted())
}

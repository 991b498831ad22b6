package main

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanOpposingEffectsCancelAndConflict(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	view := mustPlanner(t, cat, true, "101", "201").Plan()

	got := map[string]string{}
	for _, tot := range view.Totals {
		got[tot.Label] = tot.Formatted
	}
	want := map[string]string{
		"Critical Rate": "+4.00%",
		"Armor":         "+20.00",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("totals mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{1, 2}, view.Conflicts)
	assert.True(t, view.Slots[0].Conflict)
	assert.True(t, view.Slots[1].Conflict)
	assert.False(t, view.Slots[2].Conflict)

	require.Len(t, view.ActiveCompanions, 1)
	assert.Equal(t, "Lone Wolf", view.ActiveCompanions[0].Name)
}

func TestPlanTotalsOrderAndGroups(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	view := mustPlanner(t, cat, true, "101", "102").Plan()

	var labels []string
	for _, tot := range view.Totals {
		labels = append(labels, tot.Label+" "+tot.Formatted)
	}
	assert.Equal(t, []string{
		"Attack Speed Bonus +5.00%",
		"Physical Damage Bonus +9.00%",
		"Magic Resistance -10.00",
	}, labels)
	assert.Empty(t, view.Conflicts)

	var titles []string
	for _, g := range view.TotalGroups {
		titles = append(titles, g.Title)
	}
	assert.Equal(t, []string{"Attack", "Defense"}, titles)

	active := map[string]bool{}
	for _, c := range view.Companions {
		active[c.Name] = c.Active
	}
	assert.Equal(t, map[string]bool{"Iron Vanguard": true, "Arcane Circle": false, "Lone Wolf": false}, active)
}

func TestCompanionNeedsEnoughMembers(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	view := mustPlanner(t, cat, true, "301").Plan()
	for _, c := range view.Companions {
		if c.Name == "Arcane Circle" {
			assert.False(t, c.Active)
			assert.Equal(t, 1, c.MemberCount)
		}
	}

	view = mustPlanner(t, cat, true, "301", "302").Plan()
	totals := totalsByKey(view.Totals)
	assert.InDelta(t, 6, totals["magic_dmg_bonus"].Value, 1e-9)
	assert.InDelta(t, 8, totals["healing_bonus"].Value, 1e-9, "Astra stays on its normal record")
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	effects := []keyedEffect{
		{Key: "k", Effect: Effect{Label: "Speed", Value: 0.1, Unit: "%"}},
		{Key: "k", Effect: Effect{Label: "speed", Value: 0.2, Unit: "%"}},
		{Key: "k", Effect: Effect{Label: "Speed", Value: -0.3, Unit: "%"}},
		{Key: "j", Effect: Effect{Label: "Armor", Value: 1e-7}},
		{Key: "m", Effect: Effect{Label: "Block", Value: 3}},
		{Key: "m", Effect: Effect{Label: "Block", Value: 1.25}},
		{Key: "n", Effect: Effect{Label: "Guard", Value: -2}},
	}
	want := aggregate(effects)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]keyedEffect(nil), effects...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if diff := cmp.Diff(want, aggregate(shuffled)); diff != "" {
			t.Fatalf("aggregate depends on order (-want +got):\n%s", diff)
		}
	}

	keys := map[string]bool{}
	for _, tot := range want {
		keys[tot.Key] = true
	}
	assert.False(t, keys["j"], "values within epsilon of zero are dropped")
	assert.Equal(t, "Block", want[0].Label)
	assert.Equal(t, "+4.25", want[0].Formatted)
	assert.Equal(t, "Guard", want[len(want)-1].Label)
}

func TestAggregateKeysByStatType(t *testing.T) {
	m := defaultManifest()
	a, ok := keyedEffectOf("Armor 20", "", m)
	require.True(t, ok)
	b, ok := keyedEffectOf("Physical Armor -5", "armor", m)
	require.True(t, ok)
	c, ok := keyedEffectOf("Mystery 3", "", m)
	require.True(t, ok)

	assert.Equal(t, "armor", a.Key)
	assert.Equal(t, "Mystery|", c.Key)

	totals := aggregate([]keyedEffect{a, b})
	require.Len(t, totals, 1)
	assert.Equal(t, "Armor", totals[0].Label, "the smallest label names a merged total")
	assert.InDelta(t, 15, totals[0].Value, 1e-9)
}

func TestDetectConflictsNeedsStrictSigns(t *testing.T) {
	var slots [slotCount][]keyedEffect
	slots[0] = []keyedEffect{{Key: "a", Effect: Effect{Value: 2}}}
	slots[2] = []keyedEffect{{Key: "a", Effect: Effect{Value: 1}}, {Key: "a", Effect: Effect{Value: -1}}}
	slots[4] = []keyedEffect{{Key: "b", Effect: Effect{Value: -1}}}
	assert.Equal(t, [slotCount]bool{}, detectConflicts(slots))

	slots[3] = []keyedEffect{{Key: "a", Effect: Effect{Value: -0.5}}}
	assert.Equal(t, [slotCount]bool{true, false, false, true, false}, detectConflicts(slots))
}

func TestAssignKeepsDriftersUnique(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	p := NewPlanner(cat, true)

	require.NoError(t, p.Assign(1, "101"))
	assert.ErrorIs(t, p.Assign(2, "101"), ErrDrifterInUse)
	require.NoError(t, p.Assign(1, "101"), "re-assigning the same slot is a no-op")
	assert.ErrorIs(t, p.Assign(0, "102"), ErrSlotOutOfRange)
	assert.ErrorIs(t, p.Assign(6, "102"), ErrSlotOutOfRange)
	assert.ErrorIs(t, p.Assign(2, "202"), ErrUnknownDrifter, "hidden drifters cannot be slotted")

	view := p.Plan()
	for _, opt := range view.Slots[1].Options {
		if opt.ID == "101" {
			assert.True(t, opt.Disabled)
		}
	}
	for _, opt := range view.Slots[0].Options {
		if opt.ID == "101" {
			assert.True(t, opt.Selected)
			assert.False(t, opt.Disabled)
		}
	}

	require.NoError(t, p.ClearSlot(1))
	require.NoError(t, p.Assign(2, "101"))
	p.ClearAll()
	assert.Equal(t, [slotCount]string{}, p.State().Slots)
}

func TestEmptyPlan(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	view := NewPlanner(cat, true).Plan()
	assert.Empty(t, view.Totals)
	assert.Empty(t, view.ActiveCompanions)
	for _, s := range view.Slots {
		assert.Equal(t, placeholderEmpty, s.Buff)
		assert.Equal(t, placeholderEmpty, s.Debuff)
		assert.Nil(t, s.Drifter)
	}
}

func TestToggleMaximizedRoundTrip(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	p := mustPlanner(t, cat, true, "101", "102")
	before := p.Plan()

	p.ToggleMaximized()
	mid := p.Plan()
	assert.False(t, mid.Maximized)
	assert.Equal(t, "Attack Speed Bonus 3%", mid.Slots[0].Buff)
	assert.Equal(t, "Armor -20", mid.Slots[0].Debuff)
	assert.Equal(t, [slotCount]string{"101", "102"}, p.State().Slots)

	p.ToggleMaximized()
	if diff := cmp.Diff(before, p.Plan()); diff != "" {
		t.Fatalf("toggle twice changed the plan (-want +got):\n%s", diff)
	}
}

func TestDrifterRowsSort(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	p := NewPlanner(cat, false)

	var names []string
	for _, r := range p.Plan().Drifters {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Astra", "Blade", "Forager", "Kyra", "Mole", "Shadowseer"}, names)

	require.NoError(t, p.SetDrifterSort(sortByStatus))
	var labels []string
	for _, r := range p.Plan().Drifters {
		labels = append(labels, r.Name+":"+r.StatusLabel)
	}
	assert.Equal(t, []string{
		"Forager:MISSING INFO",
		"Mole:MISSING INFO",
		"Astra:PARTIAL",
		"Blade:PARTIAL",
		"Kyra:PARTIAL",
		"Shadowseer:PARTIAL",
	}, labels)

	assert.ErrorIs(t, p.SetDrifterSort("tier"), ErrUnknownSort)
}

package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const slotCount = 5

const (
	sortByName   = "name"
	sortByStatus = "status"
)

var (
	ErrSlotOutOfRange = errors.New("slot out of range")
	ErrUnknownDrifter = errors.New("unknown drifter")
	ErrDrifterInUse   = errors.New("drifter already assigned to another slot")
	ErrUnknownSort    = errors.New("unknown sort mode")
)

// PlannerState is everything a visitor has chosen. The plan is always
// recomputed from it in full.
type PlannerState struct {
	Slots         [slotCount]string
	Maximized     bool
	DrifterSort   string
	Main          MainSelection
	MainStatsSort string
}

func newPlannerState(maximizedDefault bool) PlannerState {
	return PlannerState{
		Maximized:     maximizedDefault,
		DrifterSort:   sortByName,
		MainStatsSort: mainSortAlpha,
		Main:          MainSelection{Level: 1, MaxLevel: defaultMaxLevel},
	}
}

func (s PlannerState) slotOf(id string) int {
	for i, v := range s.Slots {
		if v != "" && v == id {
			return i
		}
	}
	return -1
}

// Planner binds a state to the catalog it refers to.
type Planner struct {
	catalog *Catalog
	state   PlannerState
}

func NewPlanner(cat *Catalog, maximizedDefault bool) *Planner {
	return &Planner{catalog: cat, state: newPlannerState(maximizedDefault)}
}

func (p *Planner) State() PlannerState { return p.state }

func (p *Planner) roster() *Roster { return p.catalog.Roster(p.state.Maximized) }

// Assign puts a drifter into a 1-based slot. An empty id clears the slot.
func (p *Planner) Assign(slot int, id string) error {
	if slot < 1 || slot > slotCount {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		p.state.Slots[slot-1] = ""
		return nil
	}
	if _, ok := p.roster().Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDrifter, id)
	}
	if at := p.state.slotOf(id); at >= 0 && at != slot-1 {
		return fmt.Errorf("%w: %s is in slot %d", ErrDrifterInUse, id, at+1)
	}
	p.state.Slots[slot-1] = id
	return nil
}

func (p *Planner) ClearSlot(slot int) error {
	return p.Assign(slot, "")
}

func (p *Planner) ClearAll() {
	p.state.Slots = [slotCount]string{}
}

// ToggleMaximized flips the global default. Slot assignments survive; the
// main drifter's level and custom attributes reset.
func (p *Planner) ToggleMaximized() {
	p.state.Maximized = !p.state.Maximized
	if _, ok := p.roster().Get(p.state.Main.DrifterID); !ok {
		p.state.Main.DrifterID = ""
	}
	p.resetMain()
}

func (p *Planner) SetDrifterSort(mode string) error {
	switch mode {
	case sortByName, sortByStatus:
		p.state.DrifterSort = mode
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSort, mode)
	}
}

func (p *Planner) Plan() PlanView {
	return computePlan(p.catalog, p.state)
}

// Total is one aggregated stat.
type Total struct {
	Key       string
	Label     string
	Unit      string
	Value     float64
	Category  string
	Formatted string
	Class     string
}

type TotalGroup struct {
	Category string
	Title    string
	Totals   []Total
}

type OptionView struct {
	ID          string
	Name        string
	Selected    bool
	Disabled    bool
	Undesirable bool
}

type SlotView struct {
	Number   int
	Drifter  *Drifter
	Buff     string
	Debuff   string
	Conflict bool
	Options  []OptionView
}

type MemberView struct {
	ID       string
	Name     string
	Selected bool
}

type CompanionView struct {
	Name        string
	Bonus       string
	Required    int
	MemberCount int
	Members     []MemberView
	Category    string
	Active      bool
}

type DrifterRow struct {
	Drifter
	StatusLabel string
	Selected    bool
}

// PlanView is the complete derived state for one PlannerState.
type PlanView struct {
	Maximized        bool
	Slots            []SlotView
	Selected         []Drifter
	Companions       []CompanionView
	ActiveCompanions []CompanionView
	Totals           []Total
	TotalGroups      []TotalGroup
	Conflicts        []int
	Drifters         []DrifterRow
	DrifterSort      string
	MainOptions      []OptionView
	Main             *MainStatsView
	MainStatsSort    string
}

// computePlan is a pure function of the catalog and the state.
func computePlan(cat *Catalog, st PlannerState) PlanView {
	roster := cat.Roster(st.Maximized)
	m := cat.Manifest
	view := PlanView{
		Maximized:     st.Maximized,
		DrifterSort:   st.DrifterSort,
		MainStatsSort: st.MainStatsSort,
	}

	selected := map[string]bool{}
	var slotEffects [slotCount][]keyedEffect
	var effects []keyedEffect
	for i, id := range st.Slots {
		sv := SlotView{Number: i + 1, Buff: placeholderEmpty, Debuff: placeholderEmpty}
		if d, ok := roster.Get(id); ok && id != "" {
			sv.Drifter = &d
			sv.Buff = d.Buff
			sv.Debuff = d.Debuff
			selected[id] = true
			slotEffects[i] = d.effects(m)
			effects = append(effects, slotEffects[i]...)
			view.Selected = append(view.Selected, d)
		}
		view.Slots = append(view.Slots, sv)
	}

	for _, c := range cat.Companions {
		cv := companionView(c, roster, selected)
		view.Companions = append(view.Companions, cv)
		if cv.Active {
			view.ActiveCompanions = append(view.ActiveCompanions, cv)
			effects = append(effects, c.effects(m)...)
		}
	}

	view.Totals = aggregate(effects)
	view.TotalGroups = groupTotals(view.Totals)

	conflicts := detectConflicts(slotEffects)
	for i := range view.Slots {
		if conflicts[i] {
			view.Slots[i].Conflict = true
			view.Conflicts = append(view.Conflicts, i+1)
		}
	}

	byName := sortedByName(roster.Drifters)
	for i := range view.Slots {
		view.Slots[i].Options = slotOptions(byName, st, i)
	}
	view.MainOptions = mainOptions(byName, st.Main.DrifterID)
	view.Drifters = drifterRows(roster.Drifters, st.DrifterSort, selected)
	view.Main = computeMainStats(cat, st, view.Totals)
	return view
}

func companionView(c Companion, roster *Roster, selected map[string]bool) CompanionView {
	cv := CompanionView{
		Name:        c.Name,
		Bonus:       c.Bonus,
		Required:    c.Required,
		MemberCount: c.memberCount(selected),
		Category:    c.Category,
		Active:      c.active(selected),
	}
	for _, id := range c.MemberIDs {
		name := id
		if d, ok := roster.Get(id); ok {
			name = d.Name
		}
		cv.Members = append(cv.Members, MemberView{ID: id, Name: name, Selected: selected[id]})
	}
	return cv
}

// aggregate sums effects per key and drops net-zero entries. Contributions
// are summed in sorted order so the result does not depend on input order.
func aggregate(effects []keyedEffect) []Total {
	type bucket struct {
		labels []string
		unit   string
		values []float64
	}
	buckets := map[string]*bucket{}
	for _, e := range effects {
		b := buckets[e.Key]
		if b == nil {
			b = &bucket{}
			buckets[e.Key] = b
		}
		b.labels = append(b.labels, e.Label)
		b.values = append(b.values, e.Value)
		if strings.Contains(e.Unit, percentUnit) {
			b.unit = percentUnit
		}
	}

	var out []Total
	for key, b := range buckets {
		sort.Float64s(b.values)
		sum := 0.0
		for _, v := range b.values {
			sum += v
		}
		if isNetZero(sum) {
			continue
		}
		sort.Strings(b.labels)
		label := b.labels[0]
		if label == "" {
			label = key
		}
		out = append(out, Total{
			Key:       key,
			Label:     label,
			Unit:      b.unit,
			Value:     sum,
			Category:  categorize(label),
			Formatted: formatSigned(sum, b.unit),
			Class:     signClass(sum),
		})
	}
	sortTotals(out)
	return out
}

func signRank(v float64) int {
	switch {
	case v > 0:
		return 0
	case v < 0:
		return 2
	default:
		return 1
	}
}

// sortTotals puts buffs before debuffs, then orders by label.
func sortTotals(totals []Total) {
	col := newCollator()
	sort.SliceStable(totals, func(i, j int) bool {
		a, b := totals[i], totals[j]
		if ra, rb := signRank(a.Value), signRank(b.Value); ra != rb {
			return ra < rb
		}
		if c := col.CompareString(a.Label, b.Label); c != 0 {
			return c < 0
		}
		return a.Key < b.Key
	})
}

const (
	categoryAttack  = "attack"
	categoryDefense = "defense"
	categoryHealing = "healing"
	categoryOther   = "other"
)

var categoryOrder = []struct {
	key   string
	title string
}{
	{categoryAttack, "Attack"},
	{categoryDefense, "Defense"},
	{categoryHealing, "Healing/Support"},
	{categoryOther, "Other"},
}

func categorize(label string) string {
	l := strings.ToLower(label)
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(l, w) {
				return true
			}
		}
		return false
	}
	switch {
	case containsAny("damage", "attack", "critical", "melee", "ranged", "skill"):
		return categoryAttack
	case containsAny("resistance", "armor", "hp", "def"):
		return categoryDefense
	case containsAny("healing", "heal"):
		return categoryHealing
	default:
		return categoryOther
	}
}

// groupTotals keeps the already sorted order inside each category.
func groupTotals(totals []Total) []TotalGroup {
	var groups []TotalGroup
	for _, c := range categoryOrder {
		g := TotalGroup{Category: c.key, Title: c.title}
		for _, t := range totals {
			if t.Category == c.key {
				g.Totals = append(g.Totals, t)
			}
		}
		if len(g.Totals) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

// detectConflicts flags every slot that has, for some key, a strictly
// positive sum while another slot has a strictly negative one.
func detectConflicts(slotEffects [slotCount][]keyedEffect) [slotCount]bool {
	var sums [slotCount]map[string]float64
	for i, effs := range slotEffects {
		sums[i] = map[string]float64{}
		for _, e := range effs {
			sums[i][e.Key] += e.Value
		}
	}

	var flagged [slotCount]bool
	for a := 0; a < slotCount; a++ {
		for b := a + 1; b < slotCount; b++ {
			if opposed(sums[a], sums[b]) {
				flagged[a] = true
				flagged[b] = true
			}
		}
	}
	return flagged
}

func opposed(a, b map[string]float64) bool {
	for key, va := range a {
		vb := b[key]
		if (va > 0 && vb < 0) || (va < 0 && vb > 0) {
			return true
		}
	}
	return false
}

func newCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase)
}

func sortedByName(drifters []Drifter) []Drifter {
	out := append([]Drifter(nil), drifters...)
	col := newCollator()
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}

func slotOptions(byName []Drifter, st PlannerState, slot int) []OptionView {
	own := st.Slots[slot]
	used := map[string]bool{}
	for _, id := range st.Slots {
		if id != "" {
			used[id] = true
		}
	}
	out := make([]OptionView, 0, len(byName))
	for _, d := range byName {
		out = append(out, OptionView{
			ID:          d.ID,
			Name:        d.Name,
			Selected:    d.ID == own,
			Disabled:    used[d.ID] && d.ID != own,
			Undesirable: d.Undesirable,
		})
	}
	return out
}

func mainOptions(byName []Drifter, current string) []OptionView {
	out := make([]OptionView, 0, len(byName))
	for _, d := range byName {
		out = append(out, OptionView{ID: d.ID, Name: d.Name, Selected: d.ID == current})
	}
	return out
}

var statusLabels = map[string]string{
	statusMaxed:   "MAX LV/TIER",
	statusPartial: "PARTIAL",
	statusUnknown: "MISSING INFO",
}

func drifterRows(drifters []Drifter, mode string, selected map[string]bool) []DrifterRow {
	sorted := sortedByName(drifters)
	if mode == sortByStatus {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].statusWeight() < sorted[j].statusWeight()
		})
	}
	rows := make([]DrifterRow, 0, len(sorted))
	for _, d := range sorted {
		rows = append(rows, DrifterRow{Drifter: d, StatusLabel: statusLabels[d.Status()], Selected: selected[d.ID]})
	}
	return rows
}

package main

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	mainSortAlpha = "alpha"
	mainSortBuff  = "buff"
)

var ErrUnknownAttribute = errors.New("unknown attribute")

const (
	attrSTR = "STR"
	attrDEX = "DEX"
	attrINT = "INT"
)

var attrOrder = []string{attrSTR, attrDEX, attrINT}

var attrLabels = map[string]string{
	attrSTR: "Strength",
	attrDEX: "Dexterity",
	attrINT: "Intelligence",
}

type attrBonus struct {
	Stat     string
	PerPoint float64
	Unit     string
}

// Stat gained per attribute point above the drifter's base.
var attrBonusTable = map[string][]attrBonus{
	attrSTR: {
		{"Max HP Bonus", 0.25, percentUnit},
		{"Base Damage and Healing Bonus", 0.05, percentUnit},
		{"Damage Bonus (PvE)", 0.1, percentUnit},
		{"Block", 0.5, ""},
		{"Control Resistance", 0.1, ""},
	},
	attrDEX: {
		{"Attack Speed Bonus", 0.18, percentUnit},
		{"Critical Rate", 0.05, percentUnit},
		{"Physical Damage Bonus", 0.25, percentUnit},
		{"Tenacity Penetration", 0.15, ""},
		{"Armor", 0.15, ""},
	},
	attrINT: {
		{"MP", 0.5, ""},
		{"Casting Speed Bonus", 0.3, percentUnit},
		{"Skill Cooldown Rate Bonus", 0.06, percentUnit},
		{"Magic Damage Bonus", 0.25, percentUnit},
		{"Healing Bonus", 0.25, percentUnit},
		{"Magic Resistance", 0.15, ""},
	},
}

// MainSelection is the drifter whose own stats are previewed.
type MainSelection struct {
	DrifterID string
	Level     int
	MaxLevel  int
	Custom    map[string]float64
}

func (p *Planner) SelectMain(id string) error {
	id = strings.TrimSpace(id)
	if id != "" {
		if _, ok := p.roster().Get(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDrifter, id)
		}
	}
	p.state.Main.DrifterID = id
	p.resetMain()
	return nil
}

// resetMain restores the level range from the raw record and clears custom
// attributes.
func (p *Planner) resetMain() {
	level, maxLevel := defaultNormalLevel, defaultMaxLevel
	if raw, ok := p.catalog.RawDrifter(p.state.Main.DrifterID); ok {
		if v := raw.SupportLevel.intOr(defaultNormalLevel); v > 0 {
			level = v
		}
		if v := raw.MaxSupportLevel.intOr(defaultMaxLevel); v > 0 {
			maxLevel = v
		}
	}
	p.state.Main.MaxLevel = max(1, maxLevel)
	p.state.Main.Custom = nil
	p.setMainLevel(float64(level))
}

func (p *Planner) setMainLevel(level float64) {
	p.state.Main.Level = clampInt(int(math.Round(level)), 1, p.state.Main.MaxLevel)
}

// StepMainLevel is ignored while no main drifter is selected.
func (p *Planner) StepMainLevel(step int) {
	if p.state.Main.DrifterID == "" {
		return
	}
	p.setMainLevel(float64(p.state.Main.Level + step))
}

// SetCustomAttr overrides an attribute value; nil clears the override.
func (p *Planner) SetCustomAttr(attr string, value *float64) error {
	attr = strings.ToUpper(strings.TrimSpace(attr))
	if _, ok := attrLabels[attr]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, attr)
	}
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		delete(p.state.Main.Custom, attr)
		return nil
	}
	if p.state.Main.Custom == nil {
		p.state.Main.Custom = map[string]float64{}
	}
	p.state.Main.Custom[attr] = *value
	return nil
}

func (p *Planner) ToggleMainStatsSort() {
	if p.state.MainStatsSort == mainSortBuff {
		p.state.MainStatsSort = mainSortAlpha
		return
	}
	p.state.MainStatsSort = mainSortBuff
}

type AttributeLine struct {
	Attr      string
	Label     string
	Value     string
	PerLevel  string
	Effective float64
	Known     bool
}

type StatLine struct {
	Key       string
	Final     string
	Detail    string
	Class     string
	BuffDelta float64
}

type SupportLine struct {
	Buff   string
	Debuff string
}

type MainStatsView struct {
	DrifterID  string
	Name       string
	Level      int
	MaxLevel   int
	Attributes []AttributeLine
	Support    *SupportLine
	Stats      []StatLine
	NoStats    bool
	Skills     []string
	Missing    bool
}

type statAdjust struct {
	value float64
	unit  string
}

// computeMainStats previews the main drifter's own stats with its level,
// attribute overrides and the team totals applied. It returns nil when no
// main drifter is selected.
func computeMainStats(cat *Catalog, st PlannerState, totals []Total) *MainStatsView {
	id := st.Main.DrifterID
	if id == "" {
		return nil
	}
	raw, ok := cat.RawDrifter(id)
	if !ok {
		return &MainStatsView{DrifterID: id, Missing: true}
	}
	view := &MainStatsView{
		DrifterID: id,
		Name:      cat.Manifest.alias(raw.Name),
		Level:     st.Main.Level,
		MaxLevel:  st.Main.MaxLevel,
	}
	levelsGained := float64(max(0, st.Main.Level-1))

	bases := map[string]looseNumber{attrSTR: raw.BaseStr, attrDEX: raw.BaseDex, attrINT: raw.BaseInt}
	perLevel := map[string]looseNumber{attrSTR: raw.StrBonus, attrDEX: raw.DexBonus, attrINT: raw.IntBonus}

	actual := map[string]*float64{}
	for _, a := range attrOrder {
		if v, ok := st.Main.Custom[a]; ok {
			actual[a] = &v
			continue
		}
		if b := bases[a]; b.Present && b.Valid {
			v := b.Value + perLevel[a].floatOr(0)*levelsGained
			actual[a] = &v
		}
	}

	adjust := map[string]*statAdjust{}
	for _, a := range attrOrder {
		gain := perLevel[a].floatOr(0) * levelsGained
		if v := actual[a]; v != nil {
			gain = *v - bases[a].floatOr(0)
		}
		for _, row := range attrBonusTable[a] {
			adj := adjust[row.Stat]
			if adj == nil {
				adj = &statAdjust{unit: row.Unit}
				adjust[row.Stat] = adj
			}
			adj.value += gain * row.PerPoint
		}
	}

	for _, a := range attrOrder {
		b := bases[a]
		if !b.Present {
			continue
		}
		line := AttributeLine{Attr: a, Label: attrLabels[a], Value: b.Raw}
		if v := actual[a]; v != nil {
			line.Value = fmt.Sprintf("%.2f", *v)
			line.Effective = *v
			line.Known = true
		}
		if pl := perLevel[a]; pl.Present && strings.TrimSpace(pl.Raw) != "" {
			line.PerLevel = pl.Raw
		}
		view.Attributes = append(view.Attributes, line)
	}

	src := raw.Normal
	if raw.prefersMaximized(st.Maximized) && raw.Maximized != nil {
		src = raw.Maximized
	}
	if src.hasNames() {
		view.Support = &SupportLine{Buff: src.buffText(), Debuff: src.debuffText()}
	}

	view.NoStats = len(raw.Stats) == 0
	values := map[string]string{}
	var keys []string
	for _, s := range raw.Stats {
		if _, dup := values[s.Key]; !dup {
			keys = append(keys, s.Key)
		}
		values[s.Key] = s.Value
	}
	for stat, adj := range adjust {
		if _, ok := values[stat]; !ok {
			values[stat] = "0" + adj.unit
			keys = append(keys, stat)
		}
	}

	for _, key := range keys {
		view.Stats = append(view.Stats, statLine(key, values[key], adjust[key], lookupTotal(cat.Manifest, totals, key)))
	}
	sortStatLines(view.Stats, st.MainStatsSort)

	for _, s := range []struct {
		label string
		info  *skillInfo
	}{{"Active", raw.Skill}, {"Passive", raw.Passive}} {
		if line := skillLine(s.label, s.info); line != "" {
			view.Skills = append(view.Skills, line)
		}
	}
	return view
}

// lookupTotal matches a stat name to a team total through the manifest's
// stat types, then by label.
func lookupTotal(m Manifest, totals []Total, stat string) *Total {
	key := m.statType(stat)
	for i := range totals {
		if key != "" && totals[i].Key == key {
			return &totals[i]
		}
	}
	if key != "" {
		return nil
	}
	for i := range totals {
		if totals[i].Label == stat {
			return &totals[i]
		}
	}
	return nil
}

func statLine(key, rawValue string, adj *statAdjust, total *Total) StatLine {
	base := parseStatValue(rawValue)
	var delta, attrDelta float64
	var deltaUnit, attrUnit string
	if total != nil {
		delta, deltaUnit = total.Value, total.Unit
	}
	if adj != nil {
		attrDelta, attrUnit = adj.value, adj.unit
	}
	unit := ""
	if base.Unit == percentUnit || strings.Contains(deltaUnit, percentUnit) || strings.Contains(attrUnit, percentUnit) {
		unit = percentUnit
	}

	line := StatLine{Key: key, BuffDelta: delta, Class: signClass(delta), Final: rawValue}
	if !base.Valid {
		return line
	}
	final := base.Value + attrDelta + delta
	line.Final = formatNumber(final, unit)

	var parts []string
	if !isNetZero(attrDelta) {
		parts = append(parts, "attr "+formatDelta(attrDelta, unit))
	}
	if !isNetZero(delta) {
		parts = append(parts, "buffs "+formatDelta(delta, unit))
	}
	if len(parts) > 0 {
		line.Detail = fmt.Sprintf("base %s; %s", formatNumber(base.Value, unit), strings.Join(parts, "; "))
	}
	return line
}

func sortStatLines(lines []StatLine, mode string) {
	col := newCollator()
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if mode == mainSortBuff {
			if ra, rb := signRank(a.BuffDelta), signRank(b.BuffDelta); ra != rb {
				return ra < rb
			}
		}
		return col.CompareString(a.Key, b.Key) < 0
	})
}

func skillLine(label string, s *skillInfo) string {
	if s == nil || strings.TrimSpace(s.Name.String()) == "" {
		return ""
	}
	var parts []string
	if v := strings.TrimSpace(s.Cooldown.String()); v != "" {
		parts = append(parts, "CD "+v)
	}
	if v := strings.TrimSpace(s.ManaCost.String()); v != "" {
		parts = append(parts, "MP "+v)
	}
	if v := strings.TrimSpace(s.CastingRange.String()); v != "" {
		parts = append(parts, "Range "+v)
	}
	suffix := ""
	if len(parts) > 0 {
		suffix = " (" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprintf("%s: %s%s", label, s.Name.String(), suffix)
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

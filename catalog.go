package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrNoDrifters   = errors.New("no drifters loaded from the JSON documents")
	ErrNoCompanions = errors.New("no companions loaded from the JSON document")
)

// FallbackPolicy decides which bonus record a drifter uses when its
// preferred one is empty.
type FallbackPolicy string

const (
	// PolicyStrict always uses the preferred record and only drops hidden drifters.
	PolicyStrict FallbackPolicy = "strict"
	// PolicyFallback switches to the other record when the preferred one has
	// no text, and drops the drifter when neither does.
	PolicyFallback FallbackPolicy = "fallback"
)

func parseFallbackPolicy(raw string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyFallback:
		return PolicyFallback, nil
	default:
		return "", fmt.Errorf("unsupported fallback policy %q", raw)
	}
}

const (
	defaultNormalTier   = "I"
	defaultMaxTier      = "XI"
	defaultNormalLevel  = 1
	defaultMaxLevel     = 50
	defaultCategoryName = "N/A"
)

// looseString accepts strings, numbers and null.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	if r.Type == gjson.Null {
		*s = ""
		return nil
	}
	*s = looseString(r.String())
	return nil
}

func (s looseString) String() string { return string(s) }

// looseNumber accepts numbers and numeric strings. Present is set for any
// non-null value, Valid only when it parsed as a number.
type looseNumber struct {
	Raw     string
	Value   float64
	Present bool
	Valid   bool
}

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	switch r.Type {
	case gjson.Null:
		*n = looseNumber{}
	case gjson.Number:
		*n = looseNumber{Raw: r.Raw, Value: r.Float(), Present: true, Valid: true}
	case gjson.String:
		v, ok := leadingFloat(strings.TrimSpace(r.Str))
		*n = looseNumber{Raw: r.Str, Value: v, Present: true, Valid: ok}
	default:
		*n = looseNumber{Raw: r.Raw, Present: true}
	}
	return nil
}

func (n looseNumber) intOr(def int) int {
	if !n.Valid {
		return def
	}
	return int(n.Value)
}

func (n looseNumber) floatOr(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

type supportBonus struct {
	Bonus      looseString `json:"supportBonus"`
	BonusValue looseString `json:"supportBonusValue"`
	Malus      looseString `json:"supportMalus"`
	MalusValue looseString `json:"supportMalusValue"`
	TypeBuff   looseString `json:"type_buff"`
	TypeDebuff looseString `json:"type_debuff"`
}

func (b *supportBonus) buffText() string {
	if b == nil {
		return ""
	}
	return buildBuffText(b.Bonus.String(), b.BonusValue.String())
}

func (b *supportBonus) debuffText() string {
	if b == nil {
		return ""
	}
	return buildBuffText(b.Malus.String(), b.MalusValue.String())
}

func (b *supportBonus) hasText() bool {
	return b.buffText() != "" || b.debuffText() != ""
}

func (b *supportBonus) hasNames() bool {
	return b != nil && (cleanStr(b.Bonus.String()) != "" || cleanStr(b.Malus.String()) != "")
}

type skillInfo struct {
	Name         looseString `json:"skillName"`
	Cooldown     looseString `json:"cooldown"`
	ManaCost     looseString `json:"manaCost"`
	CastingRange looseString `json:"castingRange"`
}

type statEntry struct {
	Key   string
	Value string
}

// RawDrifter is one entry of a drifter document as loaded. GameID and
// Stats are filled by the loader, which keeps document order.
type RawDrifter struct {
	GameID          string        `json:"-"`
	Name            string        `json:"name"`
	Show            *bool         `json:"show"`
	UseMaximized    *bool         `json:"useMaximizedSupport"`
	Normal          *supportBonus `json:"supportStationBonus"`
	Maximized       *supportBonus `json:"maximizedSupportStationBonus"`
	SupportTier     looseString   `json:"supportTier"`
	MaxSupportTier  looseString   `json:"maxSupportTier"`
	SupportLevel    looseNumber   `json:"supportLevel"`
	MaxSupportLevel looseNumber   `json:"maxSupportLevel"`
	BaseStr         looseNumber   `json:"baseStr"`
	BaseDex         looseNumber   `json:"baseDex"`
	BaseInt         looseNumber   `json:"baseInt"`
	StrBonus        looseNumber   `json:"strBonus"`
	DexBonus        looseNumber   `json:"dexBonus"`
	IntBonus        looseNumber   `json:"intBonus"`
	Skill           *skillInfo    `json:"skill"`
	Passive         *skillInfo    `json:"passive"`
	Stats           []statEntry   `json:"-"`
}

func (r *RawDrifter) hidden() bool {
	return r.Show != nil && !*r.Show
}

// prefersMaximized applies the per-drifter override before the global default.
func (r *RawDrifter) prefersMaximized(def bool) bool {
	if r.UseMaximized != nil {
		return *r.UseMaximized
	}
	return def
}

func (r *RawDrifter) bonusFor(maximized bool) *supportBonus {
	if maximized {
		return r.Maximized
	}
	return r.Normal
}

// Drifter is the derived, display-ready view of a RawDrifter for one mode.
type Drifter struct {
	ID          string
	Name        string
	Buff        string
	Debuff      string
	TypeBuff    string
	TypeDebuff  string
	Tier        string
	Level       int
	Maxed       bool
	Undesirable bool
}

func (d Drifter) HasInfo() bool {
	return !isPlaceholder(d.Buff) || !isPlaceholder(d.Debuff)
}

const (
	statusMaxed   = "max"
	statusPartial = "partial"
	statusUnknown = "unknown"
)

func (d Drifter) Status() string {
	switch {
	case d.Maxed:
		return statusMaxed
	case d.HasInfo():
		return statusPartial
	default:
		return statusUnknown
	}
}

func (d Drifter) statusWeight() int {
	switch d.Status() {
	case statusMaxed:
		return 2
	case statusPartial:
		return 1
	default:
		return 0
	}
}

// deriveDrifter picks the bonus record for the requested mode. The second
// result is false when the drifter must not be listed.
func deriveDrifter(raw *RawDrifter, maximizedDefault bool, policy FallbackPolicy, m Manifest) (Drifter, bool) {
	if raw.hidden() {
		return Drifter{}, false
	}
	maxed := raw.prefersMaximized(maximizedDefault)
	src := raw.bonusFor(maxed)
	if policy == PolicyFallback && !src.hasText() {
		other := raw.bonusFor(!maxed)
		if !other.hasText() {
			return Drifter{}, false
		}
		maxed = !maxed
		src = other
	}

	d := Drifter{
		ID:     raw.GameID,
		Name:   m.alias(raw.Name),
		Buff:   orPlaceholder(src.buffText()),
		Debuff: orPlaceholder(src.debuffText()),
		Maxed:  maxed,
	}
	if src != nil {
		d.TypeBuff = strings.TrimSpace(src.TypeBuff.String())
		d.TypeDebuff = strings.TrimSpace(src.TypeDebuff.String())
	}
	if maxed {
		d.Tier = orDefault(raw.MaxSupportTier.String(), defaultMaxTier)
		d.Level = raw.MaxSupportLevel.intOr(defaultMaxLevel)
	} else {
		d.Tier = orDefault(raw.SupportTier.String(), defaultNormalTier)
		d.Level = raw.SupportLevel.intOr(defaultNormalLevel)
	}
	d.Undesirable = m.isUndesirable(d.Name)
	return d, true
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholderEffect
	}
	return s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// keyedEffect is an Effect with its aggregation key resolved.
type keyedEffect struct {
	Key string
	Effect
}

// effectKey prefers the record's explicit type code, then the manifest's
// type for the label, then the label and unit themselves.
func effectKey(explicitType string, e Effect, m Manifest) string {
	if t := strings.TrimSpace(explicitType); t != "" {
		return t
	}
	if t := m.statType(e.Label); t != "" {
		return t
	}
	return e.Key()
}

func keyedEffectOf(text, explicitType string, m Manifest) (keyedEffect, bool) {
	e, ok := ParseEffect(text)
	if !ok {
		return keyedEffect{}, false
	}
	return keyedEffect{Key: effectKey(explicitType, e, m), Effect: e}, true
}

func (d Drifter) effects(m Manifest) []keyedEffect {
	var out []keyedEffect
	if e, ok := keyedEffectOf(d.Buff, d.TypeBuff, m); ok {
		out = append(out, e)
	}
	if e, ok := keyedEffectOf(d.Debuff, d.TypeDebuff, m); ok {
		out = append(out, e)
	}
	return out
}

// Companion is a synergy bonus that activates when enough of its members
// are slotted.
type Companion struct {
	Name      string
	Bonus     string
	Required  int
	MemberIDs []string
	TypeBonus string
	Category  string
}

func (c Companion) memberCount(selected map[string]bool) int {
	n := 0
	for _, id := range c.MemberIDs {
		if selected[id] {
			n++
		}
	}
	return n
}

func (c Companion) active(selected map[string]bool) bool {
	return c.memberCount(selected) >= c.Required
}

func (c Companion) effects(m Manifest) []keyedEffect {
	if e, ok := keyedEffectOf(c.Bonus, c.TypeBonus, m); ok {
		return []keyedEffect{e}
	}
	return nil
}

// Roster is the set of listed drifters for one maximized mode.
type Roster struct {
	Drifters []Drifter
	byID     map[string]Drifter
}

func (r *Roster) Get(id string) (Drifter, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Catalog holds everything loaded from the data documents. It is immutable
// after newCatalog returns and safe to share.
type Catalog struct {
	Manifest   Manifest
	Policy     FallbackPolicy
	Raw        []*RawDrifter
	Companions []Companion

	rawByID map[string]*RawDrifter
	rosters map[bool]*Roster
}

func newCatalog(m Manifest, policy FallbackPolicy, raws []*RawDrifter, companions []Companion) (*Catalog, error) {
	if len(raws) == 0 {
		return nil, ErrNoDrifters
	}
	if len(companions) == 0 {
		return nil, ErrNoCompanions
	}
	c := &Catalog{
		Manifest:   m,
		Policy:     policy,
		Raw:        raws,
		Companions: companions,
		rawByID:    make(map[string]*RawDrifter, len(raws)),
		rosters:    map[bool]*Roster{},
	}
	for _, r := range raws {
		if strings.TrimSpace(r.GameID) == "" {
			return nil, fmt.Errorf("drifter %q has no gameId", r.Name)
		}
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("drifter %s has no name", r.GameID)
		}
		if _, dup := c.rawByID[r.GameID]; dup {
			return nil, fmt.Errorf("duplicate drifter gameId %s", r.GameID)
		}
		c.rawByID[r.GameID] = r
	}
	for _, maximized := range []bool{false, true} {
		roster, err := buildRoster(raws, maximized, policy, m)
		if err != nil {
			return nil, err
		}
		c.rosters[maximized] = roster
	}
	return c, nil
}

func buildRoster(raws []*RawDrifter, maximized bool, policy FallbackPolicy, m Manifest) (*Roster, error) {
	roster := &Roster{byID: map[string]Drifter{}}
	names := map[string]string{}
	for _, r := range raws {
		d, ok := deriveDrifter(r, maximized, policy, m)
		if !ok {
			continue
		}
		if other, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("drifters %s and %s share the name %q", other, d.ID, d.Name)
		}
		names[d.Name] = d.ID
		roster.Drifters = append(roster.Drifters, d)
		roster.byID[d.ID] = d
	}
	return roster, nil
}

// Roster returns the drifters derived with the given maximized default.
func (c *Catalog) Roster(maximized bool) *Roster {
	return c.rosters[maximized]
}

func (c *Catalog) RawDrifter(id string) (*RawDrifter, bool) {
	r, ok := c.rawByID[id]
	return r, ok
}

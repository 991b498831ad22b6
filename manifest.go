package main

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Manifest names the data documents and the static lookup tables that go
// with them.
type Manifest struct {
	DrifterFiles   []string          `yaml:"drifter_files"`
	CompanionsFile string            `yaml:"companions_file"`
	NameAliases    map[string]string `yaml:"name_aliases"`
	Undesirable    []string          `yaml:"undesirable"`
	StatTypes      map[string]string `yaml:"stat_types"`
}

func defaultManifest() Manifest {
	return Manifest{
		DrifterFiles: []string{
			"data/drifters/str_drifter.json",
			"data/drifters/dex_drifter.json",
			"data/drifters/int_drifter.json",
			"data/drifters/gather_drifter.json",
		},
		CompanionsFile: "data/companions_planner.json",
		NameAliases: map[string]string{
			"ShadowSeer": "Shadowseer",
		},
		Undesirable: []string{
			"Astral Magus",
			"Blade",
			"Draknor",
			"Illusarch",
			"Mole",
			"Revelation",
			"Sanguor",
		},
		StatTypes: map[string]string{
			"Armor":                     "armor",
			"Magic Resistance":          "magic_resist",
			"Attack Speed Bonus":        "attack_speed",
			"Skill Cooldown Rate Bonus": "skill_cdr",
			"Physical Damage Bonus":     "physical_dmg_bonus",
			"Magic Damage Bonus":        "magic_dmg_bonus",
			"Healing Bonus":             "healing_bonus",
			"Damage Bonus (PvE)":        "dmg_bonus_pve",
			"Critical Rate":             "crit_rate",
			"Max HP Bonus":              "max_hp_bonus",
			"Max MP Bonus":              "max_mp_bonus",
			"Control Resistance":        "control_resist_base",
			"Base Control Resistance":   "control_resist_base",
		},
	}
}

// loadManifest reads a YAML manifest over the defaults. An empty path
// returns the defaults unchanged.
func loadManifest(path string) (Manifest, error) {
	m := defaultManifest()
	if path == "" {
		return m, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var override Manifest
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(override.DrifterFiles) > 0 {
		m.DrifterFiles = override.DrifterFiles
	}
	if override.CompanionsFile != "" {
		m.CompanionsFile = override.CompanionsFile
	}
	if override.NameAliases != nil {
		m.NameAliases = override.NameAliases
	}
	if override.Undesirable != nil {
		m.Undesirable = override.Undesirable
	}
	if override.StatTypes != nil {
		m.StatTypes = override.StatTypes
	}
	return m, nil
}

func (m Manifest) alias(name string) string {
	if to, ok := m.NameAliases[name]; ok && to != "" {
		return to
	}
	return name
}

func (m Manifest) isUndesirable(name string) bool {
	return slices.Contains(m.Undesirable, name)
}

func (m Manifest) statType(label string) string {
	return m.StatTypes[label]
}

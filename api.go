package main

type totalJSON struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
	Category string  `json:"category"`
	Display  string  `json:"display"`
}

type slotJSON struct {
	Slot      int    `json:"slot"`
	DrifterID string `json:"drifterId,omitempty"`
	Name      string `json:"name,omitempty"`
	Buff      string `json:"buff"`
	Debuff    string `json:"debuff"`
	Conflict  bool   `json:"conflict"`
}

type companionJSON struct {
	Name     string   `json:"name"`
	Bonus    string   `json:"bonus"`
	Required int      `json:"required"`
	Members  []string `json:"members"`
	Count    int      `json:"count"`
	Active   bool     `json:"active"`
}

type planResponse struct {
	Maximized  bool            `json:"maximized"`
	Slots      []slotJSON      `json:"slots"`
	Totals     []totalJSON     `json:"totals"`
	Companions []companionJSON `json:"companions"`
	Conflicts  []int           `json:"conflicts"`
}

// planJSON flattens a PlanView for the JSON endpoint and the MCP tools.
func planJSON(v PlanView) planResponse {
	out := planResponse{
		Maximized:  v.Maximized,
		Slots:      make([]slotJSON, 0, len(v.Slots)),
		Totals:     make([]totalJSON, 0, len(v.Totals)),
		Companions: make([]companionJSON, 0, len(v.Companions)),
		Conflicts:  append([]int{}, v.Conflicts...),
	}
	for _, s := range v.Slots {
		sj := slotJSON{Slot: s.Number, Buff: s.Buff, Debuff: s.Debuff, Conflict: s.Conflict}
		if s.Drifter != nil {
			sj.DrifterID = s.Drifter.ID
			sj.Name = s.Drifter.Name
		}
		out.Slots = append(out.Slots, sj)
	}
	for _, t := range v.Totals {
		out.Totals = append(out.Totals, totalJSON{
			Key:      t.Key,
			Label:    t.Label,
			Value:    t.Value,
			Unit:     t.Unit,
			Category: t.Category,
			Display:  t.Label + " " + t.Formatted,
		})
	}
	for _, c := range v.Companions {
		cj := companionJSON{Name: c.Name, Bonus: c.Bonus, Required: c.Required, Count: c.MemberCount, Active: c.Active, Members: []string{}}
		for _, m := range c.Members {
			cj.Members = append(cj.Members, m.Name)
		}
		out.Companions = append(out.Companions, cj)
	}
	return out
}

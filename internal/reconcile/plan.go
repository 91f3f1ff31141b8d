package reconcile

import (
	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

// Upsert is one planned write in submitted row order. Inserts carry a freshly
// assigned identifier; updates carry the existing one.
type Upsert struct {
	Row    Row
	ID     string
	Insert bool
}

// Plan is the delta between a town's light points and an incoming dataset.
type Plan struct {
	// Keep lists surviving existing identifiers in their current order.
	Keep    []string
	Deletes []string
	Upserts []Upsert
}

// Updated returns the identifiers scheduled for update.
func (p Plan) Updated() []string {
	var out []string
	for _, u := range p.Upserts {
		if !u.Insert {
			out = append(out, u.ID)
		}
	}
	return out
}

// Inserted returns the scheduled inserts.
func (p Plan) Inserted() []Upsert {
	var out []Upsert
	for _, u := range p.Upserts {
		if u.Insert {
			out = append(out, u)
		}
	}
	return out
}

// LightPointIDs is the town list after the plan is applied: surviving
// identifiers followed by new ones.
func (p Plan) LightPointIDs() []string {
	out := make([]string, 0, len(p.Keep)+len(p.Upserts))
	out = append(out, p.Keep...)
	for _, u := range p.Upserts {
		if u.Insert {
			out = append(out, u.ID)
		}
	}
	return out
}

// NewPlan diffs rows against existing. Rows naming an existing identifier
// update it; rows without one, or naming an unknown one, become inserts with
// a new identifier. Existing points no row names are deleted.
func NewPlan(existing []lighting.LightPoint, rows []Row) (Plan, error) {
	current := make(map[string]lighting.LightPoint, len(existing))
	for _, lp := range existing {
		current[lp.ID] = lp
	}

	var p Plan
	named := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.ID != "" {
			if prev, dup := named[row.ID]; dup {
				return Plan{}, lighting.Invalidf("light_points[%d] repeats _id %s of light_points[%d]", row.Index, row.ID, prev)
			}
			named[row.ID] = row.Index
		}
		if _, ok := current[row.ID]; ok && row.ID != "" {
			p.Upserts = append(p.Upserts, Upsert{Row: row, ID: row.ID})
			continue
		}
		p.Upserts = append(p.Upserts, Upsert{Row: row, ID: ids.New(), Insert: true})
	}

	seen := make(map[string]struct{}, len(existing))
	for _, lp := range existing {
		if _, dup := seen[lp.ID]; dup {
			continue
		}
		seen[lp.ID] = struct{}{}
		if _, ok := named[lp.ID]; ok {
			p.Keep = append(p.Keep, lp.ID)
		} else {
			p.Deletes = append(p.Deletes, lp.ID)
		}
	}

	if err := checkPoles(current, p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// checkPoles rejects plans that leave two light points of the town with the
// same non-empty pole number. Every surviving point appears in p.Upserts.
func checkPoles(current map[string]lighting.LightPoint, p Plan) error {
	owners := make(map[string]int, len(p.Upserts))
	for _, u := range p.Upserts {
		pole, ok := u.Row.Fields[lighting.FieldNumeroPalo]
		if !ok && !u.Insert {
			pole = current[u.ID].NumeroPalo
		}
		key := lighting.PoleKey(pole)
		if key == "" {
			continue
		}
		if prev, dup := owners[key]; dup {
			return lighting.Invalidf("duplicate numero_palo %q in light_points[%d] and light_points[%d]", key, prev, u.Row.Index)
		}
		owners[key] = u.Row.Index
	}
	return nil
}

// NewPoint builds the light point an insert will store.
func (u Upsert) NewPoint() lighting.LightPoint {
	lp := lighting.LightPoint{ID: u.ID}
	lp.Apply(u.Row.Fields)
	return lp
}

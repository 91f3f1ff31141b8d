// Package reconcile converges a town's light points to an incoming dataset.
package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"lightingmap.app/internal/lighting"
)

// Row is one normalized incoming light point record.
type Row struct {
	// Index is the position of the row in the submitted payload.
	Index  int               `json:"row"`
	ID     string            `json:"_id,omitempty"`
	Fields map[string]string `json:"fields"`
}

// Describe identifies the row in diagnostics.
func (r Row) Describe() string {
	parts := []string{fmt.Sprintf("row %d", r.Index)}
	if r.ID != "" {
		parts = append(parts, "_id "+r.ID)
	}
	if m := r.Fields[lighting.FieldMarker]; m != "" {
		parts = append(parts, "marker "+m)
	}
	if p := r.Fields[lighting.FieldNumeroPalo]; p != "" {
		parts = append(parts, "numero_palo "+p)
	}
	return strings.Join(parts, ", ")
}

// Legacy spreadsheet headers mapped to canonical fields.
var aliases = map[string]string{
	"lampada_e_potenza": lighting.FieldLampadaPotenza,
	"lampada_potenza_w": lighting.FieldLampadaPotenza,
	"n_palo":            lighting.FieldNumeroPalo,
	"numero_di_palo":    lighting.FieldNumeroPalo,
	"latitudine":        lighting.FieldLat,
	"longitudine":       lighting.FieldLng,
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// DecodeRows parses a JSON array of objects. Anything else is a validation
// failure. A missing or null payload yields no rows.
func DecodeRows(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] != '[' {
		return nil, lighting.Invalidf("light_points must be an array")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, lighting.Invalidf("light_points: %v", err)
	}
	out := make([]map[string]any, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, lighting.Invalidf("light_points[%d] is not an object", i)
		}
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		if err := dec.Decode(&out[i]); err != nil {
			return nil, lighting.Invalidf("light_points[%d]: %v", i, err)
		}
	}
	return out, nil
}

// Normalize lower-cases keys, keeps canonical fields and known aliases, and
// drops identifier-less rows whose fields are all blank. Canonical keys win
// over aliases for the same field.
func Normalize(rows []map[string]any) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for i, raw := range rows {
		if raw == nil {
			return nil, lighting.Invalidf("light_points[%d] is not an object", i)
		}
		row := Row{Index: i, Fields: make(map[string]string)}
		aliased := map[string]string{}
		for k, v := range raw {
			key := canonicalKey(k)
			switch {
			case key == "_id" || key == "id":
				if row.ID == "" || key == "_id" {
					row.ID = strings.TrimSpace(stringify(v))
				}
			case lighting.IsField(key):
				row.Fields[key] = stringify(v)
			default:
				if canon, ok := aliases[key]; ok {
					aliased[canon] = stringify(v)
				}
			}
		}
		for k, v := range aliased {
			if _, set := row.Fields[k]; !set {
				row.Fields[k] = v
			}
		}
		if row.ID == "" && blank(row.Fields) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func blank(fields map[string]string) bool {
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

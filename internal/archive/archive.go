// Package archive stores audit exports of bulk light point changes.
package archive

import (
	"context"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Table is one categorized sheet of an export.
type Table struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Export groups the tables produced by one bulk change to a town.
type Export struct {
	Kind   string    `json:"kind"`
	Town   string    `json:"town"`
	TownID string    `json:"town_id"`
	At     time.Time `json:"at"`
	Tables []Table   `json:"tables"`
}

// Archiver persists an export and returns where it was written.
type Archiver interface {
	Archive(ctx context.Context, e Export) (string, error)
}

// Nop discards exports.
type Nop struct{}

func (Nop) Archive(context.Context, Export) (string, error) { return "", nil }

// Slug folds name to lower-case ASCII words joined by dashes.
func Slug(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "town"
	}
	return out
}

package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lightingmap.app/internal/archive"
	"lightingmap.app/internal/lighting"
)

// Batch phases.
const (
	PhaseDelete = "delete"
	PhaseUpsert = "upsert"
	PhaseInsert = "insert"
)

// Inserted is a stored row and the identifier it was given.
type Inserted struct {
	ID  string `json:"_id"`
	Row Row    `json:"row"`
}

// BatchStatus records one executed batch.
type BatchStatus struct {
	Phase  string `json:"phase"`
	Batch  int    `json:"batch"`
	Size   int    `json:"size"`
	Status string `json:"status"`
}

// Result accounts for one reconciliation or bulk creation. The three lists
// are disjoint.
type Result struct {
	TownID   string        `json:"town_id"`
	Town     string        `json:"town"`
	Deleted  []string      `json:"deleted"`
	Updated  []string      `json:"updated"`
	Inserted []Inserted    `json:"inserted"`
	Batches  []BatchStatus `json:"batches"`

	deletedPoints []lighting.LightPoint
	updatedRows   []Row
}

// Summary is the count view returned to HTTP callers.
type Summary struct {
	Town     string `json:"town"`
	Deleted  int    `json:"deleted"`
	Updated  int    `json:"updated"`
	Inserted int    `json:"inserted"`
	Batches  int    `json:"batches"`
}

func (r Result) Summary() Summary {
	return Summary{Town: r.Town, Deleted: len(r.Deleted), Updated: len(r.Updated), Inserted: len(r.Inserted), Batches: len(r.Batches)}
}

// Text renders the summary used in upload notifications.
func (r Result) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Town: %s\n", r.Town)
	fmt.Fprintf(&b, "Deleted: %d\nUpdated: %d\nInserted: %d\n", len(r.Deleted), len(r.Updated), len(r.Inserted))
	for _, s := range r.Batches {
		fmt.Fprintf(&b, "%s batch %d (%d rows): %s\n", s.Phase, s.Batch, s.Size, s.Status)
	}
	return b.String()
}

// Export renders the deleted, updated and inserted tables.
func (r Result) Export(kind string, at time.Time) archive.Export {
	columns := append([]string{"_id"}, lighting.Fields...)

	deleted := archive.Table{Name: "deleted", Columns: columns}
	for _, lp := range r.deletedPoints {
		row := []string{lp.ID}
		for _, f := range lighting.Fields {
			row = append(row, lp.Get(f))
		}
		deleted.Rows = append(deleted.Rows, row)
	}
	if len(r.deletedPoints) == 0 {
		for _, id := range r.Deleted {
			deleted.Rows = append(deleted.Rows, append([]string{id}, make([]string, len(lighting.Fields))...))
		}
	}

	updated := archive.Table{Name: "updated", Columns: columns}
	for _, row := range r.updatedRows {
		updated.Rows = append(updated.Rows, tableRow(row.ID, row.Fields))
	}

	inserted := archive.Table{Name: "inserted", Columns: columns}
	for _, in := range r.Inserted {
		inserted.Rows = append(inserted.Rows, tableRow(in.ID, in.Row.Fields))
	}

	return archive.Export{
		Kind:   kind,
		Town:   r.Town,
		TownID: r.TownID,
		At:     at.UTC(),
		Tables: []archive.Table{deleted, updated, inserted},
	}
}

func tableRow(id string, fields map[string]string) []string {
	row := make([]string, 0, len(lighting.Fields)+1)
	row = append(row, id)
	for _, f := range lighting.Fields {
		row = append(row, fields[f])
	}
	return row
}

// BatchError reports the batch and row that aborted a bulk write. Nothing
// from the run was committed.
type BatchError struct {
	Phase string
	Batch int
	Row   string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s batch %d failed at %s: %v", e.Phase, e.Batch, e.Row, e.Err)
}

func (e *BatchError) Unwrap() []error { return []error{lighting.ErrTransaction, e.Err} }

// AsBatchError extracts a BatchError from err.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightingmap.app/internal/lighting"
)

func TestNewPlanDiffsByIdentifier(t *testing.T) {
	existing := []lighting.LightPoint{
		{ID: "1", NumeroPalo: "10"},
		{ID: "2", NumeroPalo: "11"},
		{ID: "3", NumeroPalo: "13"},
	}
	rows := []Row{
		{Index: 0, ID: "3", Fields: map[string]string{lighting.FieldNote: "x"}},
		{Index: 1, ID: "1", Fields: map[string]string{lighting.FieldIndirizzo: "new addr"}},
		{Index: 2, Fields: map[string]string{lighting.FieldNumeroPalo: "12"}},
		{Index: 3, ID: "foreign", Fields: map[string]string{lighting.FieldNumeroPalo: "14"}},
	}

	p, err := NewPlan(existing, rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3"}, p.Keep)
	assert.Equal(t, []string{"2"}, p.Deletes)
	assert.Equal(t, []string{"3", "1"}, p.Updated())

	inserted := p.Inserted()
	require.Len(t, inserted, 2)
	assert.NotEqual(t, "foreign", inserted[1].ID)
	assert.NotEmpty(t, inserted[0].ID)
	assert.Equal(t, "12", inserted[0].NewPoint().NumeroPalo)

	assert.Equal(t, []string{"1", "3", inserted[0].ID, inserted[1].ID}, p.LightPointIDs())
}

func TestNewPlanRejectsRepeatedIdentifier(t *testing.T) {
	_, err := NewPlan([]lighting.LightPoint{{ID: "1"}}, []Row{{Index: 0, ID: "1"}, {Index: 1, ID: "1"}})
	assert.True(t, errors.Is(err, lighting.ErrValidation))
}

func TestNewPlanRejectsDuplicatePoles(t *testing.T) {
	existing := []lighting.LightPoint{{ID: "1", NumeroPalo: "10"}, {ID: "2", NumeroPalo: "11"}}

	// Row 0 moves point 1 onto the pole point 2 keeps.
	_, err := NewPlan(existing, []Row{
		{Index: 0, ID: "1", Fields: map[string]string{lighting.FieldNumeroPalo: "11"}},
		{Index: 1, ID: "2", Fields: map[string]string{}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lighting.ErrValidation))
	assert.Contains(t, err.Error(), `"11"`)

	_, err = NewPlan(nil, []Row{
		{Index: 0, Fields: map[string]string{lighting.FieldNumeroPalo: " 5"}},
		{Index: 1, Fields: map[string]string{lighting.FieldNumeroPalo: "5 "}},
	})
	assert.True(t, errors.Is(err, lighting.ErrValidation))
}

func TestNewPlanAllowsSwapsAndBlankPoles(t *testing.T) {
	existing := []lighting.LightPoint{{ID: "1", NumeroPalo: "10"}, {ID: "2", NumeroPalo: "11"}}
	_, err := NewPlan(existing, []Row{
		{Index: 0, ID: "1", Fields: map[string]string{lighting.FieldNumeroPalo: "11"}},
		{Index: 1, ID: "2", Fields: map[string]string{lighting.FieldNumeroPalo: "10"}},
		{Index: 2, Fields: map[string]string{lighting.FieldMarker: "no pole"}},
		{Index: 3, Fields: map[string]string{lighting.FieldMarker: "no pole either"}},
	})
	assert.NoError(t, err)

	// A deleted point frees its pole for a new row.
	_, err = NewPlan(existing, []Row{
		{Index: 0, ID: "1"},
		{Index: 1, Fields: map[string]string{lighting.FieldNumeroPalo: "11"}},
	})
	assert.NoError(t, err)
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Nil(t, chunk([]int{}, 2))
}

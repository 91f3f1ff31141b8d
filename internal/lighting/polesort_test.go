package lighting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComparePole(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"7", "7", 0},
		{"99", "A1", -1},
		{"B", "a", 1},
		{"città", "Citta", 0},
		{"", "1", 1},
		{"1", "", -1},
		{"", "", 0},
	}
	for _, tc := range cases {
		got := ComparePole(tc.a, tc.b)
		switch {
		case tc.want < 0:
			assert.Negative(t, got, "%q vs %q", tc.a, tc.b)
		case tc.want > 0:
			assert.Positive(t, got, "%q vs %q", tc.a, tc.b)
		default:
			assert.Zero(t, got, "%q vs %q", tc.a, tc.b)
		}
	}
}

func TestSortByPole(t *testing.T) {
	lps := []LightPoint{
		{ID: "4", NumeroPalo: "P-2"},
		{ID: "3", NumeroPalo: ""},
		{ID: "2", NumeroPalo: "10"},
		{ID: "1", NumeroPalo: "9"},
		{ID: "5", NumeroPalo: "p-1"},
	}
	SortByPole(lps)
	var got []string
	for _, lp := range lps {
		got = append(got, lp.ID)
	}
	assert.Equal(t, []string{"1", "2", "5", "4", "3"}, got)
}

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleSuperAdmin.AtLeast(RoleAdministrator))
	assert.True(t, RoleMaintainer.AtLeast(RoleMaintainer))
	assert.False(t, RoleDefaultUser.AtLeast(RoleMaintainer))
	assert.False(t, Role("GUEST").AtLeast(Role("OTHER")))

	r, err := ParseRole("")
	assert.NoError(t, err)
	assert.Equal(t, RoleDefaultUser, r)
	_, err = ParseRole("root")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseEnumsDefault(t *testing.T) {
	rt, err := ParseReportType(" ")
	assert.NoError(t, err)
	assert.Equal(t, ReportLightPointOff, rt)
	rt, err = ParseReportType("broken_panel")
	assert.NoError(t, err)
	assert.Equal(t, ReportBrokenPanel, rt)
	_, err = ParseReportType("FLOOD")
	assert.ErrorIs(t, err, ErrValidation)

	ot, err := ParseOperationType("")
	assert.NoError(t, err)
	assert.Equal(t, OpOther, ot)
	mt, err := ParseMaintenanceType("extraordinary")
	assert.NoError(t, err)
	assert.Equal(t, MaintenanceExtraordinary, mt)
	_, err = ParseOrganizationType("")
	assert.ErrorIs(t, err, ErrValidation)
}

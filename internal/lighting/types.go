package lighting

import (
	"strings"
	"time"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Town owns an ordered collection of light point references.
type Town struct {
	ID                string       `json:"_id"`
	Name              string       `json:"name"`
	Region            string       `json:"region"`
	Province          string       `json:"province"`
	Coordinates       *Coordinates `json:"coordinates,omitempty"`
	LightPointIDs     []string     `json:"punti_luce"`
	OrganizationAdmin string       `json:"organization_admin,omitempty"`
	MaintainerOrgIDs  []string     `json:"organizations_maintainers"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// LightPoint is a physical pole record. Ownership lives in Town.LightPointIDs;
// TownID only backs the per-town pole number index.
type LightPoint struct {
	ID string `json:"_id"`

	Marker            string `json:"marker"`
	NumeroPalo        string `json:"numero_palo"`
	ComposizionePunto string `json:"composizione_punto"`
	Indirizzo         string `json:"indirizzo"`
	Lotto             string `json:"lotto"`
	Quadro            string `json:"quadro"`
	Proprieta         string `json:"proprieta"`
	TipoApparecchio   string `json:"tipo_apparecchio"`
	Modello           string `json:"modello"`
	NumeroApparecchi  string `json:"numero_apparecchi"`
	LampadaPotenza    string `json:"lampada_potenza"`
	TipoSostegno      string `json:"tipo_sostegno"`
	TipoLinea         string `json:"tipo_linea"`
	Promiscuita       string `json:"promiscuita"`
	Note              string `json:"note"`
	Garanzia          string `json:"garanzia"`
	Lat               string `json:"lat"`
	Lng               string `json:"lng"`
	POD               string `json:"pod"`
	NumeroContatore   string `json:"numero_contatore"`
	Alimentazione     string `json:"alimentazione"`
	PotenzaContratto  string `json:"potenza_contratto"`
	Potenza           string `json:"potenza"`
	PuntiLuce         string `json:"punti_luce"`
	Tipo              string `json:"tipo"`

	OpenReportIDs     []string `json:"segnalazioni_in_corso"`
	ResolvedReportIDs []string `json:"segnalazioni_risolte"`
	OperationIDs      []string `json:"operazioni_effettuate"`

	TownID  string `json:"-"`
	Version int64  `json:"version"`
}

// ReportType classifies a fault.
type ReportType string

const (
	ReportLightPointOff       ReportType = "LIGHT_POINT_OFF"
	ReportPlantOff            ReportType = "PLANT_OFF"
	ReportDamagedComplex      ReportType = "DAMAGED_COMPLEX"
	ReportDamagedSupport      ReportType = "DAMAGED_SUPPORT"
	ReportBrokenTerminalBlock ReportType = "BROKEN_TERMINAL_BLOCK"
	ReportBrokenPanel         ReportType = "BROKEN_PANEL"
	ReportOther               ReportType = "OTHER"
)

var reportTypes = []ReportType{
	ReportLightPointOff, ReportPlantOff, ReportDamagedComplex, ReportDamagedSupport,
	ReportBrokenTerminalBlock, ReportBrokenPanel, ReportOther,
}

// ParseReportType defaults to LIGHT_POINT_OFF when s is blank.
func ParseReportType(s string) (ReportType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ReportLightPointOff, nil
	}
	for _, t := range reportTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", Invalidf("unknown report_type %q", s)
}

// Report is a fault notice against a light point.
type Report struct {
	ID           string     `json:"_id"`
	LightPointID string     `json:"operation_point_id"`
	Type         ReportType `json:"report_type"`
	Description  string     `json:"description"`
	Date         time.Time  `json:"report_date"`
	Time         string     `json:"report_time"`
	IsSolved     bool       `json:"is_solved"`
	CreatedBy    string     `json:"created_by,omitempty"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// OperationType classifies a maintenance action.
type OperationType string

const (
	OpMadeSafeNeedsRestoring  OperationType = "MADE_SAFE_BUT_NEEDS_RESTORING"
	OpFaultEliminatedRestored OperationType = "FAULT_ELIMINATED_AND_RESTORED"
	OpOther                   OperationType = "OTHER"
)

// ParseOperationType defaults to OTHER when s is blank.
func ParseOperationType(s string) (OperationType, error) {
	switch OperationType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", OpOther:
		return OpOther, nil
	case OpMadeSafeNeedsRestoring:
		return OpMadeSafeNeedsRestoring, nil
	case OpFaultEliminatedRestored:
		return OpFaultEliminatedRestored, nil
	}
	return "", Invalidf("unknown operation_type %q", s)
}

// MaintenanceType distinguishes planned from unplanned work.
type MaintenanceType string

const (
	MaintenanceOrdinary      MaintenanceType = "ORDINARY"
	MaintenanceExtraordinary MaintenanceType = "EXTRAORDINARY"
)

// ParseMaintenanceType defaults to ORDINARY when s is blank.
func ParseMaintenanceType(s string) (MaintenanceType, error) {
	switch MaintenanceType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", MaintenanceOrdinary:
		return MaintenanceOrdinary, nil
	case MaintenanceExtraordinary:
		return MaintenanceExtraordinary, nil
	}
	return "", Invalidf("unknown maintenance_type %q", s)
}

// PlaceholderReport stands in for a report when an operation resolves nothing.
// It is never persisted as a Report.
type PlaceholderReport struct {
	Description string `json:"description"`
}

// PlaceholderDescription is the text carried by operations without a report.
const PlaceholderDescription = "operation performed without an associated report"

// Operation is a maintenance action on a light point.
type Operation struct {
	ID              string             `json:"_id"`
	LightPointID    string             `json:"operation_point_id"`
	ResponsibleID   string             `json:"operation_responsible"`
	Type            OperationType      `json:"operation_type"`
	MaintenanceType MaintenanceType    `json:"maintenance_type"`
	Note            string             `json:"note"`
	ReportID        *string            `json:"report_to_solve"`
	Placeholder     *PlaceholderReport `json:"placeholder_report,omitempty"`
	IsSolved        bool               `json:"is_solved"`
	Date            time.Time          `json:"operation_date"`
}

// Role orders what a user may mutate.
type Role string

const (
	RoleDefaultUser   Role = "DEFAULT_USER"
	RoleMaintainer    Role = "MAINTAINER"
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleSuperAdmin    Role = "SUPER_ADMIN"
)

// Rank returns the privilege level of r; unknown roles rank below DEFAULT_USER.
func (r Role) Rank() int {
	switch r {
	case RoleDefaultUser:
		return 1
	case RoleMaintainer:
		return 2
	case RoleAdministrator:
		return 3
	case RoleSuperAdmin:
		return 4
	}
	return 0
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool { return r.Rank() >= min.Rank() && r.Rank() > 0 }

// ParseRole defaults to DEFAULT_USER when s is blank.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r == "" {
		return RoleDefaultUser, nil
	}
	if r.Rank() == 0 {
		return "", Invalidf("unknown user_type %q", s)
	}
	return r, nil
}

// User is an account that can authenticate once approved.
type User struct {
	ID             string     `json:"_id"`
	Name           string     `json:"name"`
	Surname        string     `json:"surname"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"user_type"`
	IsApproved     bool       `json:"is_approved"`
	EmailVerified  bool       `json:"email_verified"`
	TownIDs        []string   `json:"town_halls_list"`
	OrganizationID string     `json:"organization,omitempty"`
	ResetToken     string     `json:"-"`
	ResetExpires   *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"date"`
}

// FullName joins name and surname.
func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OrganizationType distinguishes municipal from contractor organizations.
type OrganizationType string

const (
	OrgTownHall   OrganizationType = "TOWNHALL"
	OrgEnterprise OrganizationType = "ENTERPRISE"
)

// Contract binds an ENTERPRISE organization to a town.
type Contract struct {
	TownID    string     `json:"townhall_associated"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Details   string     `json:"details,omitempty"`
	Price     float64    `json:"price,omitempty"`
}

// Address is a postal address.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	State      string `json:"state,omitempty"`
}

// Organization groups users; TOWNHALL ones administer a town, ENTERPRISE ones
// maintain towns under contract.
type Organization struct {
	ID            string           `json:"_id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Type          OrganizationType `json:"type"`
	Logo          string           `json:"logo,omitempty"`
	MemberIDs     []string         `json:"members"`
	ResponsibleID string           `json:"responsible,omitempty"`
	TownID        string           `json:"townhallId,omitempty"`
	Contracts     []Contract       `json:"contracts"`
	Address       *Address         `json:"address,omitempty"`
	Location      *Coordinates     `json:"location,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ParseOrganizationType rejects anything but TOWNHALL and ENTERPRISE.
func ParseOrganizationType(s string) (OrganizationType, error) {
	switch OrganizationType(strings.ToUpper(strings.TrimSpace(s))) {
	case OrgTownHall:
		return OrgTownHall, nil
	case OrgEnterprise:
		return OrgEnterprise, nil
	}
	return "", Invalidf("organization type must be TOWNHALL or ENTERPRISE")
}

// SubscriptionKeys is web push key material.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a registered push endpoint.
type Subscription struct {
	ID        string           `json:"_id"`
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	UserID    string           `json:"userId,omitempty"`
	Browser   string           `json:"browser,omitempty"`
	IsActive  bool             `json:"isActive"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Outcome tags audit records.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// AccessLog is a persisted audit record.
type AccessLog struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"user,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Details   string    `json:"details,omitempty"`
}

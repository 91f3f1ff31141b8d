package relations

import (
	"context"
	"errors"
	"strings"

	"lightingmap.app/internal/lighting"
)

// OrganizationInput describes a new organization. A contract makes it a
// maintainer of the contract's town; TownID makes it the town's admin.
type OrganizationInput struct {
	Name        string
	Description string
	Type        string
	Logo        string
	Address     *lighting.Address
	Location    *lighting.Coordinates
	Contract    *lighting.Contract
	TownID      string
}

// CreateOrganization stores the organization and links the towns it names.
// Unknown towns are skipped.
func (m *Maintainer) CreateOrganization(ctx context.Context, in OrganizationInput) (lighting.Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return lighting.Organization{}, lighting.Invalidf("organization name is required")
	}
	typ, err := lighting.ParseOrganizationType(in.Type)
	if err != nil {
		return lighting.Organization{}, err
	}
	org := lighting.Organization{
		Name:        name,
		Description: in.Description,
		Type:        typ,
		Logo:        in.Logo,
		Address:     in.Address,
		Location:    in.Location,
		TownID:      in.TownID,
	}
	if in.Contract != nil {
		org.Contracts = []lighting.Contract{*in.Contract}
	}
	err = m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		if err := tx.CreateOrganization(ctx, &org); err != nil {
			return err
		}
		if in.Contract != nil {
			if err := linkTown(ctx, tx, in.Contract.TownID, false, maintainer(org.ID)); err != nil {
				return err
			}
		}
		if in.TownID != "" {
			return linkTown(ctx, tx, in.TownID, false, admin(org.ID))
		}
		return nil
	})
	if err != nil {
		return lighting.Organization{}, err
	}
	return org, nil
}

func maintainer(orgID string) func(*lighting.Town) {
	return func(t *lighting.Town) { t.MaintainerOrgIDs = lighting.AppendUnique(t.MaintainerOrgIDs, orgID) }
}

func admin(orgID string) func(*lighting.Town) {
	return func(t *lighting.Town) { t.OrganizationAdmin = orgID }
}

// linkTown applies set to the town. A missing town is skipped unless
// required.
func linkTown(ctx context.Context, tx lighting.Tx, townID string, required bool, set func(*lighting.Town)) error {
	if townID == "" {
		return nil
	}
	town, err := tx.GetTown(ctx, townID)
	if err != nil {
		if !required && errors.Is(err, lighting.ErrNotFound) {
			return nil
		}
		return err
	}
	set(&town)
	return tx.UpdateTown(ctx, &town)
}

// AddMembers adds users to the organization and points them at it.
func (m *Maintainer) AddMembers(ctx context.Context, orgID string, userIDs []string) (lighting.Organization, error) {
	var org lighting.Organization
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		if org, err = tx.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		for _, id := range userIDs {
			u, err := tx.GetUser(ctx, id)
			if err != nil {
				return err
			}
			if u.OrganizationID != "" && u.OrganizationID != org.ID {
				if err := leaveOrganization(ctx, tx, u.OrganizationID, u.ID); err != nil {
					return err
				}
			}
			org.MemberIDs = lighting.AppendUnique(org.MemberIDs, u.ID)
			u.OrganizationID = org.ID
			if err := tx.UpdateUser(ctx, u); err != nil {
				return err
			}
		}
		return tx.UpdateOrganization(ctx, &org)
	})
	if err != nil {
		return lighting.Organization{}, err
	}
	return org, nil
}

// leaveOrganization drops userID from the roster of the organization it is
// moving away from. A missing organization is a no-op.
func leaveOrganization(ctx context.Context, tx lighting.Tx, orgID, userID string) error {
	prev, err := tx.GetOrganization(ctx, orgID)
	if errors.Is(err, lighting.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !lighting.Contains(prev.MemberIDs, userID) && prev.ResponsibleID != userID {
		return nil
	}
	prev.MemberIDs = lighting.Without(prev.MemberIDs, userID)
	if prev.ResponsibleID == userID {
		prev.ResponsibleID = ""
	}
	return tx.UpdateOrganization(ctx, &prev)
}

// RemoveMember drops the user from the organization and clears its
// organization reference.
func (m *Maintainer) RemoveMember(ctx context.Context, orgID, userID string) (lighting.Organization, lighting.User, error) {
	var (
		org  lighting.Organization
		user lighting.User
	)
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		if org, err = tx.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		if user, err = tx.GetUser(ctx, userID); err != nil {
			return err
		}
		org.MemberIDs = lighting.Without(org.MemberIDs, user.ID)
		if org.ResponsibleID == user.ID {
			org.ResponsibleID = ""
		}
		if err := tx.UpdateOrganization(ctx, &org); err != nil {
			return err
		}
		if user.OrganizationID == org.ID {
			user.OrganizationID = ""
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return lighting.Organization{}, lighting.User{}, err
	}
	return org, user, nil
}

// AddContract appends a contract and registers the organization as a
// maintainer of the contract's town.
func (m *Maintainer) AddContract(ctx context.Context, orgID string, c lighting.Contract) (lighting.Organization, error) {
	if strings.TrimSpace(c.TownID) == "" {
		return lighting.Organization{}, lighting.Invalidf("contract townhall_associated is required")
	}
	var org lighting.Organization
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		if org, err = tx.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		org.Contracts = append(org.Contracts, c)
		if err := tx.UpdateOrganization(ctx, &org); err != nil {
			return err
		}
		return linkTown(ctx, tx, c.TownID, false, maintainer(org.ID))
	})
	if err != nil {
		return lighting.Organization{}, err
	}
	return org, nil
}

// AssociateTown makes the organization the admin of townID. Both must exist.
func (m *Maintainer) AssociateTown(ctx context.Context, orgID, townID string) (lighting.Organization, error) {
	var org lighting.Organization
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		if org, err = tx.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		org.TownID = townID
		if err := tx.UpdateOrganization(ctx, &org); err != nil {
			return err
		}
		return linkTown(ctx, tx, townID, true, admin(org.ID))
	})
	if err != nil {
		return lighting.Organization{}, err
	}
	return org, nil
}

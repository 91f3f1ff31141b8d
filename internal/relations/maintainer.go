// Package relations keeps cross-entity references consistent when records
// are deleted or reassigned.
package relations

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/notify"
	"lightingmap.app/internal/obs"
)

const conflictRetries = 3

// Maintainer runs every cascade in one unit of work.
type Maintainer struct {
	store    lighting.Store
	notifier notify.Notifier
}

// NewMaintainer returns a Maintainer; a nil notifier discards messages.
func NewMaintainer(store lighting.Store, notifier notify.Notifier) *Maintainer {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Maintainer{store: store, notifier: notifier}
}

// DeleteLightPoint removes the light point and every town reference to it.
func (m *Maintainer) DeleteLightPoint(ctx context.Context, id string) error {
	return m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		if _, err := tx.GetLightPoint(ctx, id); err != nil {
			return err
		}
		if _, err := tx.DeleteLightPoints(ctx, []string{id}); err != nil {
			return err
		}
		_, err := tx.PullLightPointsFromTowns(ctx, []string{id})
		return err
	})
}

// PullLightPoint drops lpID from the town's list. A missing reference is a
// no-op.
func (m *Maintainer) PullLightPoint(ctx context.Context, townID, lpID string) error {
	return lighting.RetryOnConflict(ctx, conflictRetries, func(ctx context.Context) error {
		return m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
			town, err := tx.GetTown(ctx, townID)
			if err != nil {
				return err
			}
			if !lighting.Contains(town.LightPointIDs, lpID) {
				return nil
			}
			town.LightPointIDs = lighting.Without(town.LightPointIDs, lpID)
			return tx.UpdateTown(ctx, &town)
		})
	})
}

// TownRef selects a town by identifier or, when ID is empty, by name.
type TownRef struct {
	ID   string
	Name string
}

func (r TownRef) String() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Name
}

// TownDeletion counts the records a town deletion touched.
type TownDeletion struct {
	TownID               string `json:"town_id"`
	LightPointsDeleted   int    `json:"light_points_deleted"`
	UsersUpdated         int    `json:"users_updated"`
	OrganizationsUpdated int    `json:"organizations_updated"`
}

// DeleteTown removes the town, its light points, and its identifier from
// users and organizations.
func (m *Maintainer) DeleteTown(ctx context.Context, ref TownRef) (TownDeletion, error) {
	var out TownDeletion
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var (
			town lighting.Town
			err  error
		)
		if ref.ID != "" {
			town, err = tx.GetTown(ctx, ref.ID)
		} else {
			town, err = tx.GetTownByName(ctx, strings.TrimSpace(ref.Name))
		}
		if err != nil {
			return err
		}
		out = TownDeletion{TownID: town.ID}

		if out.LightPointsDeleted, err = tx.DeleteLightPoints(ctx, town.LightPointIDs); err != nil {
			return err
		}
		if _, err = tx.PullLightPointsFromTowns(ctx, town.LightPointIDs); err != nil {
			return err
		}
		if out.UsersUpdated, err = tx.PullTownFromUsers(ctx, town.ID); err != nil {
			return err
		}
		if out.OrganizationsUpdated, err = tx.ClearTownFromOrganizations(ctx, town.ID); err != nil {
			return err
		}
		return tx.DeleteTown(ctx, town.ID)
	})
	if err != nil {
		obs.Logger().WithFields(logrus.Fields{"operation": "relations.DeleteTown", "town": ref.String()}).WithError(err).Warn("town deletion failed")
		return TownDeletion{}, err
	}
	return out, nil
}

// OrgDeleteMode selects what happens to an organization's users.
type OrgDeleteMode int

const (
	// Unlink clears the organization from its users.
	Unlink OrgDeleteMode = iota
	// Cascade deletes its users.
	Cascade
)

// OrgDeletion counts the records an organization deletion touched.
type OrgDeletion struct {
	UsersUnlinked int `json:"users_unlinked"`
	UsersDeleted  int `json:"users_deleted"`
	TownsUpdated  int `json:"towns_updated"`
}

// DeleteOrganization removes the organization and its town links. In Cascade
// mode every user pointing at it, and every roster member not attached to
// another organization, is deleted and pulled from other organizations.
func (m *Maintainer) DeleteOrganization(ctx context.Context, id string, mode OrgDeleteMode) (OrgDeletion, error) {
	var out OrgDeletion
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		out = OrgDeletion{}
		org, err := tx.GetOrganization(ctx, id)
		if err != nil {
			return err
		}
		if mode == Cascade {
			members, err := tx.ListUsers(ctx, lighting.UserFilter{OrgID: org.ID})
			if err != nil {
				return err
			}
			// Roster entries that moved to another organization survive.
			var doomed []string
			for _, userID := range org.MemberIDs {
				u, err := tx.GetUser(ctx, userID)
				if errors.Is(err, lighting.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if u.OrganizationID == "" || u.OrganizationID == org.ID {
					doomed = lighting.AppendUnique(doomed, u.ID)
				}
			}
			for _, u := range members {
				doomed = lighting.AppendUnique(doomed, u.ID)
			}
			if out.UsersDeleted, err = tx.DeleteUsers(ctx, doomed); err != nil {
				return err
			}
			for _, userID := range doomed {
				if _, err := tx.PullUserFromOrganizations(ctx, userID); err != nil {
					return err
				}
			}
		} else {
			if out.UsersUnlinked, err = tx.ClearUsersOrganization(ctx, org.ID); err != nil {
				return err
			}
		}
		if out.TownsUpdated, err = tx.UnlinkOrganizationFromTowns(ctx, org.ID); err != nil {
			return err
		}
		return tx.DeleteOrganization(ctx, org.ID)
	})
	if err != nil {
		obs.Logger().WithFields(logrus.Fields{"operation": "relations.DeleteOrganization", "organization": id, "cascade": mode == Cascade}).WithError(err).Warn("organization deletion failed")
		return OrgDeletion{}, err
	}
	return out, nil
}

// DeleteUser removes the user and its organization memberships.
func (m *Maintainer) DeleteUser(ctx context.Context, id string) error {
	return m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		n, err := tx.DeleteUsers(ctx, []string{id})
		if err != nil {
			return err
		}
		if n == 0 {
			return lighting.NotFoundf("user %s", id)
		}
		_, err = tx.PullUserFromOrganizations(ctx, id)
		return err
	})
}

// SweepResult counts the dangling references removed by SweepOrphans.
type SweepResult struct {
	TownsUpdated      int      `json:"towns_updated"`
	ReferencesRemoved int      `json:"references_removed"`
	Removed           []string `json:"removed_ids"`
}

// SweepOrphans removes town references to light points that no longer
// exist. Each town is fixed in its own conditional write; running it twice
// changes nothing the second time.
func (m *Maintainer) SweepOrphans(ctx context.Context) (SweepResult, error) {
	var towns []lighting.Town
	if err := m.store.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		towns, err = tx.ListTowns(ctx)
		return err
	}); err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, t := range towns {
		removed, err := m.sweepTown(ctx, t.ID)
		if err != nil {
			obs.Logger().WithFields(logrus.Fields{"operation": "relations.SweepOrphans", "town": t.Name}).WithError(err).Error("sweep town")
			return res, err
		}
		if len(removed) == 0 {
			continue
		}
		res.TownsUpdated++
		res.ReferencesRemoved += len(removed)
		res.Removed = append(res.Removed, removed...)
	}
	obs.OrphansRemoved.Add(float64(res.ReferencesRemoved))
	obs.Logger().WithFields(logrus.Fields{
		"operation":          "relations.SweepOrphans",
		"towns_updated":      res.TownsUpdated,
		"references_removed": res.ReferencesRemoved,
	}).Info("orphan sweep finished")
	return res, nil
}

func (m *Maintainer) sweepTown(ctx context.Context, townID string) ([]string, error) {
	var removed []string
	err := lighting.RetryOnConflict(ctx, conflictRetries, func(ctx context.Context) error {
		return m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
			removed = nil
			town, err := tx.GetTown(ctx, townID)
			if err != nil {
				return err
			}
			found, err := tx.ListLightPoints(ctx, town.LightPointIDs)
			if err != nil {
				return err
			}
			live := make(map[string]struct{}, len(found))
			for _, lp := range found {
				live[lp.ID] = struct{}{}
			}
			for _, id := range town.LightPointIDs {
				if _, ok := live[id]; !ok {
					removed = append(removed, id)
				}
			}
			if len(removed) == 0 {
				return nil
			}
			town.LightPointIDs = lighting.Without(town.LightPointIDs, removed...)
			return tx.UpdateTown(ctx, &town)
		})
	})
	if errors.Is(err, lighting.ErrNotFound) {
		return nil, nil
	}
	return removed, err
}

package relations

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/notify"
	"lightingmap.app/internal/obs"
)

// ValidateUser approves the account with the given role and tells the user.
func (m *Maintainer) ValidateUser(ctx context.Context, email, role string) (lighting.User, error) {
	if strings.TrimSpace(email) == "" {
		return lighting.User{}, lighting.Invalidf("email is required")
	}
	r, err := lighting.ParseRole(role)
	if err != nil {
		return lighting.User{}, err
	}
	var u lighting.User
	err = m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		if u, err = tx.GetUserByEmail(ctx, email); err != nil {
			return err
		}
		u.IsApproved = true
		u.Role = r
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return lighting.User{}, err
	}
	obs.Logger().WithFields(logrus.Fields{"operation": "relations.ValidateUser", "user": u.ID, "role": string(r)}).Info("user validated")
	m.notifier.Fire(notify.Message{
		Event:   notify.EventUserValidated,
		To:      []string{u.Email},
		Subject: "Account approved",
		Body:    fmt.Sprintf("Hello %s,\n\nyour account has been approved with role %s. You can now sign in.\n", u.FullName(), r),
	})
	return u, nil
}

// DeleteUserByEmail resolves the address and deletes that user.
func (m *Maintainer) DeleteUserByEmail(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return lighting.Invalidf("email is required")
	}
	var id string
	if err := m.store.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		u, err := tx.GetUserByEmail(ctx, email)
		id = u.ID
		return err
	}); err != nil {
		return err
	}
	return m.DeleteUser(ctx, id)
}

// AddTown appends the named town to an approved user's list. Conflict when
// already present.
func (m *Maintainer) AddTown(ctx context.Context, email, townName string) error {
	return m.editTowns(ctx, email, townName, func(u *lighting.User, townID string) error {
		if lighting.Contains(u.TownIDs, townID) {
			return lighting.Conflictf("town %q already in the user's list", townName)
		}
		u.TownIDs = append(u.TownIDs, townID)
		return nil
	})
}

// RemoveTown drops the named town from an approved user's list. Conflict
// when absent.
func (m *Maintainer) RemoveTown(ctx context.Context, email, townName string) error {
	return m.editTowns(ctx, email, townName, func(u *lighting.User, townID string) error {
		if !lighting.Contains(u.TownIDs, townID) {
			return lighting.Conflictf("town %q not in the user's list", townName)
		}
		u.TownIDs = lighting.Without(u.TownIDs, townID)
		return nil
	})
}

func (m *Maintainer) editTowns(ctx context.Context, email, townName string, edit func(*lighting.User, string) error) error {
	return m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		town, err := tx.GetTownByName(ctx, strings.TrimSpace(townName))
		if err != nil {
			return err
		}
		u, err := tx.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !u.IsApproved {
			return lighting.NotFoundf("user %s is not approved yet", u.Email)
		}
		if err := edit(&u, town.ID); err != nil {
			return err
		}
		return tx.UpdateUser(ctx, u)
	})
}

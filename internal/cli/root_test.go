package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/config"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/store/memory"
)

func run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func memoryOptions(t *testing.T) (*RootOptions, *memory.Store) {
	t.Helper()
	s := memory.New()
	var cfg config.Config
	cfg.Auth.JWTSecret = "cli-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Reconcile.BatchSize = 2
	return &RootOptions{store: s, cfg: cfg}, s
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "lightctl", cmd.Use)

	for _, name := range []string{"sweep", "reconcile", "token", "schema"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestInvalidFormat(t *testing.T) {
	opts, _ := memoryOptions(t)
	_, err := run(t, opts, "sweep", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestSweepCommand(t *testing.T) {
	opts, s := memoryOptions(t)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		return tx.CreateTown(ctx, &lighting.Town{Name: "Riva", LightPointIDs: []string{"ghost-1", "ghost-2"}})
	}))

	out, err := run(t, opts, "sweep", "--format", "json")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.EqualValues(t, 1, res["towns_updated"])
	assert.EqualValues(t, 2, res["references_removed"])

	out, err = run(t, opts, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "References removed: 0")
}

func TestReconcileCommand(t *testing.T) {
	opts, s := memoryOptions(t)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		return tx.CreateTown(ctx, &lighting.Town{Name: "Riva"})
	}))

	file := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"numero_palo": "1"}, {"numero_palo": "2"}, {"numero_palo": "3"}]`), 0o600))

	out, err := run(t, opts, "reconcile", "--town", "Riva", "--file", file, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted: 3")

	var town lighting.Town
	load := func() {
		require.NoError(t, s.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
			var err error
			town, err = tx.GetTownByName(ctx, "Riva")
			return err
		}))
	}
	load()
	assert.Empty(t, town.LightPointIDs)

	out, err = run(t, opts, "reconcile", "--town", "Riva", "--file", file, "--format", "yaml")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Len(t, res["inserted"], 3)
	load()
	assert.Len(t, town.LightPointIDs, 3)

	_, err = run(t, opts, "reconcile", "--town", "Atlantide", "--file", file)
	assert.ErrorIs(t, err, lighting.ErrNotFound)

	_, err = run(t, opts, "reconcile", "--town", "Riva")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	opts, s := memoryOptions(t)
	hash, err := auth.HashPassword("lampione42")
	require.NoError(t, err)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		if err := tx.CreateUser(ctx, &lighting.User{Email: "ops@example.it", PasswordHash: hash, Role: lighting.RoleSuperAdmin, IsApproved: true}); err != nil {
			return err
		}
		return tx.CreateUser(ctx, &lighting.User{Email: "pending@example.it", PasswordHash: hash})
	}))

	out, err := run(t, opts, "token", "--email", "ops@example.it")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	issuer, err := auth.NewTokenIssuer("cli-secret", "", time.Hour)
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, lighting.RoleSuperAdmin, claims.Role)

	out, err = run(t, opts, "token", "--email", "ops@example.it", "--format", "yaml")
	require.NoError(t, err)
	assert.NotContains(t, out, hash)
	assert.Contains(t, out, "user_type: SUPER_ADMIN")

	_, err = run(t, opts, "token", "--email", "pending@example.it")
	assert.ErrorIs(t, err, auth.ErrNotApproved)

	_, err = run(t, opts, "token", "--email", "nobody@example.it")
	assert.ErrorIs(t, err, lighting.ErrNotFound)
}

func TestSchemaPrint(t *testing.T) {
	opts, _ := memoryOptions(t)
	out, err := run(t, opts, "schema", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "create table if not exists towns")
}

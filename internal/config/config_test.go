package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/ticket"
	"github.com/flor3z/tierbot/internal/tier"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// unsetEnv removes keys for the duration of the test so an env file can set them
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("RESYNC_INTERVAL_SECONDS", "")
	t.Setenv("TIERS_CONFIG", "")

	cfg, err := Load(Options{EnvFile: writeFile(t, ".env", "")})
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "./data/tiers.db", cfg.DatabasePath)
	assert.Equal(t, 600, cfg.ResyncIntervalSeconds)
	assert.Equal(t, DefaultPolicy(), cfg.Policy)
}

func TestLoadFromEnvFile(t *testing.T) {
	unsetEnv(t, "DISCORD_BOT_TOKEN", "RESYNC_INTERVAL_SECONDS", "TIERS_CONFIG")
	env := writeFile(t, ".env", "DISCORD_BOT_TOKEN=from-file\nRESYNC_INTERVAL_SECONDS=30\n")

	cfg, err := Load(Options{EnvFile: env})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DiscordToken)
	assert.Equal(t, 30, cfg.ResyncIntervalSeconds)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("TIERS_CONFIG", "")
	empty := writeFile(t, ".env", "")

	t.Setenv("DISCORD_BOT_TOKEN", "")
	_, err := Load(Options{EnvFile: empty})
	assert.ErrorContains(t, err, "DISCORD_BOT_TOKEN")

	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("RESYNC_INTERVAL_SECONDS", "soon")
	_, err = Load(Options{EnvFile: empty})
	assert.ErrorContains(t, err, "RESYNC_INTERVAL_SECONDS")

	t.Setenv("RESYNC_INTERVAL_SECONDS", "0")
	_, err = Load(Options{EnvFile: empty})
	assert.ErrorContains(t, err, "positive")

	_, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.Error(t, err)
}

func TestLoadPolicyFile(t *testing.T) {
	path := writeFile(t, "tiers.yaml", `
tiers:
  labels: [Bronze, Silver, Gold]
  direction: senior_last
staff:
  auth: position
  reference_role: Moderator
tickets:
  - kind: support
    label: Help
  - kind: vip
    label: VIP
    group: VIP Lounge
    min_tier: Silver
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	ranking, err := p.Ranking()
	require.NoError(t, err)
	assert.Equal(t, []string{"Gold", "Silver", "Bronze"}, ranking.Labels())
	assert.Equal(t, []string{"Staff"}, p.Staff.Roles)

	registry, err := p.Categories()
	require.NoError(t, err)
	vip, err := registry.Get(ticket.Category("vip"))
	require.NoError(t, err)
	assert.Equal(t, "VIP Lounge", vip.Group)
	assert.Equal(t, "Silver", vip.MinTier)

	support, err := registry.Get(ticket.Support)
	require.NoError(t, err)
	assert.Equal(t, "Help Tickets", support.Group)
}

func TestLoadPolicyRejectsInconsistentFiles(t *testing.T) {
	cases := map[string]string{
		"unknown min tier":   "tickets:\n  - kind: vip\n    min_tier: Platinum\n",
		"position needs ref": "staff:\n  auth: position\n",
		"unknown auth":       "staff:\n  auth: vibes\n",
		"duplicate labels":   "tiers:\n  labels: [A, A]\n",
		"bad direction":      "tiers:\n  direction: upward\n",
		"not yaml":           "tiers: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPolicy(writeFile(t, "tiers.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestPolicyAuthorizer(t *testing.T) {
	ctx := context.Background()
	mem := platform.NewMemory("g")
	mem.AddGuildRole("Staff", 10)
	mem.AddGuildRole("Moderator", 5)
	mem.AddMember("staff", "staff", "Staff")
	mem.AddMember("mod", "mod", "Moderator")
	mem.AddMember("pleb", "pleb")

	p := DefaultPolicy()
	ok, err := p.Authorizer(mem).Allowed(ctx, "g", "staff")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.Authorizer(mem).Allowed(ctx, "g", "mod")
	require.NoError(t, err)
	assert.False(t, ok)

	p.Staff.Auth = AuthPosition
	p.Staff.ReferenceRole = "Moderator"
	ok, err = p.Authorizer(mem).Allowed(ctx, "g", "mod")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.Authorizer(mem).Allowed(ctx, "g", "pleb")
	require.NoError(t, err)
	assert.False(t, ok)

	p.Staff.Auth = AuthNone
	ok, err = p.Authorizer(mem).Allowed(ctx, "g", "pleb")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDefaultPolicyIsValid(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, tier.DefaultLabels, p.Tiers.Labels)
}

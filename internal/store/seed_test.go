package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

const seedYAML = `
routers:
  - name: DocsSearch
    author: a@x
    published: true
    services:
      - type: search
        enabled: true
        pricing: 0.01
  - name: TinyChat
    author: b@x
    published: true
    services:
      - type: chat
        enabled: true
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeed(t *testing.T) {
	routers, err := LoadSeed(writeSeed(t, seedYAML))
	require.NoError(t, err)
	require.Len(t, routers, 2)

	assert.Equal(t, "DocsSearch", routers[0].Name)
	assert.True(t, routers[0].Offers(models.ServiceSearch))
	assert.Equal(t, 0.01, routers[0].Service(models.ServiceSearch).Pricing)
	assert.True(t, routers[1].Offers(models.ServiceChat))
}

func TestLoadSeedRejectsAnonymousRouter(t *testing.T) {
	_, err := LoadSeed(writeSeed(t, "routers:\n  - name: NoAuthor\n"))
	assert.ErrorContains(t, err, "needs a name and an author")
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSeedIntoSQLite(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	routers, err := LoadSeed(writeSeed(t, seedYAML))
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, s, routers))
	// Seeding twice is idempotent.
	require.NoError(t, Seed(ctx, s, routers))

	got, err := s.ListRouters(ctx, true)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// SeedFile is the YAML layout of a router seed file.
type SeedFile struct {
	Routers []models.Router `yaml:"routers"`
}

// LoadSeed reads routers from a YAML seed file.
func LoadSeed(path string) ([]models.Router, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, r := range f.Routers {
		if r.Name == "" || r.Author == "" {
			return nil, fmt.Errorf("parse %s: router %d needs a name and an author", path, i)
		}
	}
	return f.Routers, nil
}

// Seed upserts routers into ds.
func Seed(ctx context.Context, ds DataStore, routers []models.Router) error {
	for i := range routers {
		if err := ds.UpsertRouter(ctx, &routers[i]); err != nil {
			return fmt.Errorf("seed router %s: %w", routers[i].Name, err)
		}
	}
	return nil
}

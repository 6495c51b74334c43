// internal/catalog/catalog.go
package catalog

import (
	"context"

	"github.com/memeleague/memeleague/internal/models"
)

// Catalog is the read-only template lookup the engine selects pools from.
// The service consumes the catalog; populating it is somebody else's job.
type Catalog interface {
	// FilterByTags returns every template matching any of the given tags.
	// An empty tag list matches the whole catalog.
	FilterByTags(ctx context.Context, tags []string) ([]models.Template, error)
}

// internal/catalog/static.go
package catalog

import (
	"context"
	"fmt"

	"github.com/memeleague/memeleague/internal/models"
)

// StaticCatalog serves templates from a fixed slice. Used by tests and by
// deployments without a catalog database.
type StaticCatalog struct {
	templates []models.Template
}

// NewStaticCatalog copies the given templates into a read-only catalog.
func NewStaticCatalog(templates []models.Template) *StaticCatalog {
	out := make([]models.Template, len(templates))
	copy(out, templates)
	return &StaticCatalog{templates: out}
}

func (c *StaticCatalog) FilterByTags(ctx context.Context, tags []string) ([]models.Template, error) {
	if len(tags) == 0 {
		out := make([]models.Template, len(c.templates))
		copy(out, c.templates)
		return out, nil
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	var out []models.Template
	for _, tpl := range c.templates {
		for _, tag := range tpl.Tags {
			if want[tag] {
				out = append(out, tpl)
				break
			}
		}
	}
	return out, nil
}

// DefaultSeed returns a small built-in template set so the service is
// playable without a catalog database.
func DefaultSeed() []models.Template {
	names := []string{
		"Distracted Boyfriend", "Drake Hotline Bling", "Two Buttons",
		"Change My Mind", "Expanding Brain", "Woman Yelling at Cat",
		"Surprised Pikachu", "This Is Fine", "Galaxy Brain",
		"One Does Not Simply", "Hide the Pain", "Is This a Pigeon",
		"Mocking Spongebob", "Roll Safe", "Success Kid",
		"Disaster Girl", "Always Has Been", "They Don't Know",
		"Gru's Plan", "Stonks",
	}
	templates := make([]models.Template, 0, len(names))
	for i, name := range names {
		templates = append(templates, models.Template{
			ID:             fmt.Sprintf("seed-%02d", i+1),
			Name:           name,
			ImageURL:       fmt.Sprintf("/static/templates/seed-%02d.jpg", i+1),
			TextInputCount: 2,
		})
	}
	return templates
}

package generator

import (
	"fmt"
	"strings"
)

// Template is a named project type that steers the generated structure.
type Template struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Sections    []string `json:"sections"`
}

var templates = []Template{
	{
		Name:        "landing",
		Title:       "Landing Page",
		Description: "Single page with the essential marketing sections",
		Sections:    []string{"header", "hero", "features", "testimonials", "cta", "footer"},
	},
	{
		Name:        "multipage",
		Title:       "Multi-page Website",
		Description: "Several pages sharing navigation",
		Sections:    []string{"header", "navigation", "content_sections", "footer"},
	},
	{
		Name:        "ecommerce",
		Title:       "E-commerce",
		Description: "Online store with catalog, cart and checkout",
		Sections:    []string{"header", "product_grid", "cart", "checkout", "payment_gateways", "footer"},
	},
}

// Templates returns the built-in templates.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// LookupTemplate finds a template by case-insensitive name.
func LookupTemplate(name string) (Template, bool) {
	for _, t := range templates {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Template{}, false
}

func (t Template) hint() string {
	return fmt.Sprintf("Project type: %s. Include these sections: %s.", t.Title, strings.Join(t.Sections, ", "))
}

package possync

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLocalCategory is used for remote products without a category.
	DefaultLocalCategory = "Övrigt"
	// DefaultRemoteCategory is used for local categories with no mapping.
	DefaultRemoteCategory = "Other"
)

// CategoryMap translates between the provider's category names and the shop's local ones.
type CategoryMap struct {
	toLocal  map[string]string
	toRemote map[string]string
}

// categoryFile is the YAML layout of CATEGORY_MAP_FILE:
//
//	categories:
//	  Screen Repair: Skärmreparation
//	  Battery: Batteribyte
type categoryFile struct {
	Categories map[string]string `yaml:"categories"`
}

func defaultCategories() map[string]string {
	return map[string]string{
		"Screen Repair": "Skärmreparation",
		"Battery":       "Batteribyte",
		"Water Damage":  "Vattenskada",
		"Software":      "Mjukvara",
		"Hardware":      "Hårdvara",
		"Accessories":   "Tillbehör",
		"Other":         "Övrigt",
	}
}

// NewCategoryMap builds a map from remote-to-local pairs. Nil means the built-in defaults.
func NewCategoryMap(pairs map[string]string) *CategoryMap {
	if pairs == nil {
		pairs = defaultCategories()
	}
	m := &CategoryMap{toLocal: map[string]string{}, toRemote: map[string]string{}}
	for remote, local := range pairs {
		m.toLocal[strings.ToLower(remote)] = local
		m.toRemote[strings.ToLower(local)] = remote
	}
	return m
}

// LoadCategoryMap reads a YAML category file. An empty path gives the defaults.
// File entries are layered over the defaults.
func LoadCategoryMap(path string) (*CategoryMap, error) {
	if path == "" {
		return NewCategoryMap(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("possync: read category map: %w", err)
	}
	var f categoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("possync: parse category map: %w", err)
	}
	pairs := defaultCategories()
	for k, v := range f.Categories {
		pairs[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return NewCategoryMap(pairs), nil
}

// Local maps a remote category name. Unknown names pass through.
func (m *CategoryMap) Local(remote string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return DefaultLocalCategory
	}
	if v, ok := m.toLocal[strings.ToLower(remote)]; ok {
		return v
	}
	return remote
}

// Remote maps a local category name, defaulting to DefaultRemoteCategory.
func (m *CategoryMap) Remote(local string) string {
	if v, ok := m.toRemote[strings.ToLower(strings.TrimSpace(local))]; ok {
		return v
	}
	return DefaultRemoteCategory
}

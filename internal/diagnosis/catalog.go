package diagnosis

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed conditions.yaml
var defaultCatalogYAML []byte

type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Condition is a mock medical condition. Values are never mutated after
// the catalog is loaded.
type Condition struct {
	ID                int      `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	CanonicalSymptoms []string `json:"symptoms" yaml:"symptoms"`
	BaseConfidence    float64  `json:"confidence" yaml:"confidence"`
	Severity          Severity `json:"severity" yaml:"severity"`
	Treatments        []string `json:"treatments" yaml:"treatments"`
	Description       string   `json:"description" yaml:"description"`
}

func (c Condition) clone() Condition {
	c.CanonicalSymptoms = append([]string(nil), c.CanonicalSymptoms...)
	c.Treatments = append([]string(nil), c.Treatments...)
	return c
}

type catalogFile struct {
	Conditions        []Condition `yaml:"conditions"`
	SuggestedSymptoms []string    `yaml:"suggestedSymptoms"`
}

// Catalog is the immutable set of conditions and the suggested symptom
// vocabulary offered to the user.
type Catalog struct {
	conditions []Condition
	suggested  []string
}

// DefaultCatalog returns the embedded three-condition catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded condition catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from path, falling back to the embedded
// catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return ParseCatalog(defaultCatalogYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(file.Conditions) == 0 {
		return nil, fmt.Errorf("catalog has no conditions")
	}

	seen := make(map[int]bool, len(file.Conditions))
	for i, c := range file.Conditions {
		switch {
		case strings.TrimSpace(c.Name) == "":
			return nil, fmt.Errorf("condition %d: name is required", i)
		case seen[c.ID]:
			return nil, fmt.Errorf("condition %q: duplicate id %d", c.Name, c.ID)
		case c.BaseConfidence < 0 || c.BaseConfidence > 1:
			return nil, fmt.Errorf("condition %q: confidence %.2f outside [0,1]", c.Name, c.BaseConfidence)
		case !c.Severity.valid():
			return nil, fmt.Errorf("condition %q: unknown severity %q", c.Name, c.Severity)
		case len(c.CanonicalSymptoms) == 0:
			return nil, fmt.Errorf("condition %q: no symptoms", c.Name)
		}
		for _, s := range c.CanonicalSymptoms {
			if strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("condition %q: blank symptom", c.Name)
			}
		}
		seen[c.ID] = true
	}

	return &Catalog{
		conditions: file.Conditions,
		suggested:  normalizeVocabulary(file.SuggestedSymptoms),
	}, nil
}

// Conditions returns a copy of the catalog in catalog order.
func (c *Catalog) Conditions() []Condition {
	out := make([]Condition, 0, len(c.conditions))
	for _, cond := range c.conditions {
		out = append(out, cond.clone())
	}
	return out
}

// Condition looks a condition up by id.
func (c *Catalog) Condition(id int) (Condition, bool) {
	for _, cond := range c.conditions {
		if cond.ID == id {
			return cond.clone(), true
		}
	}
	return Condition{}, false
}

// SuggestedSymptoms returns the symptom vocabulary offered for quick entry.
func (c *Catalog) SuggestedSymptoms() []string {
	return append([]string(nil), c.suggested...)
}

func normalizeVocabulary(values []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || seen[strings.ToLower(trimmed)] {
			continue
		}
		seen[strings.ToLower(trimmed)] = true
		out = append(out, trimmed)
	}
	return out
}

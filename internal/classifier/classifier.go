
package classifier

import (
	"fmt"
	"strings"

	"scd-extractor/internal/models"
)

// Rule routes a property row to a record field when Marker is a substring of
// the row name. Matching is case-sensitive.
type Rule struct {
	Marker string
	Field  models.Field
}

// DefaultRules is the marker table used by SCD drawings.
var DefaultRules = []Rule{
	{Marker: "FB", Field: models.FieldType},
	{Marker: "Tag", Field: models.FieldTag},
	{Marker: "Info", Field: models.FieldDescription},
}

type Classifier struct {
	rules []Rule
}

func New() *Classifier { return &Classifier{rules: DefaultRules} }

// NewWithRules builds a classifier over a custom rule table. Rules are
// evaluated in order and must have a non-empty marker.
func NewWithRules(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("classifier: no rules")
	}
	for i, r := range rules {
		if r.Marker == "" {
			return nil, fmt.Errorf("classifier: rule %d has an empty marker", i)
		}
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{rules: cp}, nil
}

// Classify returns every field whose marker occurs in rowName, in rule order.
// A row can feed more than one field ("FBTag" hits both type and tag).
func (c *Classifier) Classify(rowName string) []models.Field {
	if rowName == "" {
		return nil
	}
	var out []models.Field
	for _, r := range c.rules {
		if strings.Contains(rowName, r.Marker) {
			out = append(out, r.Field)
		}
	}
	return out
}

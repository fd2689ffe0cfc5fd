// Package stats classifies tagged objects into categories via an
// external YAML config, accumulates per-changeset added/modified
// counters, and computes haversine lengths for linear features.
package stats

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hotosm/underpass/internal/osm"
)

// categoryConfig is the per-category {node,way,relation}: {tag: [values]}
// shape, read directly off the YAML.
type categoryConfig struct {
	Node     map[string][]string `yaml:"node,omitempty"`
	Way      map[string][]string `yaml:"way,omitempty"`
	Relation map[string][]string `yaml:"relation,omitempty"`
}

// Config is the full tag-category map loaded from a stats YAML file:
// category name -> recognised (tag, value) pairs per object type.
type Config map[string]categoryConfig

// LoadConfig reads a stats YAML file of the shape:
//
//	highway:
//	  way:
//	    highway: ["*"]
//	building:
//	  way:
//	    building: ["*"]
//	  node:
//	    building: ["*"]
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stats config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing stats config YAML: %w", err)
	}
	return cfg, nil
}

// Classify returns every category whose (tag, value) rules match the
// given tags for the given object type. Value "*" matches any value for
// that key, mirroring StatsConfigSearch::category's wildcard handling.
func (c Config) Classify(tags map[string]string, objType osm.MemberType) []string {
	var matched []string
	for category, rules := range c {
		byTag := rulesFor(rules, objType)
		if byTag == nil {
			continue
		}
		for tag, value := range tags {
			values, ok := byTag[tag]
			if !ok {
				continue
			}
			for _, want := range values {
				if want == "*" || want == value {
					matched = append(matched, category)
					break
				}
			}
		}
	}
	return matched
}

func rulesFor(c categoryConfig, objType osm.MemberType) map[string][]string {
	switch objType {
	case osm.MemberNode:
		return c.Node
	case osm.MemberWay:
		return c.Way
	case osm.MemberRelation:
		return c.Relation
	default:
		return nil
	}
}

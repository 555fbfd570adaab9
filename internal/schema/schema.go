package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/propsrv/internal/property"
)

// Schema is the entity class declaration file.
type Schema struct {
	Enums   []string   `yaml:"enums"`
	Handles []string   `yaml:"handles"`
	Classes []ClassDef `yaml:"classes"`
}

// ClassDef declares one entity class. Ungrouped properties are registered
// first, then each group in file order.
type ClassDef struct {
	Name       string        `yaml:"name"`
	Properties []PropertyDef `yaml:"properties"`
	Groups     []GroupDef    `yaml:"groups"`
	Callbacks  []CallbackDef `yaml:"callbacks"`
}

// GroupDef supplies a group name and default bounds to its properties.
type GroupDef struct {
	Name       string        `yaml:"name"`
	Min        *Number       `yaml:"min"`
	Max        *Number       `yaml:"max"`
	Properties []PropertyDef `yaml:"properties"`
}

// PropertyDef declares one property.
type PropertyDef struct {
	Name      string  `yaml:"name"`
	Type      string  `yaml:"type"`
	Access    string  `yaml:"access"`
	Default   *Number `yaml:"default"`
	Min       *Number `yaml:"min"`
	Max       *Number `yaml:"max"`
	Random    bool    `yaml:"random"`
	Group     string  `yaml:"group"`
	Const     bool    `yaml:"const"`
	Temporary bool    `yaml:"temporary"`
}

// CallbackDef binds script functions to a property.
type CallbackDef struct {
	Property string   `yaml:"property"`
	Get      string   `yaml:"get"`
	Set      []string `yaml:"set"`
}

// Number is a numeric scalar: an integer, a float or a bool.
type Number struct {
	num property.Num
}

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: number expected", node.Line)
	}
	var i int64
	if err := node.Decode(&i); err == nil {
		n.num = *property.Int(i)
		return nil
	}
	var f float64
	if err := node.Decode(&f); err == nil {
		n.num = *property.Float(f)
		return nil
	}
	var b bool
	if err := node.Decode(&b); err == nil {
		if b {
			n.num = *property.Int(1)
		} else {
			n.num = *property.Int(0)
		}
		return nil
	}
	return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
}

func (n *Number) value() *property.Num {
	if n == nil {
		return nil
	}
	v := n.num
	return &v
}

// Load reads a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(s.Classes))
	for _, c := range s.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("class without name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("class %s declared twice", c.Name)
		}
		seen[c.Name] = true
	}
	return &s, nil
}

// Class returns the declaration of a class, or nil.
func (s *Schema) Class(name string) *ClassDef {
	for i := range s.Classes {
		if s.Classes[i].Name == name {
			return &s.Classes[i]
		}
	}
	return nil
}

// ClassNames returns the declared classes in file order.
func (s *Schema) ClassNames() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// Types builds the type table: built-ins, declared enums, declared handle
// types and every entity class as a handle type.
func (s *Schema) Types() *property.TypeTable {
	types := property.NewTypeTable()
	for _, e := range s.Enums {
		types.AddEnum(e)
	}
	for _, h := range s.Handles {
		types.AddHandle(h)
	}
	for _, c := range s.Classes {
		types.AddHandle(c.Name)
	}
	return types
}

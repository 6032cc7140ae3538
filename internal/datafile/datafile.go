// Package datafile loads render data for the CLI. YAML and JSON documents are
// decoded into *xtemplate.Object values so that mapping keys keep their file
// order when a template iterates them.
package datafile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AlexanderGrooff/xtemplate-go/pkg/xtemplate"
)

// Load reads path, or stdin when path is "-", and decodes it.
func Load(path string) (interface{}, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading data file %s: %w", path, err)
	}
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing data file %s: %w", path, err)
	}
	return v, nil
}

// Parse decodes a YAML or JSON document. An empty document is an empty
// Object. Numbers become float64.
func Parse(data []byte) (interface{}, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return xtemplate.NewObject(0), nil
	}
	d := &decoder{expanding: make(map[*yaml.Node]bool)}
	return d.convert(&doc)
}

// decoder tracks the anchors being expanded so a self-referencing alias is
// reported instead of recursing forever.
type decoder struct {
	expanding map[*yaml.Node]bool
}

func (d *decoder) convert(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		return d.convert(n.Content[0])
	case yaml.AliasNode:
		if d.expanding[n.Alias] {
			return nil, fmt.Errorf("line %d: alias *%s refers to itself", n.Line, n.Value)
		}
		d.expanding[n.Alias] = true
		defer delete(d.expanding, n.Alias)
		return d.convert(n.Alias)
	case yaml.SequenceNode:
		items := make([]interface{}, len(n.Content))
		for i, c := range n.Content {
			v, err := d.convert(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case yaml.MappingNode:
		return d.convertMapping(n)
	case yaml.ScalarNode:
		return convertScalar(n)
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
}

func (d *decoder) convertMapping(n *yaml.Node) (*xtemplate.Object, error) {
	obj := xtemplate.NewObject(len(n.Content) / 2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		if key.ShortTag() == "!!merge" {
			if err := d.merge(obj, value); err != nil {
				return nil, err
			}
			continue
		}
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
		}
		v, err := d.convert(value)
		if err != nil {
			return nil, err
		}
		obj.Set(key.Value, v)
	}
	return obj, nil
}

// merge applies a `<<` merge key: entries already present win.
func (d *decoder) merge(obj *xtemplate.Object, value *yaml.Node) error {
	v, err := d.convert(value)
	if err != nil {
		return err
	}
	sources := []interface{}{v}
	if seq, ok := v.([]interface{}); ok {
		sources = seq
	}
	for _, src := range sources {
		m, ok := src.(*xtemplate.Object)
		if !ok {
			return fmt.Errorf("line %d: merge value must be a mapping or a list of mappings", value.Line)
		}
		for _, k := range m.Keys() {
			if _, exists := obj.Get(k); exists {
				continue
			}
			mv, _ := m.Get(k)
			obj.Set(k, mv)
		}
	}
	return nil
}

func convertScalar(n *yaml.Node) (interface{}, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	}
	return n.Value, nil
}

// Set assigns a "path.to.key=value" override on root, creating intermediate
// Objects as needed. The value is decoded as a YAML scalar or flow
// collection, so "n=3" sets a number and "tags=[a, b]" a list.
func Set(root *xtemplate.Object, assignment string) error {
	path, raw, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("invalid assignment %q, expected key=value", assignment)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("assignment has an empty key")
	}
	value, err := Parse([]byte(raw))
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", path, err)
	}
	if raw == "" {
		value = ""
	}

	segments := strings.Split(path, ".")
	obj := root
	for i, seg := range segments[:len(segments)-1] {
		next, exists := obj.Get(seg)
		if !exists {
			child := xtemplate.NewObject(1)
			obj.Set(seg, child)
			obj = child
			continue
		}
		child, isObj := next.(*xtemplate.Object)
		if !isObj {
			return fmt.Errorf("cannot set %s: %s is not a mapping", path, strings.Join(segments[:i+1], "."))
		}
		obj = child
	}
	obj.Set(segments[len(segments)-1], value)
	return nil
}

// Package yamlfix loads the YAML that models answer with. Key order is kept,
// and common formatting mistakes are repaired before giving up.
package yamlfix

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MapItem is one key of an ordered mapping.
type MapItem struct {
	Key   string
	Value any
}

// Map is a YAML mapping in document order. Values are string, int, float64,
// bool, nil, []any or Map.
type Map []MapItem

// Get returns the value stored under key.
func (m Map) Get(key string) (any, bool) {
	for _, it := range m {
		if it.Key == key {
			return it.Value, true
		}
	}
	return nil, false
}

// String returns the value under key rendered with Str, or "".
func (m Map) String(key string) string {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return ""
	}
	return Str(v)
}

// Sub returns the nested mapping under key.
func (m Map) Sub(key string) (Map, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(Map)
	return sub, ok
}

// List returns the sequence under key.
func (m Map) List(key string) []any {
	v, _ := m.Get(key)
	list, _ := v.([]any)
	return list
}

// Has reports whether key is present.
func (m Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns the keys in order.
func (m Map) Keys() []string {
	keys := make([]string, len(m))
	for i, it := range m {
		keys[i] = it.Key
	}
	return keys
}

// Set replaces the value under key, appending it when absent.
func (m *Map) Set(key string, value any) {
	for i, it := range *m {
		if it.Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, MapItem{Key: key, Value: value})
}

// Delete removes key.
func (m *Map) Delete(key string) {
	out := (*m)[:0]
	for _, it := range *m {
		if it.Key != key {
			out = append(out, it)
		}
	}
	*m = out
}

// MoveToEnd moves key, if present, after every other key.
func (m *Map) MoveToEnd(key string) {
	v, ok := m.Get(key)
	if !ok {
		return
	}
	m.Delete(key)
	*m = append(*m, MapItem{Key: key, Value: v})
}

// MarshalYAML keeps the order when the map is written back.
func (m Map) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, it := range m {
		var val yaml.Node
		if err := val.Encode(it.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: it.Key}, &val)
	}
	return node, nil
}

// UnmarshalYAML decodes a mapping node in order.
func (m *Map) UnmarshalYAML(node *yaml.Node) error {
	v, err := fromNode(node)
	if err != nil {
		return err
	}
	mm, ok := v.(Map)
	if !ok {
		return fmt.Errorf("yaml: expected a mapping, got %s", kindName(node))
	}
	*m = mm
	return nil
}

func fromNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		m := make(Map, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Tag == "!!merge" {
				merged, err := fromNode(v)
				if err != nil {
					return nil, err
				}
				if mm, ok := merged.(Map); ok {
					for _, it := range mm {
						m.Set(it.Key, it.Value)
					}
				}
				continue
			}
			val, err := fromNode(v)
			if err != nil {
				return nil, err
			}
			m.Set(k.Value, val)
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case int64:
			return int(x), nil
		case uint64:
			return int(x), nil
		case string, int, float64, bool, nil:
			return x, nil
		default:
			return n.Value, nil
		}
	}
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return "document"
	}
}

// Str renders v the way model output values are shown in comments: lists
// and mappings use a bracketed literal form.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case float64:
		return formatFloat(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = repr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Map:
		parts := make([]string, len(x))
		for i, it := range x {
			parts[i] = repr(it.Key) + ": " + repr(it.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(x)
	}
}

func repr(v any) string {
	if s, ok := v.(string); ok {
		if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
			return `"` + s + `"`
		}
		return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "\n", `\n`) + "'"
	}
	return Str(v)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// IsNo reports whether a model answer is empty or means "no".
func IsNo(v any) bool {
	if IsEmpty(v) {
		return true
	}
	if b, ok := v.(bool); ok {
		return !b
	}
	s := strings.ToLower(strings.TrimSpace(Str(v)))
	return s == "no" || s == "none" || s == "false"
}

// IsEmpty reports whether v carries no content.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case Map:
		return len(x) == 0
	}
	return false
}

package models

// ValueMap is a JSON object with typed accessors.
type ValueMap map[string]interface{}

func (m ValueMap) GetString(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func (m ValueMap) GetBool(key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

func (m ValueMap) GetValueMap(key string) ValueMap {
	switch v := m[key].(type) {
	case ValueMap:
		return v
	case map[string]interface{}:
		return ValueMap(v)
	}
	return nil
}

func (m ValueMap) Copy() ValueMap {
	if m == nil {
		return nil
	}
	return ValueMap(DeepCopy(map[string]interface{}(m)))
}

// DeepCopy copies nested maps and slices so the result shares no mutable state with m.
func DeepCopy(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return DeepCopy(t)
	case ValueMap:
		return ValueMap(DeepCopy(map[string]interface{}(t)))
	case Traits:
		return Traits(DeepCopy(map[string]interface{}(t)))
	case map[string]string:
		out := make(map[string]interface{}, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// Merge returns a new map holding base overlaid by each of overrides in order.
// Nested maps are merged recursively.
func Merge(base map[string]interface{}, overrides ...map[string]interface{}) map[string]interface{} {
	out := DeepCopy(base)
	if out == nil {
		out = make(map[string]interface{})
	}
	for _, o := range overrides {
		for k, v := range o {
			if nested, ok := asMap(v); ok {
				if existing, ok := asMap(out[k]); ok {
					out[k] = Merge(existing, nested)
					continue
				}
			}
			out[k] = copyValue(v)
		}
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case ValueMap:
		return map[string]interface{}(t), true
	case Traits:
		return map[string]interface{}(t), true
	}
	return nil, false
}

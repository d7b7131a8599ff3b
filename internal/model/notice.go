package model

// KeyField is the attribute that uniquely identifies a published notice.
// Notices are never dropped for lacking it, but only keyed notices take
// part in deduplication.
const KeyField = "publication-number"

// Notice is one procurement notice as returned by the search API. The
// field set varies with the requested fields, so it stays an open mapping
// with typed accessors.
type Notice map[string]any

// Key returns the publication number, or "" when the field is absent,
// null, or not a string.
func (n Notice) Key() string {
	v, ok := n[KeyField]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// StringField returns a field coerced to string. List-valued fields
// (common for classification attributes) collapse to their first element.
func (n Notice) StringField(name string) string {
	switch v := n[name].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Keys returns the ordered key list of a batch, "" for unkeyed notices.
// Batch identity comparison for duplicate detection works on this list.
func Keys(batch []Notice) []string {
	keys := make([]string, len(batch))
	for i, n := range batch {
		keys[i] = n.Key()
	}
	return keys
}

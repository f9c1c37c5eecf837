package models

// Metadata is the free-form per-record document. Subsystems treat it as an
// append-only scratchpad: uploads record themselves, compaction records the
// latest moment, and so on. Known keys are listed below so the merge
// semantics stay in one place.
type Metadata map[string]any

// Well-known metadata keys.
const (
	MetaUploads        = "uploads"
	MetaResourceKeys   = "resource_keys"
	MetaFileName       = "file_name"
	MetaLatestMomentID = "latest_moment_id"
	MetaLatestSummary  = "latest_summary"
	MetaMomentCount    = "moment_count"
	MetaMessageCount   = "message_count"
	MetaTokenCount     = "token_count"
	MetaChunkIndex     = "chunk_index"
)

// MergeMetadata applies patch onto dst and returns the result. List-valued
// keys append with deduplication (order preserved, existing first); scalar
// keys overwrite. dst is not mutated; a nil dst is treated as empty.
func MergeMetadata(dst, patch Metadata) Metadata {
	out := make(Metadata, len(dst)+len(patch))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range patch {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		el, elOK := asList(existing)
		pl, plOK := asList(v)
		if elOK && plOK {
			out[k] = appendDedup(el, pl)
			continue
		}
		out[k] = v
	}
	return out
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func appendDedup(dst, src []any) []any {
	seen := make(map[any]bool, len(dst))
	out := make([]any, 0, len(dst)+len(src))
	for _, v := range dst {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, v := range src {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// StringSlice reads a list-valued key as strings, tolerating both []string
// and []any representations (CBOR decoding yields the latter).
func (m Metadata) StringSlice(key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Int reads a numeric key, tolerating the integer and float types CBOR and
// JSON decoding produce.
func (m Metadata) Int(key string) (int, bool) {
	switch n := m[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// String reads a string-valued key, returning "" when absent.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

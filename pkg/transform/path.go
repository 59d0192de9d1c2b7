// Package transform produces outbound bodies from event payloads: identity
// passthrough, declarative field mappings with a dotted path language, or
// sandboxed scripts, plus hierarchical lookup-table resolution.
package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// A path addresses a value in the payload tree: dotted identifiers with
// optional [n] indices, e.g. "patient.addresses[0].city". The special "[]"
// segment (fan-out over every array element) is handled by the mapping
// layer, not here.
type segment struct {
	field string
	index int // -1 when no index
}

func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		field := part
		index := -1
		if i := strings.IndexByte(part, '['); i >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("malformed path segment %q", part)
			}
			idxStr := part[i+1 : len(part)-1]
			n, err := strconv.Atoi(idxStr)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("malformed index in path segment %q", part)
			}
			field = part[:i]
			index = n
		}
		if field == "" {
			return nil, fmt.Errorf("malformed path segment %q", part)
		}
		segs = append(segs, segment{field: field, index: index})
	}
	return segs, nil
}

// getPath reads the value at path. The second return is false when any
// segment is missing or of the wrong shape.
func getPath(root map[string]any, path string) (any, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}
	var current any = root
	for _, seg := range segs {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[seg.field]
		if !ok {
			return nil, false
		}
		if seg.index >= 0 {
			arr, ok := current.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			current = arr[seg.index]
		}
	}
	return current, true
}

// setPath writes value at path, creating intermediate objects and growing
// arrays as needed.
func setPath(root map[string]any, path string, value any) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}

	current := root
	for i, seg := range segs {
		last := i == len(segs)-1

		if seg.index < 0 {
			if last {
				current[seg.field] = value
				return nil
			}
			next, ok := current[seg.field].(map[string]any)
			if !ok {
				next = map[string]any{}
				current[seg.field] = next
			}
			current = next
			continue
		}

		arr, _ := current[seg.field].([]any)
		for len(arr) <= seg.index {
			arr = append(arr, nil)
		}
		current[seg.field] = arr

		if last {
			arr[seg.index] = value
			return nil
		}
		next, ok := arr[seg.index].(map[string]any)
		if !ok {
			next = map[string]any{}
			arr[seg.index] = next
		}
		current = next
	}
	return nil
}

// splitEach splits a path at its single "[]" fan-out marker. ok is false
// when the path has no marker; paths with more than one marker are rejected.
func splitEach(path string) (prefix, suffix string, ok bool, err error) {
	const marker = "[]"
	i := strings.Index(path, marker)
	if i < 0 {
		return "", "", false, nil
	}
	if strings.Contains(path[i+len(marker):], marker) {
		return "", "", false, fmt.Errorf("path %q has more than one [] marker", path)
	}
	prefix = path[:i]
	suffix = strings.TrimPrefix(path[i+len(marker):], ".")
	if prefix == "" {
		return "", "", false, fmt.Errorf("path %q cannot begin with []", path)
	}
	return prefix, suffix, true, nil
}

package entity

import (
	"net/url"
	"sort"
	"strings"

	"github.com/makerspace/memberd/service"
)

// BuildFilter derives a WHERE clause from request query parameters. Each
// recognized parameter name (matched against the exposed name or alias of a
// readable column) supplies a comma-separated set of candidate values,
// turned into an IN predicate whose operands are encoded through the
// column's write transform, so filter values undergo the same coercion as
// persisted values. Unrecognized parameters are silently ignored. When
// deletion is allowed for the entity, an implicit soft-delete-absent
// predicate is conjoined. All predicates are joined with AND.
func (e *Entity) BuildFilter(query url.Values) (string, []any, error) {
	byName := make(map[string]Column, len(e.readable)*2)
	for _, c := range e.readable {
		byName[c.Exposed] = c
		if c.Alias != "" {
			byName[c.Alias] = c
		}
	}

	// Sorted for deterministic SQL.
	keys := make([]string, 0, len(query))
	for key := range query {
		if _, ok := byName[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var predicates []string
	var args []any
	for _, key := range keys {
		c := byName[key]
		candidates := strings.Split(query.Get(key), ",")

		encode := c.Encode
		if encode == nil {
			encode = encodeOpaque
		}
		for _, candidate := range candidates {
			encoded, err := encode(candidate)
			if err != nil {
				return "", nil, service.BadRequest("invalid filter value for %s: %v", key, err)
			}
			args = append(args, encoded)
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(candidates)), ",")
		predicates = append(predicates, c.Name+" IN ("+placeholders+")")
	}

	if e.AllowDelete {
		predicates = append(predicates, "deleted_at IS NULL")
	}

	return strings.Join(predicates, " AND "), args, nil
}

package run

import (
	"fmt"
	"sort"
	"strings"
)

// Resolve maps a user-typed id prefix to the one stored run it identifies.
func (s *Store) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrEmptyPrefix
	}
	ids, err := s.IDs()
	if err != nil {
		return "", err
	}
	return ResolvePrefix(ids, prefix)
}

// ResolvePrefix picks the single id in ids that starts with prefix.
// Matching is case-sensitive on the canonical hex form.
func ResolvePrefix(ids []string, prefix string) (string, error) {
	if prefix == "" {
		return "", ErrEmptyPrefix
	}

	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no run matches %q", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", &AmbiguousError{Prefix: prefix, Candidates: matches}
	}
}

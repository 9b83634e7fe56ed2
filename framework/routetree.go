package framework

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

const indexPath = "/"

var dynamicSegmentNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

type pathSegment struct {
	name    string
	isParam bool
}

// Branch is one matchable path through the route tree, root first.
type Branch[C interface{}] struct {
	Pattern string
	Routes  []*Route[C]

	segments    []pathSegment
	staticCount int
	patternKey  string
}

type Match[C interface{}] struct {
	Branch *Branch[C]
	Params Params
}

type Tree[C interface{}] struct {
	branches []*Branch[C]
}

// NewTree compiles root and its descendants into matchable branches. A route
// with an index child is reached through that child; any other route with a
// component is an endpoint of its own.
func NewTree[C interface{}](root *Route[C]) (*Tree[C], error) {
	if root == nil {
		return nil, errors.New("route tree root cannot be nil")
	}
	if strings.TrimSpace(root.Path) != "" {
		return nil, fmt.Errorf("root route must have an empty path, got %q", root.Path)
	}

	compiler := &treeCompiler[C]{seenPattern: make(map[string]string)}
	if err := compiler.walk(root, nil, nil); err != nil {
		return nil, err
	}
	if len(compiler.branches) == 0 {
		return nil, errors.New("no routes with components found")
	}

	branches := compiler.branches
	sort.SliceStable(branches, func(i int, j int) bool {
		left := branches[i]
		right := branches[j]

		if left.staticCount != right.staticCount {
			return left.staticCount > right.staticCount
		}
		if len(left.segments) != len(right.segments) {
			return len(left.segments) > len(right.segments)
		}
		return left.Pattern < right.Pattern
	})

	return &Tree[C]{branches: branches}, nil
}

type treeCompiler[C interface{}] struct {
	branches    []*Branch[C]
	seenPattern map[string]string
}

func (tc *treeCompiler[C]) walk(route *Route[C], ancestors []*Route[C], segments []pathSegment) error {
	if route == nil {
		return errors.New("route cannot be nil")
	}
	if route.Component == nil {
		return fmt.Errorf("route %q has no component", patternOf(segments, route.Path))
	}

	own, err := parseRoutePath(route.Path, len(ancestors) == 0)
	if err != nil {
		return err
	}

	chain := append(append(make([]*Route[C], 0, len(ancestors)+1), ancestors...), route)
	joined := append(append(make([]pathSegment, 0, len(segments)+len(own)), segments...), own...)

	hasIndex := false
	for _, child := range route.Children {
		if child != nil && child.Path == indexPath {
			hasIndex = true
			break
		}
	}

	if !hasIndex {
		if err := tc.register(chain, joined); err != nil {
			return err
		}
	}

	for _, child := range route.Children {
		if err := tc.walk(child, chain, joined); err != nil {
			return err
		}
	}
	return nil
}

func (tc *treeCompiler[C]) register(chain []*Route[C], segments []pathSegment) error {
	patternParts := make([]string, 0, len(segments))
	staticCount := 0
	for _, segment := range segments {
		if segment.isParam {
			patternParts = append(patternParts, ":")
			continue
		}
		patternParts = append(patternParts, segment.name)
		staticCount++
	}

	patternKey := "/" + strings.Join(patternParts, "/")
	pattern := patternOf(segments, "")
	if existing, ok := tc.seenPattern[patternKey]; ok {
		return fmt.Errorf("route pattern conflict: %q and %q", existing, pattern)
	}
	tc.seenPattern[patternKey] = pattern

	tc.branches = append(tc.branches, &Branch[C]{
		Pattern:     pattern,
		Routes:      chain,
		segments:    segments,
		staticCount: staticCount,
		patternKey:  patternKey,
	})
	return nil
}

func parseRoutePath(raw string, isRoot bool) ([]pathSegment, error) {
	if isRoot || raw == indexPath {
		return nil, nil
	}

	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("route path %q is empty", raw)
	}

	parts := strings.Split(trimmed, "/")
	segments := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("route path %q has empty path segment", raw)
		}

		name, isParam, err := parseWildcardSegment(part)
		if err != nil {
			return nil, fmt.Errorf("route path %q: %w", raw, err)
		}
		if isParam {
			segments = append(segments, pathSegment{name: name, isParam: true})
			continue
		}
		segments = append(segments, pathSegment{name: part})
	}

	return segments, nil
}

func parseWildcardSegment(segment string) (string, bool, error) {
	if strings.HasPrefix(segment, "[") || strings.HasSuffix(segment, "]") {
		if !strings.HasPrefix(segment, "[") || !strings.HasSuffix(segment, "]") {
			return "", false, fmt.Errorf("invalid wildcard segment %q", segment)
		}

		name := strings.TrimSpace(segment[1 : len(segment)-1])
		if !dynamicSegmentNamePattern.MatchString(name) {
			return "", false, fmt.Errorf("invalid wildcard name %q", name)
		}

		return name, true, nil
	}

	if strings.ContainsAny(segment, "[]") {
		return "", false, fmt.Errorf("invalid static segment %q", segment)
	}

	return "", false, nil
}

func patternOf(segments []pathSegment, tail string) string {
	parts := make([]string, 0, len(segments)+1)
	for _, segment := range segments {
		if segment.isParam {
			parts = append(parts, "["+segment.name+"]")
			continue
		}
		parts = append(parts, segment.name)
	}
	if tail = strings.Trim(tail, "/"); tail != "" {
		parts = append(parts, tail)
	}

	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/") + "/"
}

// Match finds the branch for requestPath. A trailing slash does not affect
// matching.
func (tree *Tree[C]) Match(requestPath string) (Match[C], bool) {
	requestSegments := splitPathSegments(requestPath)

	for _, branch := range tree.branches {
		if len(branch.segments) != len(requestSegments) {
			continue
		}

		params := make(Params, 2)
		matched := true

		for idx, segment := range branch.segments {
			requestValue := requestSegments[idx]
			if segment.isParam {
				params[segment.name] = requestValue
				continue
			}
			if segment.name != requestValue {
				matched = false
				break
			}
		}

		if !matched {
			continue
		}

		if len(params) == 0 {
			return Match[C]{Branch: branch}, true
		}
		return Match[C]{Branch: branch, Params: params}, true
	}

	return Match[C]{}, false
}

func splitPathSegments(raw string) []string {
	cleaned := path.Clean("/" + strings.TrimSpace(raw))
	if cleaned == "/" {
		return []string{}
	}

	trimmed := strings.Trim(cleaned, "/")
	if trimmed == "" {
		return []string{}
	}

	return strings.Split(trimmed, "/")
}

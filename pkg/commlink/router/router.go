// Package router resolves a method and path against a table of
// "METHOD /segment/:param" patterns.
//
// Segments are compared after dropping empty ones, so leading, trailing and
// doubled slashes do not matter. A pattern matches only paths with the same
// method and segment count. When several patterns match, a static segment
// beats a parameter at the first position where they differ; remaining ties
// go to the pattern registered first.
package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRouteNotFound is returned by Match when no pattern fits.
var ErrRouteNotFound = errors.New("route not found")

// Params holds path parameters by name.
type Params map[string]string

func (p Params) Get(name string) string {
	return p[name]
}

// Int parses the named parameter as a positive integer id.
func (p Params) Int(name string) (uint, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("missing path parameter %q", name)
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid path parameter %q: %q", name, v)
	}
	return uint(n), nil
}

type segment struct {
	value string
	param bool
}

type route[H any] struct {
	pattern  string
	method   string
	segments []segment
	handler  H
}

// Match is the result of a successful lookup.
type Match[H any] struct {
	Pattern string
	Handler H
	Params  Params
}

// Table is an ordered set of routes. It is not safe for concurrent
// registration; register everything before serving.
type Table[H any] struct {
	routes []route[H]
}

func New[H any]() *Table[H] {
	return &Table[H]{}
}

// Handle registers h under a pattern such as "GET /api/links/:id".
func (t *Table[H]) Handle(pattern string, h H) error {
	fields := strings.Fields(pattern)
	if len(fields) != 2 {
		return fmt.Errorf("route %q: want \"METHOD /path\"", pattern)
	}
	method, path := strings.ToUpper(fields[0]), fields[1]
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("route %q: path must start with /", pattern)
	}

	parts := splitPath(path)
	segments := make([]segment, len(parts))
	seen := make(map[string]bool)
	for i, part := range parts {
		if !strings.HasPrefix(part, ":") {
			segments[i] = segment{value: part}
			continue
		}
		name := part[1:]
		if name == "" {
			return fmt.Errorf("route %q: empty parameter name", pattern)
		}
		if seen[name] {
			return fmt.Errorf("route %q: duplicate parameter %q", pattern, name)
		}
		seen[name] = true
		segments[i] = segment{value: name, param: true}
	}

	t.routes = append(t.routes, route[H]{
		pattern:  method + " " + path,
		method:   method,
		segments: segments,
		handler:  h,
	})
	return nil
}

// MustHandle is Handle for static route tables; it panics on a bad pattern.
func (t *Table[H]) MustHandle(pattern string, h H) {
	if err := t.Handle(pattern, h); err != nil {
		panic(err)
	}
}

// Match finds the handler for method and path. Anything after '?' is ignored.
func (t *Table[H]) Match(method, path string) (Match[H], error) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := splitPath(path)

	best := -1
	for i := range t.routes {
		r := &t.routes[i]
		if r.method != method || len(r.segments) != len(parts) || !r.fits(parts) {
			continue
		}
		if best < 0 || moreSpecific(r.segments, t.routes[best].segments) {
			best = i
		}
	}
	if best < 0 {
		return Match[H]{}, ErrRouteNotFound
	}

	r := t.routes[best]
	params := make(Params)
	for i, seg := range r.segments {
		if seg.param {
			params[seg.value] = parts[i]
		}
	}
	return Match[H]{Pattern: r.pattern, Handler: r.handler, Params: params}, nil
}

// Routes lists registered patterns in registration order.
func (t *Table[H]) Routes() []string {
	out := make([]string, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.pattern
	}
	return out
}

func (r *route[H]) fits(parts []string) bool {
	for i, seg := range r.segments {
		if !seg.param && seg.value != parts[i] {
			return false
		}
	}
	return true
}

// moreSpecific reports whether a beats b: static over parameter at the first
// position where they differ. Equal shapes return false so earlier routes win.
func moreSpecific(a, b []segment) bool {
	for i := range a {
		if a[i].param != b[i].param {
			return !a[i].param
		}
	}
	return false
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

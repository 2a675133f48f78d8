// Package registry exposes the generated site registries the knowledge
// index is built from: page assistant descriptors, the route governance
// inventory, curated topic metadata, and the allowed-route manifest. The
// files are emitted by the site build; this package only reads them.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PageDescriptor is one entry of the page assistant configuration.
type PageDescriptor struct {
	Route        string   `json:"route"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Tags         []string `json:"tags,omitempty"`
	KeySections  []string `json:"keySections,omitempty"`
	EvidenceRefs []string `json:"evidenceRefs,omitempty"`
}

// RouteInfo is one entry of the route governance inventory. It carries less
// detail than a page descriptor and is only a fallback source.
type RouteInfo struct {
	Route   string `json:"route"`
	Title   string `json:"title"`
	Purpose string `json:"purpose,omitempty"`
}

// TopicMeta is curated editorial metadata that overrides generated page
// descriptors for chosen routes.
type TopicMeta struct {
	Route       string   `json:"route"`
	Title       string   `json:"title,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	KeySections []string `json:"keySections,omitempty"`
}

// Source provides the three registries the index merges.
type Source interface {
	PageDescriptors() []PageDescriptor
	RouteInventory() []RouteInfo
	TopicMetadata() []TopicMeta
}

// AllowedRoutes answers whether a route is part of the generated route
// manifest. Pages outside the manifest must never be cited.
type AllowedRoutes interface {
	Allowed(route string) bool
	Routes() []string
}

// Static is an in-memory Source, used for tests and as the empty default.
type Static struct {
	Pages  []PageDescriptor
	Inv    []RouteInfo
	Topics []TopicMeta
}

func (s *Static) PageDescriptors() []PageDescriptor { return s.Pages }
func (s *Static) RouteInventory() []RouteInfo       { return s.Inv }
func (s *Static) TopicMetadata() []TopicMeta        { return s.Topics }

// RouteSet is the allowed-route membership check over an expanded manifest.
type RouteSet struct {
	routes map[string]bool
}

func (r *RouteSet) Allowed(route string) bool {
	return r.routes[normalizeRoute(route)]
}

func (r *RouteSet) Routes() []string {
	out := make([]string, 0, len(r.routes))
	for route := range r.routes {
		out = append(out, route)
	}
	return out
}

// NewRouteSet builds a RouteSet from already-expanded concrete routes.
func NewRouteSet(routes []string) *RouteSet {
	set := make(map[string]bool, len(routes))
	for _, route := range routes {
		if route = normalizeRoute(route); route != "" {
			set[route] = true
		}
	}
	return &RouteSet{routes: set}
}

// routeManifest is the on-disk shape of the generated route manifest.
// Dynamic routes carry the fixture slugs they were built with, so the
// expansion here matches what the site actually serves.
type routeManifest struct {
	Static  []string `json:"static"`
	Dynamic []struct {
		Pattern string   `json:"pattern"`
		Slugs   []string `json:"slugs"`
	} `json:"dynamic"`
}

func (m routeManifest) expand() []string {
	routes := append([]string(nil), m.Static...)
	for _, d := range m.Dynamic {
		idx := strings.Index(d.Pattern, ":")
		if idx < 0 {
			routes = append(routes, d.Pattern)
			continue
		}
		prefix := d.Pattern[:idx]
		for _, slug := range d.Slugs {
			routes = append(routes, prefix+slug)
		}
	}
	return routes
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return ""
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if route != "/" {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}

// Dir is a Source backed by the registry files in one directory.
type Dir struct {
	pages  []PageDescriptor
	inv    []RouteInfo
	topics []TopicMeta
}

func (d *Dir) PageDescriptors() []PageDescriptor { return d.pages }
func (d *Dir) RouteInventory() []RouteInfo       { return d.inv }
func (d *Dir) TopicMetadata() []TopicMeta        { return d.topics }

// LoadDir reads pages.json, routes.json, topics.json and manifest.json from
// dir. Registry files are generated together, so any missing file is an
// error rather than an empty default.
func LoadDir(dir string) (*Dir, *RouteSet, error) {
	var d Dir
	if err := readJSON(filepath.Join(dir, "pages.json"), &d.pages); err != nil {
		return nil, nil, err
	}
	if err := readJSON(filepath.Join(dir, "routes.json"), &d.inv); err != nil {
		return nil, nil, err
	}
	if err := readJSON(filepath.Join(dir, "topics.json"), &d.topics); err != nil {
		return nil, nil, err
	}
	var manifest routeManifest
	if err := readJSON(filepath.Join(dir, "manifest.json"), &manifest); err != nil {
		return nil, nil, err
	}
	return &d, NewRouteSet(manifest.expand()), nil
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read registry file: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Package registry holds the immutable mapping from service name to base URL.
package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"venue-server/shared/models"
)

// Service names routed by the gateway.
const (
	ServiceAuth  = "auth"
	ServiceUser  = "user"
	ServiceVenue = "venue"
)

// Registry is built once at startup and never mutated.
type Registry struct {
	services map[string]url.URL
}

// New validates every entry. Base URLs must be absolute.
func New(entries map[string]string) (*Registry, error) {
	services := make(map[string]url.URL, len(entries))
	for name, raw := range entries {
		u, err := url.Parse(strings.TrimRight(raw, "/"))
		if err != nil {
			return nil, fmt.Errorf("service %q: invalid url: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("service %q: url %q must be absolute", name, raw)
		}
		services[name] = *u
	}
	return &Registry{services: services}, nil
}

// Resolve returns a copy of the base URL; unknown names yield models.ErrUnknownService.
func (r *Registry) Resolve(name string) (*url.URL, error) {
	u, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownService, name)
	}
	return &u, nil
}

// MustContain reports the first missing name.
func (r *Registry) MustContain(names ...string) error {
	for _, name := range names {
		if _, err := r.Resolve(name); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

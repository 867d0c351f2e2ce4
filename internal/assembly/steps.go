// SPDX-License-Identifier: MPL-2.0

package assembly

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/masonbuild/mason/internal/classfile"
	"github.com/masonbuild/mason/pkg/manifest"
)

// signaturePatterns match signature and certificate files. Names are
// upper-cased before matching.
var signaturePatterns = []string{
	"META-INF/*.SF",
	"META-INF/*.DSA",
	"META-INF/*.RSA",
	"META-INF/*.EC",
	"META-INF/SIG-*",
}

// exclude drops entries and service registrations whose original name
// matches one of patterns. Root module entries are excluded too.
func (c *collection) exclude(patterns []string) int {
	if len(patterns) == 0 {
		return 0
	}
	match := func(name string) bool {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, name); ok {
				return true
			}
		}
		return false
	}
	before := len(c.entries)
	c.entries = slices.DeleteFunc(c.entries, func(e *entry) bool { return match(e.orig) })
	for iface := range c.services {
		if match(classfile.ServicesDir + iface) {
			delete(c.services, iface)
		}
	}
	c.reindex()
	return before - len(c.entries)
}

// relocate renames entries and rewrites class constants and service
// registrations. It returns the number of entries renamed or rewritten.
func (c *collection) relocate(r *classfile.Relocator) (int, error) {
	if r.Empty() {
		return 0, nil
	}
	changed := 0
	for _, e := range c.entries {
		name := r.Path(e.name)
		touched := name != e.name
		e.name = name
		if isClass(e.orig) {
			data, rewritten, err := r.Class(e.data)
			if err != nil {
				return changed, fmt.Errorf("relocate %s: %w", e.orig, err)
			}
			e.data = data
			touched = touched || rewritten
		}
		if touched {
			changed++
		}
	}

	services := make(map[string][]serviceCopy, len(c.services))
	for _, iface := range slices.Sorted(maps.Keys(c.services)) {
		to := r.Dotted(iface)
		for _, cp := range c.services[iface] {
			providers := make([]string, len(cp.providers))
			for i, p := range cp.providers {
				providers[i] = r.Dotted(p)
			}
			services[to] = append(services[to], serviceCopy{source: cp.source, providers: providers})
		}
	}
	for iface := range services {
		slices.SortStableFunc(services[iface], func(a, b serviceCopy) int { return a.source - b.source })
	}
	c.services = services

	shadowed := make(map[string][]shadow, len(c.shadowed))
	for name, s := range c.shadowed {
		to := r.Path(name)
		shadowed[to] = append(shadowed[to], s...)
	}
	c.shadowed = shadowed

	c.reindex()
	return changed, nil
}

// providers returns the provider list of every service interface: the union
// over sources in source order when merging, otherwise the first source's.
func (c *collection) providers(merge bool) map[string][]string {
	out := make(map[string][]string, len(c.services))
	for iface, copies := range c.services {
		if !merge {
			copies = copies[:1]
		}
		seen := make(map[string]bool)
		var list []string
		for _, cp := range copies {
			for _, p := range cp.providers {
				if !seen[p] {
					seen[p] = true
					list = append(list, p)
				}
			}
		}
		out[iface] = list
	}
	return out
}

// checkProviders rejects provider classes whose shadowed duplicates carry
// different bytes than the copy that won.
func (c *collection) checkProviders(module manifest.ModuleID, services map[string][]string) error {
	for _, iface := range slices.Sorted(maps.Keys(services)) {
		for _, p := range services[iface] {
			name := classfile.EntryName(classfile.InternalName(p))
			i, held := c.byName[name]
			if !held {
				continue
			}
			winner := c.entries[i]
			for _, s := range c.shadowed[name] {
				if s.sum != winner.sum {
					return &AssemblyError{
						Kind:    KindDuplicateServiceEntryConflict,
						Module:  module,
						Entry:   name,
						Sources: []string{c.sources[winner.source].label, c.sources[s.source].label},
					}
				}
			}
		}
	}
	return nil
}

// strip removes signature files and returns how many were dropped.
func (c *collection) strip() int {
	before := len(c.entries)
	c.entries = slices.DeleteFunc(c.entries, func(e *entry) bool { return isSignature(e.name) })
	if len(c.entries) != before {
		c.reindex()
	}
	return before - len(c.entries)
}

func isSignature(name string) bool {
	upper := strings.ToUpper(name)
	for _, p := range signaturePatterns {
		if ok, _ := doublestar.Match(p, upper); ok {
			return true
		}
	}
	return false
}

// renderServices turns provider lists into service registration entries.
func renderServices(services map[string][]string) map[string][]byte {
	out := make(map[string][]byte, len(services))
	for iface, providers := range services {
		if len(providers) == 0 {
			continue
		}
		out[classfile.ServicesDir+iface] = []byte(strings.Join(providers, "\n") + "\n")
	}
	return out
}

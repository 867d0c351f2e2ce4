// SPDX-License-Identifier: MPL-2.0

package assembly

import (
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/masonbuild/mason/internal/classfile"
	"github.com/masonbuild/mason/pkg/manifest"
)

// reachability is a mark phase over the entry arena. Class entries are
// nodes; edges are the class references found in their constant pools.
type reachability struct {
	c       *collection
	classes map[string]int
	marked  []bool
	queue   []int
	logger  *slog.Logger
}

func newReachability(c *collection, logger *slog.Logger) *reachability {
	r := &reachability{
		c:       c,
		classes: make(map[string]int),
		marked:  make([]bool, len(c.entries)),
		logger:  logger,
	}
	for i, e := range c.entries {
		if isClass(e.name) {
			r.classes[strings.TrimSuffix(e.name, ".class")] = i
		}
	}
	return r
}

func (r *reachability) mark(i int) {
	if !r.marked[i] {
		r.marked[i] = true
		r.queue = append(r.queue, i)
	}
}

// markClass marks a class by internal name. It reports whether the class is
// held in the arena.
func (r *reachability) markClass(internal string) bool {
	i, ok := r.classes[internal]
	if ok {
		r.mark(i)
	}
	return ok
}

// drain follows references from every queued entry.
func (r *reachability) drain() {
	for len(r.queue) > 0 {
		i := r.queue[len(r.queue)-1]
		r.queue = r.queue[:len(r.queue)-1]
		e := r.c.entries[i]
		if !isClass(e.name) {
			continue
		}
		cf, err := classfile.Parse(e.data)
		if err != nil {
			r.logger.Warn("unparsable class kept without references", "entry", e.name, "error", err)
			continue
		}
		for _, ref := range cf.References() {
			r.markClass(ref)
		}
	}
}

// markProviders marks providers of every service whose interface is
// reachable or lives outside the archive, until no new provider is marked.
func (r *reachability) markProviders(services map[string][]string) {
	ifaces := slices.Sorted(maps.Keys(services))
	for {
		progressed := false
		for _, iface := range ifaces {
			if i, held := r.classes[classfile.InternalName(iface)]; held && !r.marked[i] {
				continue
			}
			for _, p := range services[iface] {
				if i, held := r.classes[classfile.InternalName(p)]; held && !r.marked[i] {
					r.mark(i)
					progressed = true
				}
			}
		}
		r.drain()
		if !progressed {
			return
		}
	}
}

// minimize keeps the classes reachable from the roots: every entry of root
// and exempt sources, keep-list matches and the Main-Class. Resources are
// always kept. Service registrations are pruned to surviving providers.
// It returns the number of classes kept and dropped.
func (c *collection) minimize(module manifest.ModuleID, keep []string, mainClass string, services map[string][]string, logger *slog.Logger) (kept, dropped int, err error) {
	r := newReachability(c, logger)
	for i, e := range c.entries {
		if src := c.sources[e.source]; src.root || src.exempt || !isClass(e.name) {
			r.mark(i)
		}
	}
	for _, raw := range keep {
		pattern := keepPattern(raw)
		matched := false
		for i, e := range c.entries {
			if matchEither(pattern, e.name, e.orig) {
				r.mark(i)
				matched = true
			}
		}
		if !matched && !hasMeta(pattern) {
			return 0, 0, &AssemblyError{Kind: KindRootUnreachable, Module: module, Entry: raw, Err: errKeepUnmatched}
		}
	}
	if mainClass != "" {
		r.markClass(classfile.InternalName(mainClass))
	}
	r.drain()
	r.markProviders(services)

	kept0 := c.entries[:0]
	held := make(map[string]bool)
	for i, e := range c.entries {
		if !r.marked[i] {
			dropped++
			continue
		}
		if isClass(e.name) {
			kept++
			held[e.name] = true
		}
		kept0 = append(kept0, e)
	}
	c.entries = kept0
	c.reindex()

	for iface, providers := range services {
		services[iface] = slices.DeleteFunc(providers, func(p string) bool {
			_, inArena := r.classes[classfile.InternalName(p)]
			return inArena && !held[classfile.EntryName(classfile.InternalName(p))]
		})
	}
	return kept, dropped, nil
}

// keepPattern accepts entry globs ("com/starrocks/udf/**") and dotted class
// names ("com.starrocks.udf.UDFClassLoader").
func keepPattern(p string) string {
	if strings.Contains(p, "/") || strings.HasSuffix(p, ".class") || !strings.Contains(p, ".") {
		return p
	}
	if base, ok := strings.CutSuffix(p, ".**"); ok {
		return classfile.InternalName(base) + "/**"
	}
	if base, ok := strings.CutSuffix(p, ".*"); ok {
		return classfile.InternalName(base) + "/*"
	}
	return classfile.EntryName(classfile.InternalName(p))
}

func matchEither(pattern string, names ...string) bool {
	for _, n := range names {
		if ok, _ := doublestar.Match(pattern, n); ok {
			return true
		}
	}
	return false
}

func hasMeta(p string) bool { return strings.ContainsAny(p, "*?[{") }

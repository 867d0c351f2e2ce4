// SPDX-License-Identifier: MPL-2.0

package repository

import (
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"regexp"
	"strings"

	"github.com/masonbuild/mason/pkg/coord"
)

// maxInterpolationDepth bounds nested ${...} expansion in POM values.
const maxInterpolationDepth = 16

var pomPlaceholder = regexp.MustCompile(`\$\{([^}]+)\}`)

type (
	pomRef struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
		Version    string `xml:"version"`
	}

	pomExclusion struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
	}

	pomDependency struct {
		GroupID    string         `xml:"groupId"`
		ArtifactID string         `xml:"artifactId"`
		Version    string         `xml:"version"`
		Classifier string         `xml:"classifier"`
		Type       string         `xml:"type"`
		Scope      string         `xml:"scope"`
		Optional   string         `xml:"optional"`
		Exclusions []pomExclusion `xml:"exclusions>exclusion"`
	}

	// pomProperties decodes the free-form <properties> element.
	pomProperties map[string]string

	pomProject struct {
		XMLName              xml.Name        `xml:"project"`
		Parent               *pomRef         `xml:"parent"`
		GroupID              string          `xml:"groupId"`
		ArtifactID           string          `xml:"artifactId"`
		Version              string          `xml:"version"`
		Packaging            string          `xml:"packaging"`
		Properties           pomProperties   `xml:"properties"`
		DependencyManagement []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
		Dependencies         []pomDependency `xml:"dependencies>dependency"`
	}

	// effectivePOM is a project with its parent chain merged and its
	// properties interpolated.
	effectivePOM struct {
		coordinate coord.Coordinate
		version    coord.Version
		properties map[string]string
		managed    []pomDependency
		deps       []pomDependency
	}
)

// UnmarshalXML collects every child element of <properties> as name/value.
func (p *pomProperties) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	props := make(pomProperties)
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &t); err != nil {
				return err
			}
			props[t.Name.Local] = strings.TrimSpace(value)
		case xml.EndElement:
			*p = props
			return nil
		}
	}
}

func parsePOM(r io.Reader) (*pomProject, error) {
	var p pomProject
	if err := xml.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode pom: %w", err)
	}
	if p.GroupID == "" && p.Parent != nil {
		p.GroupID = p.Parent.GroupID
	}
	if p.Version == "" && p.Parent != nil {
		p.Version = p.Parent.Version
	}
	return &p, nil
}

// mergeParent layers child on top of an already effective parent.
func mergeParent(parent *effectivePOM, child *pomProject) *effectivePOM {
	eff := &effectivePOM{properties: make(map[string]string)}
	if parent != nil {
		maps.Copy(eff.properties, parent.properties)
		eff.managed = append(eff.managed, parent.managed...)
		eff.deps = append(eff.deps, parent.deps...)
		eff.properties["project.parent.groupId"] = parent.coordinate.Group
		eff.properties["project.parent.artifactId"] = parent.coordinate.Name
		eff.properties["project.parent.version"] = string(parent.version)
	}
	maps.Copy(eff.properties, child.Properties)
	eff.properties["project.groupId"] = child.GroupID
	eff.properties["project.artifactId"] = child.ArtifactID
	eff.properties["project.version"] = child.Version
	eff.properties["pom.version"] = child.Version
	eff.coordinate = coord.Coordinate{Group: child.GroupID, Name: child.ArtifactID}
	eff.version = coord.Version(child.Version)

	// child entries override parent entries with the same key
	eff.managed = overlay(eff.managed, child.DependencyManagement)
	eff.deps = overlay(eff.deps, child.Dependencies)

	for i := range eff.managed {
		eff.managed[i] = eff.interpolateDep(eff.managed[i])
	}
	for i := range eff.deps {
		eff.deps[i] = eff.interpolateDep(eff.deps[i])
	}
	return eff
}

func overlay(base, top []pomDependency) []pomDependency {
	out := make([]pomDependency, 0, len(base)+len(top))
	seen := make(map[string]int, len(base))
	for _, d := range base {
		seen[depKey(d)] = len(out)
		out = append(out, d)
	}
	for _, d := range top {
		if i, ok := seen[depKey(d)]; ok {
			out[i] = d
			continue
		}
		seen[depKey(d)] = len(out)
		out = append(out, d)
	}
	return out
}

func depKey(d pomDependency) string {
	return d.GroupID + ":" + d.ArtifactID + ":" + d.Classifier + ":" + d.Type
}

func (e *effectivePOM) interpolateDep(d pomDependency) pomDependency {
	d.GroupID = e.interpolate(d.GroupID)
	d.ArtifactID = e.interpolate(d.ArtifactID)
	d.Version = e.interpolate(d.Version)
	d.Classifier = e.interpolate(d.Classifier)
	d.Scope = e.interpolate(d.Scope)
	return d
}

// interpolate expands ${name} references. Unknown names are left verbatim so
// that the caller can report the unresolved version.
func (e *effectivePOM) interpolate(s string) string {
	for range maxInterpolationDepth {
		if !strings.Contains(s, "${") {
			return s
		}
		next := pomPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
			name := m[2 : len(m)-1]
			if v, ok := e.properties[name]; ok {
				return v
			}
			return m
		})
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// pomScope maps a POM scope to a mason scope. The boolean is false for
// scopes that never reach a classpath (system, import).
func pomScope(s string) (coord.Scope, bool) {
	switch strings.TrimSpace(s) {
	case "", "compile":
		return coord.ScopeCompile, true
	case "runtime":
		return coord.ScopeRuntime, true
	case "test":
		return coord.ScopeTest, true
	case "provided":
		return coord.ScopeCompileOnly, true
	default:
		return "", false
	}
}

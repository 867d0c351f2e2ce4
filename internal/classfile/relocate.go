// SPDX-License-Identifier: MPL-2.0

package classfile

import (
	"bufio"
	"bytes"
	"cmp"
	"slices"
	"strings"
)

type (
	// Rule moves the dotted namespace From, and everything beneath it, to To.
	Rule struct {
		From string
		To   string
	}

	// Relocator applies namespace rules to class names, entry paths, class
	// file constants and service registrations. The most specific rule wins.
	Relocator struct {
		rules []rule
	}

	rule struct {
		fromDot, toDot     string
		fromSlash, toSlash string
	}
)

// NewRelocator returns a Relocator for rules.
func NewRelocator(rules ...Rule) *Relocator {
	r := &Relocator{}
	for _, rl := range rules {
		from := strings.TrimSuffix(rl.From, ".")
		to := strings.TrimSuffix(rl.To, ".")
		if from == "" || from == to {
			continue
		}
		r.rules = append(r.rules, rule{
			fromDot:   from,
			toDot:     to,
			fromSlash: strings.ReplaceAll(from, ".", "/"),
			toSlash:   strings.ReplaceAll(to, ".", "/"),
		})
	}
	slices.SortStableFunc(r.rules, func(a, b rule) int { return cmp.Compare(len(b.fromDot), len(a.fromDot)) })
	return r
}

// Empty reports whether the relocator has no rules.
func (r *Relocator) Empty() bool { return r == nil || len(r.rules) == 0 }

// Inverse returns the relocator that undoes r.
func (r *Relocator) Inverse() *Relocator {
	inv := make([]Rule, 0, len(r.rules))
	for _, rl := range r.rules {
		inv = append(inv, Rule{From: rl.toDot, To: rl.fromDot})
	}
	return NewRelocator(inv...)
}

// Internal relocates a slash-separated name such as an internal class name,
// an archive entry path or a package name.
func (r *Relocator) Internal(name string) string {
	if r.Empty() {
		return name
	}
	for _, rl := range r.rules {
		if name == rl.fromSlash {
			return rl.toSlash
		}
		if rest, ok := strings.CutPrefix(name, rl.fromSlash+"/"); ok {
			return rl.toSlash + "/" + rest
		}
	}
	return name
}

// classname relocates an internal class name, which always lies beneath
// the namespace it belongs to.
func (r *Relocator) classname(name string) string {
	for _, rl := range r.rules {
		if rest, ok := strings.CutPrefix(name, rl.fromSlash+"/"); ok {
			return rl.toSlash + "/" + rest
		}
	}
	return name
}

// Dotted relocates a dotted name such as a class name in a service file, a
// Main-Class attribute or a package name.
func (r *Relocator) Dotted(name string) string {
	if r.Empty() {
		return name
	}
	for _, rl := range r.rules {
		if name == rl.fromDot {
			return rl.toDot
		}
		if rest, ok := strings.CutPrefix(name, rl.fromDot+"."); ok {
			return rl.toDot + "." + rest
		}
	}
	return name
}

// Path relocates an archive entry path. Service registrations are renamed
// by the service interface they name.
func (r *Relocator) Path(p string) string {
	if iface, ok := strings.CutPrefix(p, ServicesDir); ok {
		return ServicesDir + r.Dotted(iface)
	}
	return r.Internal(p)
}

// Text relocates the content of one UTF-8 constant: whole internal names,
// resource paths, dotted names, and class names embedded in descriptors and
// signatures.
func (r *Relocator) Text(s string) string {
	if r.Empty() || s == "" {
		return s
	}
	if t := r.Internal(s); t != s {
		return t
	}
	if rest, ok := strings.CutPrefix(s, "/"); ok {
		if t := r.Internal(rest); t != rest {
			return "/" + t
		}
	}
	if t := r.Dotted(s); t != s {
		return t
	}
	return r.descriptors(s)
}

// descriptors rewrites the outer class names of a descriptor or signature.
// Inner class suffixes follow their outer class.
func (r *Relocator) descriptors(s string) string {
	refs, ok := parseDescriptor(s)
	if !ok {
		return s
	}
	var b strings.Builder
	last := 0
	for _, ref := range refs {
		outer := s[ref.start:ref.end]
		t := r.classname(outer)
		if t == outer {
			continue
		}
		b.WriteString(s[last:ref.start])
		b.WriteString(t)
		last = ref.end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// Class relocates every UTF-8 constant of a class file. changed is false,
// and data is returned untouched, when no constant matched.
func (r *Relocator) Class(data []byte) (out []byte, changed bool, err error) {
	if r.Empty() {
		return data, false, nil
	}
	cf, err := Parse(data)
	if err != nil {
		return nil, false, err
	}
	for i, c := range cf.Pool {
		if c.Tag != TagUtf8 {
			continue
		}
		if t := r.Text(c.Text); t != c.Text {
			cf.Pool[i].Text = t
			changed = true
		}
	}
	if !changed {
		return data, false, nil
	}
	out, err = cf.Bytes()
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// ServiceFile relocates the provider names listed in a service registration.
// Comments and blank lines are kept.
func (r *Relocator) ServiceFile(content []byte) []byte {
	if r.Empty() {
		return content
	}
	var b bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		name, _, _ := strings.Cut(line, "#")
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			line = strings.Replace(line, trimmed, r.Dotted(trimmed), 1)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

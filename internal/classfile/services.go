// SPDX-License-Identifier: MPL-2.0

package classfile

import (
	"bufio"
	"bytes"
	"strings"
)

// ServicesDir is the archive directory holding service registrations. Each
// file is named after a service interface and lists provider classes.
const ServicesDir = "META-INF/services/"

// ServiceProviders returns the provider class names listed in a service
// registration, in file order, without comments or duplicates.
func ServiceProviders(content []byte) []string {
	var out []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		name, _, _ := strings.Cut(sc.Text(), "#")
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// InternalName converts a dotted class name to its internal form.
func InternalName(dotted string) string { return strings.ReplaceAll(dotted, ".", "/") }

// EntryName returns the archive entry of a class given its internal name.
func EntryName(internal string) string { return internal + ".class" }

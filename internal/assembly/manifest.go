// SPDX-License-Identifier: MPL-2.0

package assembly

import (
	"maps"
	"slices"
	"strings"
)

// manifestLineLimit is the maximum line length in bytes, excluding the line break.
const manifestLineLimit = 72

// renderManifest writes the main section of a jar manifest. Manifest-Version
// comes first, Created-By second, then attributes sorted by name.
func renderManifest(attrs map[string]string) []byte {
	var b strings.Builder
	writeManifestLine(&b, "Manifest-Version: 1.0")
	writeManifestLine(&b, "Created-By: mason")
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if k == "Manifest-Version" || k == "Created-By" {
			continue
		}
		writeManifestLine(&b, k+": "+attrs[k])
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// writeManifestLine wraps a header line: continuation lines start with a
// single space.
func writeManifestLine(b *strings.Builder, line string) {
	limit := manifestLineLimit
	for len(line) > limit {
		cut := limit
		// never split a multi-byte character
		for cut > 0 && line[cut]&0xC0 == 0x80 {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = manifestLineLimit - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

// SPDX-License-Identifier: MPL-2.0

package coord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
var ErrInvalidVersion = errors.New("invalid version")

// qualifierRank orders well-known release qualifiers. Unknown qualifiers sort
// after "sp" and compare lexically among themselves.
var qualifierRank = map[string]int{
	"alpha":     1,
	"a":         1,
	"beta":      2,
	"b":         2,
	"milestone": 3,
	"m":         3,
	"rc":        4,
	"cr":        4,
	"snapshot":  5,
	"":          6,
	"ga":        6,
	"final":     6,
	"release":   6,
	"sp":        7,
}

type (
	// Version is a concrete pinned version string such as "2.15.2",
	// "4.1.118.Final" or "9.4.57.v20241219".
	Version string

	// InvalidVersionError is returned when a version string is empty or contains whitespace.
	InvalidVersionError struct {
		Value Version
	}

	versionToken struct {
		num     int
		text    string
		numeric bool
	}
)

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

// Unwrap returns ErrInvalidVersion for errors.Is() compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Validate returns an error if the version is empty or contains whitespace or
// unresolved property placeholders.
func (v Version) Validate() error {
	s := string(v)
	if strings.TrimSpace(s) == "" || strings.ContainsAny(s, " \t\n") || strings.Contains(s, "${") {
		return &InvalidVersionError{Value: v}
	}
	return nil
}

// String returns the version string.
func (v Version) String() string { return string(v) }

// Compare orders two versions, returning -1, 0 or +1.
//
// When both versions are plain semantic versions (no pre-release part) the
// comparison follows semver precedence. Otherwise both strings are tokenized on '.', '-', '_' and
// digit/letter transitions and compared token by token: numbers numerically,
// qualifiers by release maturity (alpha < beta < milestone < rc < snapshot <
// release < sp), remaining text lexically.
func Compare(a, b Version) int {
	if a == b {
		return 0
	}
	if sa, ok := plainSemver(a); ok {
		if sb, ok := plainSemver(b); ok {
			return sa.Compare(sb)
		}
	}
	return compareTokens(tokenize(string(a)), tokenize(string(b)))
}

// Highest returns the highest of the given versions. The result is empty when
// versions is empty.
func Highest(versions ...Version) Version {
	var best Version
	for _, v := range versions {
		if best == "" || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}

// plainSemver parses v as a strict semantic version without a pre-release
// part. Pre-release strings follow maven qualifier ordering instead, where
// "sp" sorts after the release.
func plainSemver(v Version) (*semver.Version, bool) {
	sv, err := semver.StrictNewVersion(strings.TrimPrefix(string(v), "v"))
	if err != nil || sv.Prerelease() != "" {
		return nil, false
	}
	return sv, true
}

func tokenize(s string) []versionToken {
	s = strings.ToLower(strings.TrimPrefix(s, "v"))
	var tokens []versionToken
	var cur strings.Builder
	curDigit := false

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		text := cur.String()
		if curDigit {
			n, err := strconv.Atoi(text)
			if err == nil {
				tokens = append(tokens, versionToken{num: n, numeric: true, text: text})
			} else {
				tokens = append(tokens, versionToken{text: text})
			}
		} else {
			tokens = append(tokens, versionToken{text: text})
		}
		cur.Reset()
	}

	for _, r := range s {
		switch {
		case r == '.' || r == '-' || r == '_' || r == '+':
			flush()
		case unicode.IsDigit(r):
			if cur.Len() > 0 && !curDigit {
				flush()
			}
			curDigit = true
			cur.WriteRune(r)
		default:
			if cur.Len() > 0 && curDigit {
				flush()
			}
			curDigit = false
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func compareTokens(a, b []versionToken) int {
	n := max(len(a), len(b))
	for i := range n {
		ta, tb := padToken(a, i, b), padToken(b, i, a)
		if c := compareToken(ta, tb); c != 0 {
			return c
		}
	}
	return 0
}

// padToken returns the i-th token, or the neutral filler when the version is
// shorter: 0 against numeric tokens, the release qualifier against text.
func padToken(tokens []versionToken, i int, other []versionToken) versionToken {
	if i < len(tokens) {
		return tokens[i]
	}
	if i < len(other) && other[i].numeric {
		return versionToken{numeric: true}
	}
	return versionToken{}
}

func compareToken(a, b versionToken) int {
	switch {
	case a.numeric && b.numeric:
		return cmpInt(a.num, b.num)
	case a.numeric:
		// numbers sort after qualifiers: 1.0.1 > 1.0-rc1
		if b.text == "" {
			return cmpInt(a.num, 0)
		}
		return 1
	case b.numeric:
		if a.text == "" {
			return cmpInt(0, b.num)
		}
		return -1
	}
	ra, okA := qualifierRank[a.text]
	rb, okB := qualifierRank[b.text]
	switch {
	case okA && okB:
		return cmpInt(ra, rb)
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a.text, b.text)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

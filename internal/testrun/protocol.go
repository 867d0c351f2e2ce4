// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	protocolPrefix = "##mason["
	protocolSuffix = "]"
)

// parseLine decodes one protocol line. ok is false for ordinary output.
func parseLine(line string) (res Result, ok bool, err error) {
	body, found := strings.CutPrefix(strings.TrimSpace(line), protocolPrefix)
	if !found {
		return Result{}, false, nil
	}
	body, found = strings.CutSuffix(body, protocolSuffix)
	if !found {
		return Result{}, true, fmt.Errorf("unterminated report line %q", line)
	}
	attrs, err := parseAttrs(body)
	if err != nil {
		return Result{}, true, fmt.Errorf("report line %q: %w", line, err)
	}

	test := attrs["test"]
	if test == "" {
		return Result{}, true, fmt.Errorf("report line %q: missing test", line)
	}
	res.Class, res.Name, _ = strings.Cut(test, "#")
	res.Status = Status(attrs["status"])
	if err := res.Status.Validate(); err != nil {
		return Result{}, true, fmt.Errorf("report line %q: %w", line, err)
	}
	if d := attrs["duration_ms"]; d != "" {
		ms, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return Result{}, true, fmt.Errorf("report line %q: duration_ms: %w", line, err)
		}
		res.Duration = time.Duration(ms) * time.Millisecond
	}
	res.Message = attrs["message"]
	return res, true, nil
}

// parseAttrs splits "k=v k='quoted |' value'" into a map.
func parseAttrs(s string) (map[string]string, error) {
	attrs := make(map[string]string)
	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return attrs, nil
		}
		key, rest, found := strings.Cut(s, "=")
		if !found || key == "" || strings.Contains(key, " ") {
			return nil, fmt.Errorf("malformed attribute %q", s)
		}
		var val string
		if strings.HasPrefix(rest, "'") {
			v, n, err := unquote(rest[1:])
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", key, err)
			}
			val, rest = v, rest[1+n:]
		} else {
			val, rest, _ = strings.Cut(rest, " ")
		}
		attrs[key] = val
		s = rest
	}
}

// unquote reads up to the closing quote and returns the value and the number
// of bytes consumed, including the quote.
func unquote(s string) (string, int, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			return b.String(), i + 1, nil
		case '|':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("dangling escape")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case '\'', '|', ']':
				b.WriteByte(s[i])
			default:
				return "", 0, fmt.Errorf("unknown escape |%c", s[i])
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated quote")
}

// FormatLine renders a protocol line for r, the inverse of parsing.
func FormatLine(r Result) string {
	test := r.Class
	if r.Name != "" {
		test += "#" + r.Name
	}
	line := fmt.Sprintf("%stest=%s status=%s", protocolPrefix, test, r.Status)
	if r.Duration > 0 {
		line += fmt.Sprintf(" duration_ms=%d", r.Duration.Milliseconds())
	}
	if r.Message != "" {
		esc := strings.NewReplacer("|", "||", "'", "|'", "\n", "|n", "]", "|]").Replace(r.Message)
		line += " message='" + esc + "'"
	}
	return line + protocolSuffix
}

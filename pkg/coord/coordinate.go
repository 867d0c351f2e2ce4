// SPDX-License-Identifier: MPL-2.0

package coord

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCoordinate is the sentinel error wrapped by InvalidCoordinateError.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

type (
	// Coordinate is the version-less identity of a dependency.
	Coordinate struct {
		Group      string `json:"group" yaml:"group"`
		Name       string `json:"name" yaml:"name"`
		Classifier string `json:"classifier,omitempty" yaml:"classifier,omitempty"`
	}

	// InvalidCoordinateError is returned when a coordinate string or value is malformed.
	InvalidCoordinateError struct {
		Value  string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidCoordinate for errors.Is() compatibility.
func (e *InvalidCoordinateError) Unwrap() error { return ErrInvalidCoordinate }

// Parse parses "group:name" or "group:name:classifier".
func Parse(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Coordinate{}, &InvalidCoordinateError{Value: s, Reason: "expected group:name[:classifier]"}
	}
	c := Coordinate{Group: parts[0], Name: parts[1]}
	if len(parts) == 3 {
		c.Classifier = parts[2]
	}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Coordinate {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParsePinned parses "group:name:version" or "group:name:version:classifier",
// the notation used by platform (BOM) imports.
func ParsePinned(s string) (Coordinate, Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Coordinate{}, "", &InvalidCoordinateError{Value: s, Reason: "expected group:name:version[:classifier]"}
	}
	c := Coordinate{Group: parts[0], Name: parts[1]}
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	if err := c.Validate(); err != nil {
		return Coordinate{}, "", err
	}
	v := Version(parts[2])
	if err := v.Validate(); err != nil {
		return Coordinate{}, "", err
	}
	return c, v, nil
}

// Validate returns an error if the group or name is empty or contains separators.
func (c Coordinate) Validate() error {
	for _, part := range []string{c.Group, c.Name} {
		if strings.TrimSpace(part) == "" {
			return &InvalidCoordinateError{Value: c.String(), Reason: "group and name must not be empty"}
		}
	}
	for _, part := range []string{c.Group, c.Name, c.Classifier} {
		if strings.ContainsAny(part, ": \t/") {
			return &InvalidCoordinateError{Value: c.String(), Reason: "parts must not contain ':', '/' or whitespace"}
		}
	}
	return nil
}

// Key returns the identity key "group:name[:classifier]".
func (c Coordinate) Key() string {
	if c.Classifier != "" {
		return c.Group + ":" + c.Name + ":" + c.Classifier
	}
	return c.Group + ":" + c.Name
}

// String returns the identity key.
func (c Coordinate) String() string { return c.Key() }

// Less orders coordinates by their identity key.
func (c Coordinate) Less(o Coordinate) bool { return c.Key() < o.Key() }

// Matches reports whether the coordinate matches an exclusion pattern of the
// form "group" or "group:name". An empty name part matches every name in the group.
func (c Coordinate) Matches(pattern string) bool {
	group, name, hasName := strings.Cut(pattern, ":")
	if group != c.Group {
		return false
	}
	return !hasName || name == "" || name == "*" || name == c.Name
}

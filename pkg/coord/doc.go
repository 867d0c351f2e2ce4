// SPDX-License-Identifier: MPL-2.0

// Package coord defines the identity types shared by every build stage:
// dependency coordinates, pinned versions and dependency scopes.
//
// A [Coordinate] identifies a library by group, name and optional classifier.
// Its identity never includes a version; a single resolved graph holds at most
// one pinned [Version] per coordinate.
package coord

// SPDX-License-Identifier: MPL-2.0

// Package assembly packages a module and its runtime closure into one
// deployable archive.
//
// Assembly runs five steps in order: collect the module's compiled entries
// and those of every packaged dependency, relocate namespaces, minimize to
// the entries reachable from the module's own classes, merge service
// registrations, and strip signature files. The archive is written
// deterministically: identical inputs produce identical bytes.
package assembly

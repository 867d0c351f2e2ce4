// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

// Issue identifiers. Values are stable: they appear in CLI output.
const (
	ConfigLoadFailedID ID = iota + 1
	WorkspaceNotFoundID
	ManifestInvalidID
	DependencyCycleID
	VersionConflictID
	UnpinnedCoordinateID
	MissingMetadataID
	CodegenFailedID
	CompileFailedID
	RootUnreachableID
	ServiceConflictID
	TestsFailedID
	TestLaunchFailedID
	LockMismatchID
)

type (
	// ID identifies a catalog entry.
	ID int

	// MarkdownMsg is the Markdown body of an issue.
	MarkdownMsg string

	// Issue is a catalog entry explaining a failure class and how to fix it.
	Issue struct {
		id    ID
		mdMsg MarkdownMsg
	}
)

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedID,
		mdMsg: `
# Configuration could not be loaded

mason merges defaults, the first ` + "`mason.cue`" + ` it finds and ` + "`MASON_*`" + `
environment variables. One of them holds a value the schema rejects.

## Things you can try
- Print the effective configuration:
~~~
$ mason config show
~~~
- Write a fresh file with every key and its default:
~~~
$ mason config init
~~~
- Unset stray environment overrides such as ` + "`MASON_WORKERS`" + `.`,
	}

	workspaceNotFoundIssue = &Issue{
		id: WorkspaceNotFoundID,
		mdMsg: `
# No workspace found

mason looks for ` + "`workspace.cue`" + ` in the directory given by ` + "`--workspace`" + `
(default: the current directory).

## Things you can try
- Run mason from the repository root.
- Point at the workspace explicitly:
~~~
$ mason --workspace ./fe build
~~~`,
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidID,
		mdMsg: `
# A module manifest is invalid

A ` + "`module.cue`" + ` or the version catalog failed validation. The error above
names the file and the field path.

## Things you can try
- List what mason sees in the workspace:
~~~
$ mason modules
~~~
- Check dependency coordinates use ` + "`group:name`" + ` and scopes are one of
  compile, compile-only, runtime, test or provided.`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleID,
		mdMsg: `
# Internal modules depend on each other in a cycle

Modules are built in dependency order, which is impossible with a cycle. No
stage ran.

## Things you can try
- Follow the path printed above and remove one ` + "`internal`" + ` edge.
- Move the shared classes into a new module both sides depend on.`,
	}

	versionConflictIssue = &Issue{
		id: VersionConflictID,
		mdMsg: `
# Conflicting version overrides

Two explicit overrides of one coordinate disagree and the version catalog
does not pin it.

## Things you can try
- Pin the coordinate in the version catalog so the catalog arbitrates.
- Remove one of the module-local overrides.`,
	}

	unpinnedCoordinateIssue = &Issue{
		id: UnpinnedCoordinateID,
		mdMsg: `
# A dependency has no version

A direct dependency has no module override, no catalog entry and no managed
version from an imported platform.

## Things you can try
- Add the coordinate to the version catalog.
- Import a platform that manages it.`,
	}

	missingMetadataIssue = &Issue{
		id: MissingMetadataID,
		mdMsg: `
# Dependency metadata is unavailable

The local repository has no POM for a coordinate the resolver needs.

## Things you can try
- Check ` + "`repository.path`" + ` in the configuration.
- Populate the repository with your usual dependency fetch step, then retry.`,
	}

	codegenFailedIssue = &Issue{
		id: CodegenFailedID,
		mdMsg: `
# Code generation failed

A grammar or schema input failed validation, or the generator exited with
an error. Generated sources from earlier runs were left untouched.

## Things you can try
- Read the generator output above for the failing line.
- Check the stage's command template and flags in ` + "`module.cue`" + `.
- Rerun just this step:
~~~
$ mason generate
~~~`,
	}

	compileFailedIssue = &Issue{
		id: CompileFailedID,
		mdMsg: `
# Compilation failed

The compiler rejected the module's sources, or a classpath entry was missing.
The argument file under ` + "`build/tmp`" + ` holds the exact invocation.

## Things you can try
- Read the compiler diagnostics above.
- Check that internal dependencies compiled and that the repository holds
  every resolved archive.`,
	}

	rootUnreachableIssue = &Issue{
		id: RootUnreachableID,
		mdMsg: `
# An assembly root is unreachable

A keep-list entry, the Main-Class or a listed compiled entry does not exist in
the collected closure, so minimization cannot keep it.

## Things you can try
- Check the spelling of ` + "`assembly.keep`" + ` entries. Literal names must
  match a class; use a glob such as ` + "`com.example.**`" + ` for optional ones.
- Remember relocations: keep entries name classes before relocation.`,
	}

	serviceConflictIssue = &Issue{
		id: ServiceConflictID,
		mdMsg: `
# Conflicting service providers

Two inputs ship a service provider class with the same name and different
bytes. Merging them would silently pick one implementation.

## Things you can try
- Exclude one of the archives from the module.
- Relocate one copy so both can coexist.`,
	}

	testsFailedIssue = &Issue{
		id: TestsFailedID,
		mdMsg: `
# Tests failed

At least one test reported a failure, or a test process exited non-zero
without reporting one.

## Things you can try
- Rerun one class:
~~~
$ mason test --filter 'com.starrocks.sql.plan.*'
~~~
- Use ` + "`--format yaml`" + ` to see every result with its message.`,
	}

	testLaunchFailedIssue = &Issue{
		id: TestLaunchFailedID,
		mdMsg: `
# Test processes could not run

The JVM could not be started or it wrote a malformed result line.

## Things you can try
- Check ` + "`test.java_command`" + ` and that ` + "`java`" + ` is on PATH.
- Check that ` + "`test.runner_main`" + ` is on the test classpath.`,
	}

	lockMismatchIssue = &Issue{
		id: LockMismatchID,
		mdMsg: `
# The lock does not cover the workspace

A locked build met a module that ` + "`mason.lock.cue`" + ` does not list.

## Things you can try
- Refresh the lock:
~~~
$ mason resolve
~~~
- Compare the lock with a fresh resolution:
~~~
$ mason diff mason.lock.cue new.lock.cue
~~~`,
	}

	issues = map[ID]*Issue{
		configLoadFailedIssue.ID():   configLoadFailedIssue,
		workspaceNotFoundIssue.ID():  workspaceNotFoundIssue,
		manifestInvalidIssue.ID():    manifestInvalidIssue,
		dependencyCycleIssue.ID():    dependencyCycleIssue,
		versionConflictIssue.ID():    versionConflictIssue,
		unpinnedCoordinateIssue.ID(): unpinnedCoordinateIssue,
		missingMetadataIssue.ID():    missingMetadataIssue,
		codegenFailedIssue.ID():      codegenFailedIssue,
		compileFailedIssue.ID():      compileFailedIssue,
		rootUnreachableIssue.ID():    rootUnreachableIssue,
		serviceConflictIssue.ID():    serviceConflictIssue,
		testsFailedIssue.ID():        testsFailedIssue,
		testLaunchFailedIssue.ID():   testLaunchFailedIssue,
		lockMismatchIssue.ID():       lockMismatchIssue,
	}
)

// String renders the id as shown to users, e.g. "MASON-009".
func (id ID) String() string { return fmt.Sprintf("MASON-%03d", int(id)) }

// ID returns the issue's identifier.
func (i *Issue) ID() ID { return i.id }

// MarkdownMsg returns the Markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// Render renders the issue for a terminal with the given glamour style.
func (i *Issue) Render(stylePath string) (string, error) {
	return render(string(i.mdMsg)+"\n\n*"+i.id.String()+"*", stylePath)
}

// Values returns every issue ordered by id.
func Values() []*Issue {
	out := maps.Values(issues)
	sort.Slice(out, func(a, b int) bool { return out[a].id < out[b].id })
	return out
}

// Get returns the issue with the given id, or nil.
func Get(id ID) *Issue {
	return issues[id]
}

// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	FormulaNotFoundId Id = iota + 1
	FormulaParseErrorId
	DependencyUnresolvedId
	DependencyCycleId
	FetchFailedId
	ChecksumMismatchId
	InstallFailedId
	TestFailedId
	RuntimeNotAvailableId
	ConfigLoadFailedId
	NotInstalledId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	formulaNotFoundIssue = &Issue{
		id: FormulaNotFoundId,
		mdMsg: `
# Formula not found!

keg looked for ` + "`<name>.cue`" + ` in every formula directory and found nothing.

## Things you can try:
- List the formula directories keg searches:
~~~
$ keg config show
~~~
- Add a directory with ` + "`KEG_FORMULA_PATH`" + ` or ` + "`formula_paths`" + ` in your config file
- Pass the formula file directly:
~~~
$ keg install ./clojure.cue
~~~`,
	}

	formulaParseErrorIssue = &Issue{
		id: FormulaParseErrorId,
		mdMsg: `
# Invalid formula!

The formula file could not be parsed. The error names the offending field.

## Required fields
- ` + "`name`" + `: lowercase package name
- ` + "`url`" + `: http(s) or file URL, may use ` + "`${version}`" + `
- ` + "`sha256`" + `: 64 hex characters

## Example
~~~cue
name:    "clojure"
version: "1.10.1.492"
url:     "https://download.clojure.org/install/clojure-tools-${version}.tar.gz"
sha256:  "..."
depends_on: [{name: "rlwrap"}, {name: "coreutils", kind: "build"}]
install: {cmd: "./install.sh", args: ["-p", "${prefix}", "--local"]}
~~~`,
	}

	dependencyUnresolvedIssue = &Issue{
		id: DependencyUnresolvedId,
		mdMsg: `
# Dependency not found!

A declared dependency is not installed, not on the tool path and has no formula.

## Things you can try:
- Install the dependency with your system package manager
- Point ` + "`KEG_TOOL_PATH`" + ` at the directory holding the tool
- Add a formula for it to one of your formula directories`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle!

The formulas depend on each other in a loop, so no install order exists.

## Things you can try:
- Inspect the graph:
~~~
$ keg deps <formula>
~~~
- Remove one of the ` + "`depends_on`" + ` entries in the cycle`,
	}

	fetchFailedIssue = &Issue{
		id: FetchFailedId,
		mdMsg: `
# Download failed!

The source artifact could not be downloaded, even after retrying.

## Things you can try:
- Check your network connection and proxy settings
- Check that the formula ` + "`url`" + ` is still published
- Raise ` + "`fetch.attempts`" + ` or ` + "`fetch.timeout`" + ` in your config file`,
	}

	checksumMismatchIssue = &Issue{
		id: ChecksumMismatchId,
		mdMsg: `
# Checksum mismatch!

The downloaded artifact does not match the formula's ` + "`sha256`" + `.
Nothing was installed.

This means the file was corrupted in transit, or it changed upstream,
or it was tampered with. Do not simply update the checksum before you
know which.`,
	}

	installFailedIssue = &Issue{
		id: InstallFailedId,
		mdMsg: `
# Install directive failed!

The install command exited with a non-zero status. Its output is shown above.
The temporary work directory was removed and nothing was installed.

## Things you can try:
- Re-run with ` + "`--verbose`" + ` to stream the directive output
- Check that the build dependencies are on the tool path`,
	}

	testFailedIssue = &Issue{
		id: TestFailedId,
		mdMsg: `
# Test failed!

At least one test assertion failed. The package remains installed.

## Things you can try:
- Re-run only the test:
~~~
$ keg test <formula>
~~~
- Check that the runtime dependencies are available`,
	}

	runtimeNotAvailableIssue = &Issue{
		id: RuntimeNotAvailableId,
		mdMsg: `
# Runtime not available!

The requested runtime is not available on this system.

## Available runtimes
- ` + "`native`" + `: runs the directive directly
- ` + "`virtual`" + `: runs the directive through the embedded shell interpreter`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Your configuration file could not be loaded.

## Things you can try:
- Check the CUE syntax of the file
- Show the effective configuration:
~~~
$ keg config show
~~~`,
	}

	notInstalledIssue = &Issue{
		id: NotInstalledId,
		mdMsg: `
# Package not installed!

## Things you can try:
- List installed packages:
~~~
$ keg list
~~~
- Install it first:
~~~
$ keg install <formula>
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

keg could not write to its install prefix, cache or state directory.

## Things you can try:
- Check the ownership of the directories shown by ` + "`keg config show`" + `
- Use a prefix you own with ` + "`--prefix`" + ` or ` + "`KEG_PREFIX`",
	}

	issues = map[Id]*Issue{
		formulaNotFoundIssue.Id():      formulaNotFoundIssue,
		formulaParseErrorIssue.Id():    formulaParseErrorIssue,
		dependencyUnresolvedIssue.Id(): dependencyUnresolvedIssue,
		dependencyCycleIssue.Id():      dependencyCycleIssue,
		fetchFailedIssue.Id():          fetchFailedIssue,
		checksumMismatchIssue.Id():     checksumMismatchIssue,
		installFailedIssue.Id():        installFailedIssue,
		testFailedIssue.Id():           testFailedIssue,
		runtimeNotAvailableIssue.Id():  runtimeNotAvailableIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		notInstalledIssue.Id():         notInstalledIssue,
		permissionDeniedIssue.Id():     permissionDeniedIssue,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

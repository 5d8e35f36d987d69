// SPDX-License-Identifier: MPL-2.0

// Package runtime executes formula directives.
//
// A directive is an argv, never script text. Two runtimes run it:
//
//   - native: os/exec, with the program resolved against the directive's
//     own PATH rather than the host's
//   - virtual: the embedded mvdan/sh interpreter, whose exec handler only
//     starts programs found inside the work dir, the install prefix or the
//     directive PATH
//
// Both capture stdout and stderr into the Result and can mirror them live.
package runtime

// Package device wraps the libimobiledevice command-line utilities the
// launcher depends on.
//
// Every operation shells out through a Runner, so tests can substitute
// canned tool output. Failures are reported as one of the package's
// sentinel errors, usually wrapped in a *ToolError carrying the command
// and its output.
package device

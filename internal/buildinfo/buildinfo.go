// Package buildinfo carries version metadata set with -ldflags -X.
package buildinfo

import "runtime"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "service": "tourplan",
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
        "go":      runtime.Version(),
    }
}

// String is the one-line form printed by tourctl version.
func String() string {
    s := "tourplan " + Version
    if Commit != "" {
        s += " (" + Commit + ")"
    }
    return s + " " + runtime.Version()
}

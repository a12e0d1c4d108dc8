// Package buildinfo carries version data stamped with -ldflags -X.
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info reports the stamped values. Commit falls back to the VCS revision the
// toolchain embeds when no -X value was given.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out["go"] = bi.GoVersion
		if out["commit"] == "" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					out["commit"] = s.Value
				}
			}
		}
	}
	return out
}

// String is a one-line version banner for CLI output.
func String() string {
	i := Info()
	s := "vrptabu " + i["version"]
	if c := i["commit"]; c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		s += " (" + c + ")"
	}
	return s
}

package context

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// VersionInfo describes the build of the running binary.
type VersionInfo struct {
	Semantic string
	Commit   string
	Dirty    bool
	Go       string
}

// String returns the version in a form suitable for --version output.
func (v *VersionInfo) String() string {
	var b strings.Builder
	b.WriteString(v.Semantic)
	if v.Commit != "" {
		commit := v.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Fprintf(&b, " (%s", commit)
		if v.Dirty {
			b.WriteString("-dirty")
		}
		b.WriteByte(')')
	}
	if v.Go != "" {
		fmt.Fprintf(&b, ", %s", v.Go)
	}

	return b.String()
}

// GetVersion reads the version from the build information embedded in the
// binary.
func GetVersion() (*VersionInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("failed reading build information")
	}

	v := &VersionInfo{Semantic: bi.Main.Version, Go: bi.GoVersion}
	if v.Semantic == "" {
		v.Semantic = "(devel)"
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			v.Commit = s.Value
		case "vcs.modified":
			v.Dirty = s.Value == "true"
		}
	}

	return v, nil
}

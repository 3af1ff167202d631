package buildinfo

import "runtime/debug"

// Set at build time via -ldflags "-X spindle/internal/buildinfo.Version=...".
// Commit and Date fall back to the VCS stamp embedded by the toolchain.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the resolved build description.
type Info struct {
	Version  string
	Commit   string
	Date     string
	Modified bool
}

// Get resolves the build description.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return info.withSettings(bi.Settings)
}

func (i Info) withSettings(settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.Date == "" {
				i.Date = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	return i
}

// Short is the identifier used in log lines and report headers: the
// release version, else an abbreviated commit.
func (i Info) Short() string {
	switch {
	case i.Version != "" && i.Version != "dev":
		return i.Version
	case i.Commit != "":
		c := i.Commit
		if len(c) > 12 {
			c = c[:12]
		}
		if i.Modified {
			c += "+dirty"
		}
		return c
	}
	return "dev"
}

// String is the full description printed by `spindle version`.
func (i Info) String() string {
	commit, date := i.Commit, i.Date
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return "spindle " + i.Version + " (" + commit + ", " + date + ")"
}

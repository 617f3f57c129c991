// Package version reports the build version of the gocollab binaries.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/gocollab/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/gocollab/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/gocollab/pkg/version.date=2026-01-01"
//
// Without ldflags the VCS stamp recorded by the Go toolchain is used.
package version

import (
	"runtime/debug"
	"sync"
)

var (
	tag    = ""
	commit = ""
	date   = ""
)

// Info describes one build.
type Info struct {
	Tag      string
	Commit   string
	Date     string
	Modified bool // built from a dirty tree
}

var (
	once sync.Once
	info Info
)

// Get returns the build info, falling back to the embedded VCS stamp for
// fields not set by ldflags.
func Get() Info {
	once.Do(func() {
		info = Info{Tag: tag, Commit: commit, Date: date}
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" && len(s.Value) >= 7 {
					info.Commit = s.Value[:7]
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	})
	return info
}

// String returns the tag, the short commit, or "dev".
func String() string {
	i := Get()
	switch {
	case i.Tag != "":
		return i.Tag
	case i.Commit != "" && i.Modified:
		return i.Commit + "-dirty"
	case i.Commit != "":
		return i.Commit
	default:
		return "dev"
	}
}

// Full returns String plus the commit and build date when known.
func Full() string {
	i := Get()
	s := String()
	if i.Tag != "" && i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.Date != "" {
		s += " built " + i.Date
	}
	return s
}

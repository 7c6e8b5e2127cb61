package handler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/philipp01105/logship/core"
)

// Filter decides whether a (level, target) pair is enabled.
//
// A filter is built from a comma-separated list of directives:
//
//	info                  default level for every target
//	auth=debug            records from "auth" and its children at Debug or above
//	db::pool=trace        nested targets use "::", "." or "/" as separators
//	noisy=off             nothing from "noisy"
//	metrics               a bare target enables all of its levels
//
// The directive with the longest matching target wins. A target matches a
// directive when it equals the directive's target or continues it past a
// separator, so "db" matches "db::pool" but not "dbx". Without a bare
// level directive the default is Info.
//
// A nil *Filter enables Info and above for every target.
type Filter struct {
	def        core.Level
	defOff     bool
	directives []directive
}

type directive struct {
	target string
	level  core.Level
	off    bool
}

// NewLevelFilter returns a filter that enables level and above for every target.
func NewLevelFilter(level core.Level) *Filter {
	return &Filter{def: level}
}

// ParseFilter parses a directive list. Unknown level names are an error.
func ParseFilter(directives string) (*Filter, error) {
	f := &Filter{def: core.InfoLevel}
	for _, part := range strings.Split(directives, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, levelName, hasLevel := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		levelName = strings.TrimSpace(levelName)

		if !hasLevel {
			// Either a bare level ("warn") or a bare target ("metrics").
			if strings.EqualFold(name, "off") {
				f.defOff = true
				continue
			}
			if level, ok := core.ParseLevel(name); ok {
				f.def = level
				f.defOff = false
				continue
			}
			f.directives = append(f.directives, directive{target: name, level: core.TraceLevel})
			continue
		}

		if name == "" {
			return nil, fmt.Errorf("filter directive %q: empty target", part)
		}
		if strings.EqualFold(levelName, "off") {
			f.directives = append(f.directives, directive{target: name, off: true})
			continue
		}
		level, ok := core.ParseLevel(levelName)
		if !ok {
			return nil, fmt.Errorf("filter directive %q: unknown level %q", part, levelName)
		}
		f.directives = append(f.directives, directive{target: name, level: level})
	}

	// Longest target first so the first match is the most specific one.
	sort.SliceStable(f.directives, func(i, j int) bool {
		return len(f.directives[i].target) > len(f.directives[j].target)
	})
	return f, nil
}

// MustParseFilter is like ParseFilter but panics on error.
func MustParseFilter(directives string) *Filter {
	f, err := ParseFilter(directives)
	if err != nil {
		panic(err)
	}
	return f
}

// Enabled reports whether a record at level for target passes the filter.
func (f *Filter) Enabled(level core.Level, target string) bool {
	if f == nil {
		return level >= core.InfoLevel
	}
	for _, d := range f.directives {
		if matchTarget(d.target, target) {
			return !d.off && level >= d.level
		}
	}
	return !f.defOff && level >= f.def
}

// matchTarget reports whether target is prefix itself or nested below it.
func matchTarget(prefix, target string) bool {
	if !strings.HasPrefix(target, prefix) {
		return false
	}
	rest := target[len(prefix):]
	return rest == "" ||
		strings.HasPrefix(rest, "::") ||
		rest[0] == '.' ||
		rest[0] == '/'
}

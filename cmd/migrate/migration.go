package main

import (
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// migration is one numbered schema change and its optional revert.
type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// loadMigrations pairs NNN_name.up.sql with NNN_name.down.sql and returns the
// migrations ordered by version. Every version needs an up file; other files
// are ignored.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var (
			base string
			up   bool
		)
		switch name := e.Name(); {
		case strings.HasSuffix(name, ".up.sql"):
			base, up = strings.TrimSuffix(name, ".up.sql"), true
		case strings.HasSuffix(name, ".down.sql"):
			base = strings.TrimSuffix(name, ".down.sql")
		default:
			continue
		}

		version, name, err := parseName(base)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		sql, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("version %d has two names: %q and %q", version, m.Name, name)
		}
		if up {
			m.Up = string(sql)
		} else {
			m.Down = string(sql)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %03d_%s has no up file", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseName splits "001_init" into (1, "init").
func parseName(base string) (int64, string, error) {
	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("expected NNN_name, got %q", base)
	}
	version, err := strconv.ParseInt(num, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("bad version %q", num)
	}
	return version, name, nil
}

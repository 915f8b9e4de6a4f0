package main

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_indexes.up.sql":    {Data: []byte("CREATE INDEX a;")},
		"001_init.up.sql":       {Data: []byte("CREATE TABLE t;")},
		"001_init.down.sql":     {Data: []byte("DROP TABLE t;")},
		"README.md":             {Data: []byte("notes")},
		"010_balances.up.sql":   {Data: []byte("ALTER TABLE t;")},
		"010_balances.down.sql": {Data: []byte("ALTER TABLE t DROP;")},
	}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(got))
	}
	wantVersions := []int64{1, 2, 10}
	for i, m := range got {
		if m.Version != wantVersions[i] {
			t.Errorf("migration %d: version %d, want %d", i, m.Version, wantVersions[i])
		}
	}
	if got[0].Name != "init" || got[0].Up != "CREATE TABLE t;" || got[0].Down != "DROP TABLE t;" {
		t.Errorf("unexpected first migration %+v", got[0])
	}
	if got[1].Down != "" {
		t.Errorf("002 should have no down file, got %q", got[1].Down)
	}
}

func TestLoadMigrations_errors(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"down without up": {"003_x.down.sql": {Data: []byte("x")}},
		"bad version":     {"abc_x.up.sql": {Data: []byte("x")}},
		"missing name":    {"004.up.sql": {Data: []byte("x")}},
		"name mismatch": {
			"005_a.up.sql":   {Data: []byte("x")},
			"005_b.down.sql": {Data: []byte("x")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadMigrations(fsys); err == nil {
				t.Error("expected error")
			}
		})
	}
}

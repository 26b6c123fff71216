package ui

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestTruncateMiddle(t *testing.T) {
	if got := truncateMiddle("  ", 10); got != "" {
		t.Fatalf("truncateMiddle blank = %q, want empty", got)
	}
	if got := truncateMiddle("abcd", 2); got != "ab" {
		t.Fatalf("truncateMiddle limit<=3 = %q, want ab", got)
	}
	if got := truncateMiddle("short.png", 20); got != "short.png" {
		t.Fatalf("truncateMiddle fits = %q", got)
	}
	got := truncateMiddle("scan_of_invoice_page_001.png", 16)
	if got != "scan_…ge_001.png" {
		t.Fatalf("truncateMiddle keeps extension = %q", got)
	}
	if n := len([]rune(got)); n != 16 {
		t.Fatalf("truncateMiddle length = %d, want 16", n)
	}
}

func TestHumanSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tc := range cases {
		if got := humanSize(tc.in); got != tc.want {
			t.Errorf("humanSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitPaths(t *testing.T) {
	got := splitPaths(" a.png, \"b c.jpg\" ,,\n'd.heic'")
	want := []string{"a.png", "b c.jpg", "d.heic"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitPaths = %q, want %q", got, want)
	}
	if got := splitPaths(" , "); len(got) != 0 {
		t.Fatalf("splitPaths blank = %q", got)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := expandHome("~/scans/a.png"); got != filepath.Join(home, "scans", "a.png") {
		t.Fatalf("expandHome = %q", got)
	}
	if got := expandHome("/tmp/a.png"); got != "/tmp/a.png" {
		t.Fatalf("expandHome absolute = %q", got)
	}
	if got := expandHome("~user/a.png"); got != "~user/a.png" {
		t.Fatalf("expandHome other user = %q", got)
	}
}

func TestThemeCycle(t *testing.T) {
	if got := GetTheme("missing").Name; got != "Dracula" {
		t.Fatalf("GetTheme fallback = %q", got)
	}
	names := ThemeNames()
	for i, name := range names {
		if got := GetTheme(name).Name; got != name {
			t.Fatalf("GetTheme(%q).Name = %q", name, got)
		}
		if next := NextTheme(name); next != names[(i+1)%len(names)] {
			t.Fatalf("NextTheme(%q) = %q", name, next)
		}
	}
	if got := NextTheme("missing"); got != names[0] {
		t.Fatalf("NextTheme unknown = %q", got)
	}
}

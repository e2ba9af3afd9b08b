// File path: internal/repo/types_test.go
package repo

import "testing"

func TestParseURL(t *testing.T) {
	cases := []struct {
		input string
		owner string
		name  string
	}{
		{"https://github.com/golang/go", "golang", "go"},
		{"https://github.com/golang/go.git", "golang", "go"},
		{"https://github.com/golang/go/", "golang", "go"},
		{"http://github.com/octo-org/hello-world", "octo-org", "hello-world"},
		{"github.com/golang/go", "golang", "go"},
		{"golang/go", "golang", "go"},
		{"  golang/go  ", "golang", "go"},
	}
	for _, tc := range cases {
		owner, name, err := ParseURL(tc.input)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.input, err)
		}
		if owner != tc.owner || name != tc.name {
			t.Fatalf("parse %q: got %s/%s, want %s/%s", tc.input, owner, name, tc.owner, tc.name)
		}
	}
}

func TestParseURLRejectsInvalid(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"not a url",
		"https://gitlab.com/golang/go",
		"https://github.com/onlyowner",
		"a/b/c",
	}
	for _, input := range invalid {
		if _, _, err := ParseURL(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"golang/go", "golang-go"},
		{"Octo-Org/Hello.World", "octo-org-hello-world"},
		{"  owner/repo  ", "owner-repo"},
		{"///", "repository"},
		{"", "repository"},
	}
	for _, tc := range cases {
		if got := NormalizeID(tc.input); got != tc.want {
			t.Fatalf("normalize %q: got %q, want %q", tc.input, got, tc.want)
		}
	}
}

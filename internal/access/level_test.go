package access

import "testing"

func TestLevelTotalOrder(t *testing.T) {
	order := []Level{LevelNone, LevelRead, LevelWrite, LevelAdmin}
	for i, lower := range order {
		for j, higher := range order {
			got := higher.AtLeast(lower)
			want := j >= i
			if got != want {
				t.Fatalf("%s.AtLeast(%s) = %v, expected %v", higher, lower, got, want)
			}
		}
	}
}

func TestMaxLevel(t *testing.T) {
	if got := MaxLevel(LevelRead, LevelWrite); got != LevelWrite {
		t.Fatalf("expected write, got %s", got)
	}
	if got := MaxLevel(LevelAdmin, LevelNone); got != LevelAdmin {
		t.Fatalf("expected admin, got %s", got)
	}
	if got := MaxLevel(LevelNone, LevelNone); got != LevelNone {
		t.Fatalf("expected none, got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"read", LevelRead},
		{"write", LevelWrite},
		{"admin", LevelAdmin},
		{"none", LevelNone},
		{"", LevelNone},
		{"owner", LevelNone},
		{"ADMIN", LevelNone},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %s, expected %s", tc.in, got, tc.want)
		}
	}
}

func TestValidResourceType(t *testing.T) {
	for _, valid := range []string{"document", "annotation", "comment", "chat", "group"} {
		if !ValidResourceType(valid) {
			t.Fatalf("expected %q to be a valid resource type", valid)
		}
	}
	for _, invalid := range []string{"", "folder", "Document"} {
		if ValidResourceType(invalid) {
			t.Fatalf("expected %q to be rejected", invalid)
		}
	}
}

package nav

import "testing"

func TestMemoryRecordsHistory(t *testing.T) {
	m := NewMemory("")
	if got := m.Location(); got != "/" {
		t.Fatalf("expected default location /, got %q", got)
	}

	var notified []string
	m.OnChange(func(p string) { notified = append(notified, p) })

	m.Navigate("/admin")
	m.Navigate("/login")

	if got := m.Location(); got != "/login" {
		t.Fatalf("expected /login, got %q", got)
	}
	if got := m.Last(); got != "/login" {
		t.Fatalf("expected last /login, got %q", got)
	}
	h := m.History()
	if len(h) != 2 || h[0] != "/admin" || h[1] != "/login" {
		t.Fatalf("unexpected history %v", h)
	}
	if len(notified) != 2 {
		t.Fatalf("expected 2 change notifications, got %d", len(notified))
	}
}

func TestIsWithin(t *testing.T) {
	cases := []struct {
		loc  string
		want bool
	}{
		{"/login", true},
		{"/login/", true},
		{"/login/reset", true},
		{"/login?next=/admin", true},
		{"/loginx", false},
		{"/admin", false},
		{"/", false},
	}
	for _, tc := range cases {
		if got := IsWithin(tc.loc, "/login"); got != tc.want {
			t.Fatalf("IsWithin(%q) = %v, want %v", tc.loc, got, tc.want)
		}
	}
	if IsWithin("/anything", "") {
		t.Fatal("empty root must never match")
	}
}

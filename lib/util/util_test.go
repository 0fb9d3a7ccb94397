package util

import (
	"testing"
)

func TestIn(t *testing.T) {
	ss := []string{"active", "terminated", "completed"}
	if !In(ss, "completed") || In(ss, "pending") || In(nil, "") {
		t.Errorf("In does not match")
	}
}

func TestTruncate(t *testing.T) {
	for _, tc := range []struct {
		s    string
		n    int
		want string
	}{
		{"Rent 1234", 28, "Rent 1234"},
		{"Rent 0123456789abcdef0123456789", 28, "Rent 0123456789abcdef0123456"},
		{"añb", 2, "a"},
		{"añb", 3, "añ"},
		{"", 0, ""},
	} {
		if got := Truncate(tc.s, tc.n); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q expected %q", tc.s, tc.n, got, tc.want)
		}
	}
}

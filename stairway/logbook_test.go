package stairway

import (
	"testing"
	"time"
)

func TestLogBookFormat(t *testing.T) {
	book := newLogBook(0)
	book.now = func() time.Time { return time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC) }

	entry := book.add("Ready to operate")

	if entry != "[2024-03-09 07:05:01]: Ready to operate" {
		t.Errorf("unexpected entry %q", entry)
	}
	if book.len() != 1 {
		t.Errorf("len() = %d, expected 1", book.len())
	}
}

func TestLogBookOrderAndLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		adds     []string
		expected []string
	}{
		{"Unlimited", 0, []string{"a", "b", "c"}, []string{"c", "b", "a"}},
		{"Under limit", 5, []string{"a", "b"}, []string{"b", "a"}},
		{"Over limit", 2, []string{"a", "b", "c", "d"}, []string{"d", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := newLogBook(tt.limit)
			book.now = func() time.Time { return time.Time{} }
			for _, msg := range tt.adds {
				book.add(msg)
			}

			got := book.list()
			if len(got) != len(tt.expected) {
				t.Fatalf("got %d entries, expected %d", len(got), len(tt.expected))
			}
			for i, msg := range tt.expected {
				want := "[0001-01-01 00:00:00]: " + msg
				if got[i] != want {
					t.Errorf("entry %d = %q, expected %q", i, got[i], want)
				}
			}
		})
	}
}

func TestLogBookListIsCopy(t *testing.T) {
	book := newLogBook(0)
	book.add("first")

	list := book.list()
	list[0] = "mutated"

	if book.list()[0] == "mutated" {
		t.Error("list() should return a copy")
	}
}

package lineio

import (
	"strings"
	"testing"
)

func collect(t *testing.T, input string) []string {
	t.Helper()
	lines, errc := Lines(strings.NewReader(input))

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	select {
	case err := <-errc:
		t.Fatalf("unexpected read error: %v", err)
	default:
	}
	return got
}

func TestLines(t *testing.T) {
	got := collect(t, "one\ntwo\n\nthree\n")
	want := []string{"one", "two", "", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLinesPartialLastLine(t *testing.T) {
	got := collect(t, "complete\npartial")
	if len(got) != 2 || got[1] != "partial" {
		t.Errorf("got %v, want trailing partial line", got)
	}
}

func TestLinesEmptyInput(t *testing.T) {
	if got := collect(t, ""); len(got) != 0 {
		t.Errorf("got %v lines from empty input", got)
	}
}

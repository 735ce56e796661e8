//go:build linux

package sysload

import "testing"

func TestFromFixed(t *testing.T) {
	cases := []struct {
		in   uint64
		want float64
	}{
		{0, 0},
		{1 << 16, 1.0},
		{3 << 15, 1.5},
		{1 << 14, 0.25},
	}
	for _, c := range cases {
		if got := fromFixed(c.in); got != c.want {
			t.Errorf("fromFixed(%d) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestLoad1(t *testing.T) {
	load, err := Load1()
	if err != nil {
		t.Fatalf("Load1: %v", err)
	}
	if load < 0 {
		t.Errorf("load average %v is negative", load)
	}
}

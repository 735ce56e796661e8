package units

import "testing"

func TestParsePeriod(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"0", 0, true},
		{"30", 30, true},
		{"5m", 300, true},
		{"2h", 7200, true},
		{"1d", 86400, true},
		{"1w", 604800, true},
		{"10w", 6048000, true},
		{"", 0, false},
		{"m", 0, false},
		{"1x", 0, false},
		{"-3", 0, false},
		{"3.5h", 0, false},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParsePeriod(c.in)
			if c.ok != (err == nil) {
				t.Fatalf("ParsePeriod(%q) error = %v, want ok=%v", c.in, err, c.ok)
			}
			if c.ok && got != c.want {
				t.Errorf("ParsePeriod(%q) = %d, want %d", c.in, got, c.want)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"4096", 4096, true},
		{"150k", 150 * 1024, true},
		{"2m", 2 * 1024 * 1024, true},
		{"1g", 1024 * 1024 * 1024, true},
		{"", 0, false},
		{"k", 0, false},
		{"12q", 0, false},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseBytes(c.in)
			if c.ok != (err == nil) {
				t.Fatalf("ParseBytes(%q) error = %v, want ok=%v", c.in, err, c.ok)
			}
			if c.ok && got != c.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", c.in, got, c.want)
			}
		})
	}
}

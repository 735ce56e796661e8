package linelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

var testTime = time.Date(2024, 3, 7, 16, 20, 30, 0, time.UTC)

func TestFormat(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		line string
		want string
	}{
		{"plain", Options{}, "hello", "hello\n"},
		{"timestamp", Options{Timestamp: true}, "hello",
			"2024-03-07/16:20:30 hello\n"},
		{"prefix", Options{Prefix: "web"}, "hello", "web hello\n"},
		{"timestamp and prefix", Options{Timestamp: true, Prefix: "web"}, "hello",
			"2024-03-07/16:20:30 web hello\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := NewWriter(zap.NewNop(), c.opts, "")
			if got := w.format(c.line, testTime); got != c.want {
				t.Errorf("format(%q) = %q, want %q", c.line, got, c.want)
			}
		})
	}
}

func TestWriteLineAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w := NewWriter(zap.NewNop(), Options{Prefix: "p"}, path)

	if err := w.WriteLine("one", testTime); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := w.WriteLine("two", testTime); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "p one\np two\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestWriteLineOpensLazily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lazy.log")
	w := NewWriter(zap.NewNop(), Options{SkipEmpty: true}, path)

	// A skipped line must not create the file.
	if err := w.WriteLine("", testTime); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("log file created before the first written line")
	}

	if err := w.WriteLine("content", testTime); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file missing after first line: %v", err)
	}
}

func TestCloseThenReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.log")
	w := NewWriter(zap.NewNop(), Options{}, path)

	if err := w.WriteLine("before", testTime); err != nil {
		t.Fatal(err)
	}
	w.Close() // what SIGHUP does

	// Simulate external rotation.
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}

	if err := w.WriteLine("after", testTime); err != nil {
		t.Fatal(err)
	}
	w.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "after\n" {
		t.Errorf("new file content = %q", data)
	}
	old, _ := os.ReadFile(path + ".1")
	if string(old) != "before\n" {
		t.Errorf("rotated file content = %q", old)
	}
}

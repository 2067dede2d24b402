package logging

import (
	"path/filepath"
	"testing"

	"github.com/op/go-logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logging.Level{
		"debug":   logging.DEBUG,
		" WARN ":  logging.WARNING,
		"error":   logging.ERROR,
		"":        logging.INFO,
		"verbose": logging.INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "inbox.log")
	w := Setup(Options{Level: "debug", File: file})
	if w == nil {
		t.Fatal("expected rotating writer when File is set")
	}
	defer w.Close()

	if logging.GetLevel("") != logging.DEBUG {
		t.Fatalf("expected debug level, got %v", logging.GetLevel(""))
	}
}

package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetup_Level(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range cases {
		for _, format := range []string{"text", "json"} {
			if got := Setup(format, in).GetLevel(); got != want {
				t.Errorf("Setup(%q, %q) level = %v, want %v", format, in, got, want)
			}
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("error") || !ValidLevel("") {
		t.Error("expected valid")
	}
	if ValidLevel("loud") {
		t.Error("expected invalid")
	}
}

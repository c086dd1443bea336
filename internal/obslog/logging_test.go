package obslog

import "testing"

func TestConfigureAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"", LevelDebug, LevelInfo, LevelWarn, LevelError, "WARN"} {
		if err := Configure(level); err != nil {
			t.Fatalf("Configure(%q) error = %v", level, err)
		}
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	if err := Configure("verbose"); err == nil {
		t.Fatal("Configure(\"verbose\") error = nil, want error")
	}
}

func TestWithAttachesComponent(t *testing.T) {
	if logger := With("grid", "rank", 3); logger == nil {
		t.Fatal("With() returned nil logger")
	}
}

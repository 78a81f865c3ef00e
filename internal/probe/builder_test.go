package probe

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/daryltucker/density-runner/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Launcher:      "gst-launch-1.0 -q",
		AIPipeline:    "filesrc location={VIDEO} ! gvadetect device={device} ! gvafpscounter ! fakesink",
		NonAIPipeline: "filesrc location={VIDEO} ! gvafpscounter ! fakesink",
		Constants:     map[string]string{"VIDEO": "/tmp/in.mp4", "device": "CPU"},
	}
}

func TestTemplateBuilderCommand(t *testing.T) {
	b := NewTemplateBuilder(testConfig(), map[string]string{"device": "GPU"})

	got, err := b.Command(1, 2)
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	want := "gst-launch-1.0 -q " +
		"filesrc location=/tmp/in.mp4 ! gvafpscounter ! fakesink " +
		"filesrc location=/tmp/in.mp4 ! gvadetect device=GPU ! gvafpscounter ! fakesink " +
		"filesrc location=/tmp/in.mp4 ! gvadetect device=GPU ! gvafpscounter ! fakesink"
	if got != want {
		t.Errorf("Command() =\n%s\nwant\n%s", got, want)
	}
}

func TestTemplateBuilderFallbackPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.NonAIPipeline = ""
	b := NewTemplateBuilder(cfg, nil)

	got, err := b.Command(2, 0)
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if n := strings.Count(got, "gvadetect device=CPU"); n != 2 {
		t.Errorf("AI template used %d times, want 2 for non-AI fallback", n)
	}
}

func TestTemplateBuilderBuildQuoting(t *testing.T) {
	cfg := &config.Config{
		Launcher:   "sh -c",
		AIPipeline: "'echo {MSG}'",
		Constants:  map[string]string{"MSG": "hello"},
	}
	argv, err := NewTemplateBuilder(cfg, nil).Build(0, 1)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := []string{"sh", "-c", "echo hello"}; !reflect.DeepEqual(argv, want) {
		t.Errorf("Build() = %q, want %q", argv, want)
	}
}

func TestTemplateBuilderErrors(t *testing.T) {
	b := NewTemplateBuilder(testConfig(), nil)
	if _, err := b.Build(0, 0); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Build(0, 0) error = %v, want ErrEmptyCommand", err)
	}

	cfg := testConfig()
	cfg.AIPipeline = "filesrc location={MISSING} ! {ALSO_MISSING}"
	_, err := NewTemplateBuilder(cfg, nil).Build(0, 1)
	if err == nil || !strings.Contains(err.Error(), "ALSO_MISSING, MISSING") {
		t.Errorf("Build() error = %v, want unresolved placeholder list", err)
	}

	cfg = testConfig()
	cfg.AIPipeline = `"unterminated`
	if _, err := NewTemplateBuilder(cfg, nil).Build(0, 1); err == nil {
		t.Error("Build() error = nil, want split error")
	}
}

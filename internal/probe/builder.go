/*
PURPOSE:
  Builds the command line for one probe from pipeline templates.
  One pipeline copy is emitted per stream; AI streams use the AI template.

REQUIREMENTS:
  User-specified:
  - Command is composed from constants, parameters, non-AI and AI stream counts.

  Implementation-discovered:
  - Templates use {NAME} placeholders; parameters override constants.
  - The final string is split with shell quoting rules (google/shlex),
    so quoted properties survive as single arguments.

ARCHITECTURE INTEGRATION:
  - Called by: Runner (runner.go)
  - Configured from: internal/config.Config

ERROR HANDLING:
  - Unresolved placeholders and empty commands are errors.

IMPLEMENTATION RULES:
  - No validation of pipeline semantics here.

USAGE:
  b := probe.NewTemplateBuilder(cfg, params)
  argv, err := b.Build(nonAI, ai)

SELF-HEALING INSTRUCTIONS:
  - If a launcher needs a different per-stream separator, change Command().

RELATED FILES:
  - internal/config/config.go
  - internal/probe/executor.go

MAINTENANCE:
  - None.
*/

package probe

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/shlex"

	"github.com/daryltucker/density-runner/internal/config"
)

// ErrEmptyCommand is returned when a probe would launch nothing.
var ErrEmptyCommand = errors.New("empty probe command")

var placeholderRegex = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Builder produces the argument vector for one probe.
type Builder interface {
	Build(nonAI, ai int) ([]string, error)
}

// TemplateBuilder renders pipeline templates, one copy per stream.
type TemplateBuilder struct {
	Launcher      string
	AIPipeline    string
	NonAIPipeline string
	Values        map[string]string
}

// NewTemplateBuilder merges constants and one parameter combination.
func NewTemplateBuilder(cfg *config.Config, params map[string]string) *TemplateBuilder {
	values := make(map[string]string, len(cfg.Constants)+len(params))
	for k, v := range cfg.Constants {
		values[k] = v
	}
	for k, v := range params {
		values[k] = v
	}

	nonAI := cfg.NonAIPipeline
	if nonAI == "" {
		nonAI = cfg.AIPipeline
	}
	ai := cfg.AIPipeline
	if ai == "" {
		ai = nonAI
	}

	return &TemplateBuilder{
		Launcher:      cfg.Launcher,
		AIPipeline:    ai,
		NonAIPipeline: nonAI,
		Values:        values,
	}
}

// Command returns the full command string before splitting.
func (b *TemplateBuilder) Command(nonAI, ai int) (string, error) {
	if nonAI < 0 || ai < 0 || nonAI+ai == 0 {
		return "", fmt.Errorf("%w: %d non-AI, %d AI streams", ErrEmptyCommand, nonAI, ai)
	}

	aiPipeline, err := b.render(b.AIPipeline)
	if err != nil {
		return "", err
	}
	nonAIPipeline, err := b.render(b.NonAIPipeline)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, nonAI+ai+1)
	if b.Launcher != "" {
		parts = append(parts, b.Launcher)
	}
	for i := 0; i < nonAI; i++ {
		parts = append(parts, nonAIPipeline)
	}
	for i := 0; i < ai; i++ {
		parts = append(parts, aiPipeline)
	}
	return strings.Join(parts, " "), nil
}

// Build renders and splits the command.
func (b *TemplateBuilder) Build(nonAI, ai int) ([]string, error) {
	cmdline, err := b.Command(nonAI, ai)
	if err != nil {
		return nil, err
	}

	argv, err := shlex.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("failed to split probe command: %w", err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}

func (b *TemplateBuilder) render(tmpl string) (string, error) {
	missing := map[string]struct{}{}
	out := placeholderRegex.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := b.Values[name]; ok {
			return v
		}
		missing[name] = struct{}{}
		return m
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("unresolved placeholders in pipeline: %s", strings.Join(names, ", "))
	}
	return out, nil
}

// Package prompt implements the Prompt Assembler: it renders an Agent's
// ordered SystemPrompt references into the single string frozen as a
// Conversation's system_prompt_snapshot on the first turn.
//
// Substitution is a restricted `{{ name }}` scanner, not Go's text/template
// engine: prompt templates should allow no code execution and no
// conditionals, and text/template offers both. See DESIGN.md for the full
// grounding note.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/loomrun/loom/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// MissingVariableError reports template placeholders that no layer of the
// priority merge resolved. Assemble still returns the rendered string with
// those placeholders left verbatim, so the caller can choose to fail the
// turn on this error or log and proceed with the visible-but-unresolved
// text. This covers what a merge-and-scan assembler can actually detect:
// any placeholder is implicitly required unless some layer supplies it.
type MissingVariableError struct {
	Names []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("prompt: missing required variable(s): %s", strings.Join(e.Names, ", "))
}

// BuiltinContext is the lowest-priority variable layer: current_date,
// current_time, current_datetime, agent_name, agent_description.
func BuiltinContext(agent models.Agent, now time.Time) map[string]string {
	return map[string]string{
		"current_date":     now.Format("2006-01-02"),
		"current_time":     now.Format("15:04:05"),
		"current_datetime": now.Format(time.RFC3339),
		"agent_name":        agent.Name,
		"agent_description": agent.Description,
	}
}

// Assemble renders agent's ordered SystemPrompt references into one string,
// each rendered independently and joined by a single blank line. Variables
// are merged in priority order: builtin → agent.ContextVariables →
// ref.DefaultValues → ref.VariableOverrides (each layer overrides the last).
//
// Assemble never fails outright: unresolved placeholders are left verbatim
// in the rendered output and their names are collected into the returned
// *MissingVariableError (nil if every placeholder resolved), so a caller
// that wants a missing variable to fail the turn can treat a non-nil error
// as fatal while one that wants best-effort degraded prompts can ignore it.
func Assemble(agent models.Agent, now time.Time) (string, error) {
	builtin := BuiltinContext(agent, now)

	var sections []string
	var missing []string

	for _, ref := range agent.SystemPrompts {
		vars := mergeLayers(builtin, agent.ContextVariables, ref.DefaultValues, ref.VariableOverrides)
		rendered, unresolved := render(ref.Template, vars)
		sections = append(sections, rendered)
		missing = append(missing, unresolved...)
	}

	out := strings.Join(sections, "\n\n")
	if len(missing) > 0 {
		return out, &MissingVariableError{Names: dedupe(missing)}
	}
	return out, nil
}

// mergeLayers flattens variable layers lowest-to-highest priority into one
// map; later arguments win.
func mergeLayers(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// render substitutes every `{{ name }}` placeholder found in tmpl from
// vars, leaving unresolved placeholders verbatim and reporting their names.
func render(tmpl string, vars map[string]string) (string, []string) {
	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		unresolved = append(unresolved, name)
		return match
	})
	return out, unresolved
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

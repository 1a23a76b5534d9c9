package agent

import (
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(*core.RequestContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.RequestContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RequestContext) (string, error) { return f(rc) }

// Instruction represents either a static instruction template or a dynamic
// provider. Static text is rendered as a text/template with the run's
// template data (see TemplateData).
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RequestContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider or rendering
// the template with data merged over the run's TemplateData.
func (i Instruction) Resolve(rc *core.RequestContext, data map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc)
	}

	merged := TemplateData(rc)
	for k, v := range data {
		merged[k] = v
	}

	return util.RenderTemplate(i.text, merged)
}

// TemplateData returns the run values available to instruction templates:
// conversation_id, run_id, mode, read_only and loaded_categories.
func TemplateData(rc *core.RequestContext) map[string]any {
	return map[string]any{
		"conversation_id":   rc.ConversationID(),
		"run_id":            rc.RunID(),
		"mode":              rc.Mode().String(),
		"read_only":         rc.Mode() == core.ReadOnly,
		"loaded_categories": rc.LoadedCategories(),
	}
}

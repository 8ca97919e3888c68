package guard

import (
	"bytes"
	"html"
	"html/template"
	"io"

	"github.com/wrenchbay/wrenchbay/internal/rbac"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

const loadingIndicator = `<div class="guard-loading" aria-busy="true"></div>`

func deniedBlock(message string) string {
	return `<div class="access-denied">` + html.EscapeString(message) + `</div>`
}

// Component writes a fragment of HTML.
type Component func(w io.Writer) error

// Static wraps pre-rendered, trusted HTML as a Component.
func Static(h template.HTML) Component {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, string(h))
		return err
	}
}

// RenderProps describes one guarded fragment.
type RenderProps struct {
	Resource   rbac.Resource
	Action     rbac.Action
	Fallback   Component
	ShowDenied bool
}

// Renderer is the in-place guard.
type Renderer struct {
	eval *rbac.Evaluator
	opts options
}

// NewRenderer creates a render guard over eval.
func NewRenderer(eval *rbac.Evaluator, opts ...Option) *Renderer {
	return &Renderer{eval: eval, opts: newOptions(opts)}
}

// Decide returns what Render would output for p and props.
func (g *Renderer) Decide(p scope.Pass, props RenderProps) Outcome {
	switch {
	case p.Loading:
		return OutcomeLoading
	case g.eval.Allows(p.Identity, props.Resource, props.Action):
		return OutcomeAllow
	case props.Fallback != nil:
		return OutcomeFallback
	case props.ShowDenied:
		return OutcomeDenied
	default:
		return OutcomeNothing
	}
}

// Render writes children when p may perform the action, and otherwise the
// fallback, the denial explanation, or nothing. A loading pass gets a
// neutral indicator.
func (g *Renderer) Render(w io.Writer, p scope.Pass, props RenderProps, children Component) error {
	outcome := g.Decide(p, props)
	g.opts.count("render", outcome)

	switch outcome {
	case OutcomeLoading:
		_, err := io.WriteString(w, loadingIndicator)
		return err
	case OutcomeAllow:
		if children == nil {
			return nil
		}
		return children(w)
	case OutcomeFallback:
		return props.Fallback(w)
	case OutcomeDenied:
		_, err := io.WriteString(w, deniedBlock(rbac.DenialMessage(props.Action, props.Resource)))
		return err
	}
	return nil
}

// HTML renders into a template.HTML for embedding in page templates.
func (g *Renderer) HTML(p scope.Pass, props RenderProps, children Component) (template.HTML, error) {
	var buf bytes.Buffer
	if err := g.Render(&buf, p, props, children); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil // #nosec G203 -- children are trusted components; denial text is escaped
}

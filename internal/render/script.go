package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/samber/lo"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"gitast/internal/diff"
	"gitast/internal/tree"
)

const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// maxSnippet bounds the quoted source shown per action in text output.
const maxSnippet = 60

var colors = struct {
	Red, Green, Yellow, Blue, Grey lipgloss.AdaptiveColor
}{
	Red:    lipgloss.AdaptiveColor{Dark: "#D93337", Light: "#B3261E"},
	Green:  lipgloss.AdaptiveColor{Dark: "#63AC67", Light: "#2E7D32"},
	Yellow: lipgloss.AdaptiveColor{Dark: "#FBE331", Light: "#8A6D00"},
	Blue:   lipgloss.AdaptiveColor{Dark: "#679FE1", Light: "#1F5FAD"},
	Grey:   lipgloss.AdaptiveColor{Dark: "#8A887D", Light: "#5F5E57"},
}

// Style holds the styles used for text output.
type Style struct {
	Ops    map[diff.Op]lipgloss.Style
	Path   lipgloss.Style
	Header lipgloss.Style
}

// NewStyle builds the text styles for output written to w. Mode is one of
// ColorAuto, ColorAlways or ColorNever; auto colours terminals unless
// NO_COLOR is set.
func NewStyle(w io.Writer, mode string) Style {
	r := lipgloss.NewRenderer(w)
	r.SetHasDarkBackground(true)
	if ColorEnabled(w, mode) {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return Style{
		Ops: map[diff.Op]lipgloss.Style{
			diff.Insert: r.NewStyle().Foreground(colors.Green),
			diff.Delete: r.NewStyle().Foreground(colors.Red),
			diff.Move:   r.NewStyle().Foreground(colors.Blue),
			diff.Update: r.NewStyle().Foreground(colors.Yellow),
		},
		Path:   r.NewStyle().Foreground(colors.Grey),
		Header: r.NewStyle().Bold(true),
	}
}

// ColorEnabled resolves a colour mode for w.
func ColorEnabled(w io.Writer, mode string) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return !termenv.EnvNoColor()
}

// Record is the structured form of one action, used by the yaml and json
// formats.
type Record struct {
	Op      string `json:"op" yaml:"op"`
	Kind    string `json:"kind" yaml:"kind"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	NewPath string `json:"new_path,omitempty" yaml:"new_path,omitempty"`
	Old     string `json:"old,omitempty" yaml:"old,omitempty"`
	New     string `json:"new,omitempty" yaml:"new,omitempty"`
}

// Records converts the actions of s.
func Records(s *diff.Script) []Record {
	return lo.Map(s.Actions, func(a diff.Action, _ int) Record {
		r := Record{Op: a.Op.String()}
		if a.Src != tree.NoNode {
			r.Kind = s.Src.Kind(a.Src)
			r.Path = s.Src.Path(a.Src)
		}
		if a.Dst != tree.NoNode {
			r.Kind = s.Dst.Kind(a.Dst)
			if a.Op != diff.Update {
				r.NewPath = s.Dst.Path(a.Dst)
			}
		}
		switch a.Op {
		case diff.Insert:
			r.New = s.Dst.Text(a.Dst)
		case diff.Delete:
			r.Old = s.Src.Text(a.Src)
		case diff.Update:
			r.Old, r.New = s.Src.Content(a.Src), a.Content
		}
		return r
	})
}

// Script writes the edit script in the given format. The style is only used
// by the text format.
func Script(w io.Writer, s *diff.Script, format string, style Style) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Records(s))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Records(s)); err != nil {
			return fmt.Errorf("failed to encode edit script: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return text(w, s, style)
	}
	return fmt.Errorf("unknown diff format %q", format)
}

func text(w io.Writer, s *diff.Script, style Style) error {
	var sb strings.Builder
	for i, r := range Records(s) {
		op := s.Actions[i].Op
		sb.WriteString(style.Ops[op].Render(fmt.Sprintf("%-6s", r.Op)))
		sb.WriteByte(' ')
		switch op {
		case diff.Insert:
			sb.WriteString(style.Path.Render(r.NewPath))
			fmt.Fprintf(&sb, " %s", snippet(r.New))
		case diff.Delete:
			sb.WriteString(style.Path.Render(r.Path))
			fmt.Fprintf(&sb, " %s", snippet(r.Old))
		case diff.Move:
			sb.WriteString(style.Path.Render(r.Path))
			sb.WriteString(" -> ")
			sb.WriteString(style.Path.Render(r.NewPath))
		case diff.Update:
			sb.WriteString(style.Path.Render(r.Path))
			fmt.Fprintf(&sb, " %s -> %s", snippet(r.Old), snippet(r.New))
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSnippet {
		s = s[:maxSnippet-3] + "..."
	}
	return fmt.Sprintf("%q", s)
}

package syntax

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// ErrUnsupportedLanguage is returned when no grammar is registered for a path.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language binds a tree-sitter grammar to the file extensions it handles.
type Language struct {
	Name       string
	Extensions []string
	grammar    func() *sitter.Language

	// literal reports node kinds whose whole text is kept as one token, so
	// whitespace inside them is content rather than layout.
	literal func(kind string) bool
}

func defaultLiteral(kind string) bool {
	return strings.Contains(kind, "string") || strings.Contains(kind, "char") || strings.HasSuffix(kind, "comment")
}

// Builtin returns the languages shipped with git-ast.
func Builtin() []*Language {
	return []*Language{
		{Name: "go", Extensions: []string{".go"}, grammar: golang.GetLanguage, literal: defaultLiteral},
		{Name: "python", Extensions: []string{".py", ".pyi"}, grammar: python.GetLanguage, literal: defaultLiteral},
		{Name: "rust", Extensions: []string{".rs"}, grammar: rust.GetLanguage, literal: defaultLiteral},
		{Name: "javascript", Extensions: []string{".js", ".mjs", ".cjs", ".jsx"}, grammar: javascript.GetLanguage, literal: defaultLiteral},
		{Name: "typescript", Extensions: []string{".ts", ".mts", ".cts"}, grammar: typescript.GetLanguage, literal: defaultLiteral},
	}
}

// Registry selects a language by file extension.
type Registry struct {
	byExt map[string]*Language
}

// NewRegistry creates a registry holding the given languages. With no
// arguments the builtin set is used.
func NewRegistry(langs ...*Language) *Registry {
	if len(langs) == 0 {
		langs = Builtin()
	}
	r := &Registry{byExt: make(map[string]*Language)}
	for _, l := range langs {
		for _, ext := range l.Extensions {
			r.byExt[ext] = l
		}
	}
	return r
}

// Detect returns the language for pathname.
func (r *Registry) Detect(pathname string) (*Language, error) {
	ext := strings.ToLower(filepath.Ext(pathname))
	if l, ok := r.byExt[ext]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, pathname)
}

// Supports reports whether pathname has a registered grammar.
func (r *Registry) Supports(pathname string) bool {
	_, err := r.Detect(pathname)
	return err == nil
}

// Extensions lists every registered extension in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

package render

import (
	"io"

	"github.com/pmezard/go-difflib/difflib"
)

// Unified writes a line based unified diff of two versions of name. It is
// the fallback for files that cannot be parsed.
func Unified(w io.Writer, name string, old, new []byte, context int) error {
	return difflib.WriteUnifiedDiff(w, difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(new)),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  context,
	})
}

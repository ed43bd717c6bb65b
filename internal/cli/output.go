package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// warnNonMarkdownExtension writes a warning to w if path has an extension
// that is not .md. This alerts users that the output will be Markdown
// regardless of the file extension they specified.
func warnNonMarkdownExtension(w io.Writer, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" && ext != ".md" {
		fmt.Fprintf(w, "Warning: output is Markdown regardless of %s extension\n", ext)
	}
}

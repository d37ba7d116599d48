package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HTMLDumper writes raw fetched pages to a directory for post-mortem
// inspection of selector misses and challenge pages.
type HTMLDumper struct {
	Dir string
}

// DumpHTML writes one page's HTML to <dir>/<company>_<page>.html, creating
// the directory on first use.
func (d *HTMLDumper) DumpHTML(company string, page int, html string) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("creating debug dir: %w", err)
	}
	name := fmt.Sprintf("%s_%d.html", strings.ReplaceAll(company, " ", "_"), page)
	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing debug html: %w", err)
	}
	return nil
}

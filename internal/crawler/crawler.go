package crawler

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"javagent/internal/extractor"
)

// Crawler scans a project tree for Java source units.
type Crawler struct {
	ignored []string
}

func NewCrawler() *Crawler {
	return &Crawler{
		ignored: []string{".git", "target", "build", "out", "node_modules", ".gradle", ".idea"},
	}
}

// ScanProject walks the root directory and streams every Java unit through
// the callback. Unit IDs are root-relative with forward slashes, so the
// same tree indexed from different machines produces identical IDs.
func (c *Crawler) ScanProject(root string, onUnit func(extractor.Unit)) error {
	matcher := c.loadGitignore(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			for _, ign := range c.ignored {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			if matcher != nil && rel != "." && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(d.Name(), ".java") {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}

		source, readErr := os.ReadFile(path)
		if readErr != nil {
			// Unreadable files cost themselves, never the scan.
			return nil
		}

		onUnit(extractor.Unit{ID: rel, Source: source})
		return nil
	})
}

// CollectUnits is ScanProject buffered into a slice.
func (c *Crawler) CollectUnits(root string) ([]extractor.Unit, error) {
	var units []extractor.Unit
	err := c.ScanProject(root, func(u extractor.Unit) {
		units = append(units, u)
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (c *Crawler) loadGitignore(root string) *ignore.GitIgnore {
	matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return matcher
}

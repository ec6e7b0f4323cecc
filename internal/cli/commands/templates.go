package commands

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed all:templates
var templateFS embed.FS

// copyTemplate copies an embedded template directory to the target path.
// It handles special file renames (e.g., "gitignore" -> ".gitignore").
func copyTemplate(templateName, targetDir string, force bool) error {
	root := path.Join("templates", templateName)

	return fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if relPath == "" {
			return nil
		}

		targetPath := filepath.Join(targetDir, filepath.FromSlash(renameSpecialFiles(relPath)))

		if d.IsDir() {
			return os.MkdirAll(targetPath, 0750)
		}

		// Existing files are kept unless forced
		if !force {
			if _, err := os.Stat(targetPath); err == nil {
				return nil
			}
		}

		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(targetPath, content, 0600)
	})
}

// renameSpecialFiles handles files that need renaming (e.g., dotfiles).
func renameSpecialFiles(p string) string {
	if path.Base(p) == "gitignore" {
		return path.Join(path.Dir(p), ".gitignore")
	}
	return p
}

// listTemplateFiles returns all files in a template for display purposes.
// Placeholder .gitkeep files are omitted.
func listTemplateFiles(templateName string) ([]string, error) {
	var files []string
	root := path.Join("templates", templateName)

	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() != ".gitkeep" {
			files = append(files, renameSpecialFiles(strings.TrimPrefix(p, root+"/")))
		}
		return nil
	})

	return files, err
}

// groupTemplateFiles groups files by top-level directory for display.
func groupTemplateFiles(files []string) map[string][]string {
	groups := make(map[string][]string)
	for _, f := range files {
		switch dir, _, found := strings.Cut(f, "/"); {
		case found && (dir == "data" || dir == "models" || dir == "pipelines"):
			groups[dir] = append(groups[dir], f)
		default:
			groups["config"] = append(groups["config"], f)
		}
	}
	return groups
}

package sync

import (
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"

	"github.com/karthik-sk/codesearch-core/internal/errs"
)

func relPath(root, path string) (string, error) {
	r, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(r), nil
}

// LocalFile is one file discovered under a local-path repository root
// (spec §9: a repository added without a remote URL has no commits to
// diff against, so every sync walks the working tree directly).
type LocalFile struct {
	Path    string
	Content []byte
}

// WalkLocalTree lists every non-skipped file under root, adapted from the
// teacher's indexer.Run godirwalk.Walk callback but collecting results
// instead of streaming them onto a worker channel directly, since the
// sync Engine drives its own batching loop.
func WalkLocalTree(root string) ([]LocalFile, error) {
	var out []LocalFile
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			rel, relErr := relPath(root, path)
			if relErr != nil || shouldSkip(rel) {
				return nil
			}
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}
			out = append(out, LocalFile{Path: rel, Content: content})
			return nil
		},
	})
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "walk local repository tree", err)
	}
	return out, nil
}

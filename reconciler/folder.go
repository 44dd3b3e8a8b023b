package reconciler

import (
	"fmt"
	"os"
	"strings"

	"github.com/web-sentinel/keeper/types"
)

// CleanFolderName maps an artifact folder name to the plain test name used
// as the ledger correlation key. Folders are named
// "<TestName> [<environment-or-timestamp>]" or plainly "<TestName>": the
// name is truncated at the first '[' and trailing whitespace trimmed.
// Assumes test names never contain a literal '['.
func CleanFolderName(raw string) string {
	if idx := strings.Index(raw, "["); idx != -1 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

// ListFolders enumerates the artifact folders under dir, pairing each
// literal name with its cleaned correlation form. Non-directory entries
// (such as the report file itself) are skipped.
func ListFolders(dir string) ([]types.Folder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing artifact folders in %s: %w", dir, err)
	}

	var folders []types.Folder
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folders = append(folders, types.Folder{
			Raw:   entry.Name(),
			Clean: CleanFolderName(entry.Name()),
		})
	}
	return folders, nil
}

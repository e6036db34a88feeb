package query

import (
	"regexp"
	"strings"
)

var folderMarker = regexp.MustCompile(`(?i)\bin:(inbox|sent|drafts?)\b|\blabel:(?:"([^"]+)"|([\w&./-]+))`)

// InferFolders reports the folders a generated query targets, in first-seen
// order. It matches operator text only: a marker inside a quoted phrase or
// behind a negation still counts. A query without markers is reported as
// AllMail.
func InferFolders(q string) []string {
	var folders []string
	seen := map[string]bool{}
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			folders = append(folders, f)
		}
	}
	for _, m := range folderMarker.FindAllStringSubmatch(q, -1) {
		switch {
		case m[1] != "":
			switch strings.ToLower(m[1]) {
			case "inbox":
				add(FolderInbox)
			case "sent":
				add(FolderSent)
			default:
				add(FolderDraft)
			}
		case m[2] != "":
			add(m[2])
		case m[3] != "":
			add(m[3])
		}
	}
	if len(folders) == 0 {
		return []string{AllMail}
	}
	return folders
}

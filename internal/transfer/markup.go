package transfer

import (
	"path/filepath"
	"strings"
)

// imageExts are the attachment types rendered inline as thumbnails; anything
// else becomes a plain attachment reference.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// attachmentMarkup renders the Jira wiki markup for an uploaded attachment.
func attachmentMarkup(name string) string {
	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return "!" + name + "|thumbnail!"
	}
	return "[^" + name + "]"
}

package ytdlp

import "strings"

// maxFilenameLen keeps titles within common filesystem limits.
const maxFilenameLen = 200

// SanitizeFilename strips characters that are unsafe in filenames and caps
// the length. Mirrors what yt-dlp's restricted filenames would do to a
// title, so the expected artifact path matches the written file.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	if runes := []rune(out); len(runes) > maxFilenameLen {
		out = string(runes[:maxFilenameLen])
	}
	return out
}

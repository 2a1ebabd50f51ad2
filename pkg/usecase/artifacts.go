package usecase

import (
	"regexp"
	"strings"
)

// Suffixes of partial files left by yt-dlp and aria2c
var temporarySuffixes = []string{
	".part",
	".ytdl",
	".aria2",
	".temp",
}

var (
	// yt-dlp fragment downloads: "name.mp4.part-Frag12"
	fragmentPattern = regexp.MustCompile(`\.part-Frag\d+(\.part)?$`)

	// yt-dlp per-format intermediates before merging: "name.f137.mp4"
	formatPattern = regexp.MustCompile(`\.f\d+(-\d+)?\.[A-Za-z0-9]+$`)
)

// isTemporaryArtifact reports whether name is a leftover of a download.
// siblings holds every file name in the same directory. A per-format file only
// counts when its merged output "name.<ext>" is among siblings, so a finished
// file whose title happens to end in ".f2" is kept.
func isTemporaryArtifact(name string, siblings map[string]struct{}) bool {
	for _, suffix := range temporarySuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	if fragmentPattern.MatchString(name) {
		return true
	}

	loc := formatPattern.FindStringIndex(name)
	if loc == nil {
		return false
	}
	return hasMergedOutput(name[:loc[0]], siblings)
}

func hasMergedOutput(stem string, siblings map[string]struct{}) bool {
	prefix := stem + "."
	for sibling := range siblings {
		ext, ok := strings.CutPrefix(sibling, prefix)
		if ok && ext != "" && !strings.Contains(ext, ".") {
			return true
		}
	}
	return false
}

// Package artifact derives structured artifact records from message content.
//
// Extraction is a pure function over the input text: the same text always
// yields the same artifacts, and artifacts for fences that are already
// closed do not change as more text is appended during streaming. Ordinals
// are assigned by discovery order of closed fences only, so an in-progress
// trailing fence never perturbs earlier ids.
package artifact

import (
	"fmt"
	"regexp"

	"loom/pkg/models"
)

// fenceRe matches one closed triple-backtick region. The language tag is a
// run of word characters immediately after the opening fence (no space);
// matching is non-greedy so nested fences are not supported and regions are
// scanned left to right. An opening fence with no closing fence before end
// of input does not match.
var fenceRe = regexp.MustCompile("(?s)```(\\w*)\\n?(.*?)```")

const defaultLanguage = "text"

// Extract returns one artifact per closed fenced region, in order of
// appearance. An unterminated trailing fence yields nothing; empty regions
// are valid and yield an artifact with empty content.
func Extract(text string) []models.Artifact {
	matches := fenceRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]models.Artifact, 0, len(matches))
	for i, m := range matches {
		lang := m[1]
		if lang == "" {
			lang = defaultLanguage
		}
		out = append(out, models.Artifact{
			ID:       fmt.Sprintf("code-%d", i),
			Type:     models.ArtifactCode,
			Title:    fmt.Sprintf("Code Block %d", i+1),
			Content:  m[2],
			Language: lang,
		})
	}
	return out
}

package reasoning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// --- Quality marker contract (v1) ---
//
// The final speaker of every iteration ends its reply with a line
//
//	QUALITY_ASSESSMENT: <score>
//
// where <score> is a decimal in [0,1], a percentage ("85%"), or a fraction
// over 10 or 100 ("8.5/10", "85/100"). Matching is case-insensitive, spaces
// or underscores may separate the two words, trailing punctuation is
// ignored, and the last marker wins. A bare number outside [0,1] ("8",
// "1.5") has no known scale and is rejected rather than guessed.

// QualityMarker is the literal the agents are asked to emit.
const QualityMarker = "QUALITY_ASSESSMENT"

// QualityMarkerVersion identifies the parsing contract above.
const QualityMarkerVersion = 1

var qualityLine = regexp.MustCompile(
	`(?im)^[\s>*_#-]*quality[ _]assessment[\s*_]*:\s*\**\s*([0-9]+(?:\.[0-9]+)?)\s*(%|/\s*10{1,2})?\s*\**\s*[.,;!]*\s*\**\s*$`,
)

// qualityInstruction is appended to the final speaker's turn input.
func qualityInstruction() string {
	return fmt.Sprintf(
		"Finish your reply with exactly one line of the form\n%s: <score>\n"+
			"where <score> is a number between 0 and 1 rating how well the current "+
			"answer resolves the topic (1 means nothing left to improve).", QualityMarker)
}

// ParseQuality extracts the quality score from content. The boolean is
// false when no well-formed marker is present.
func ParseQuality(content string) (float64, bool) {
	matches := qualityLine.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1]

	value, err := strconv.ParseFloat(last[1], 64)
	if err != nil {
		return 0, false
	}

	scale := strings.ReplaceAll(last[2], " ", "")
	switch scale {
	case "%", "/100":
		value /= 100
	case "/10":
		value /= 10
	case "":
		if value > 1 {
			return 0, false
		}
	}

	return clamp01(value), true
}

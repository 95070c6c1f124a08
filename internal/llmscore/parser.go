package llmscore

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// PlaceholderReason is returned when only a bare number could be
// extracted from the backend reply.
const PlaceholderReason = "reason could not be extracted"

// ErrNoScore means the reply contained nothing number-like; the caller
// may re-issue the same request.
var ErrNoScore = errors.New("no score found in backend reply")

// The backend promises the format "[<number>]: <reason>", but model
// output is adversarial: the fallback pattern accepts any bare decimal
// token, with a leading dot normalized by prefixing "0".
var (
	scoredLinePattern = regexp.MustCompile(`\[([0-9]*\.?[0-9]+)\]:\s*(.+)`)
	bareScorePattern  = regexp.MustCompile(`0?\.\d+`)
)

// parseReply extracts a (score, reason) pair from a backend reply.
func parseReply(text string) (float64, string, error) {
	if m := scoredLinePattern.FindStringSubmatch(text); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			return score, strings.TrimSpace(m[2]), nil
		}
	}

	if m := bareScorePattern.FindString(text); m != "" {
		if strings.HasPrefix(m, ".") {
			m = "0" + m
		}
		if score, err := strconv.ParseFloat(m, 64); err == nil {
			return score, PlaceholderReason, nil
		}
	}

	return 0, "", ErrNoScore
}

// clamp01 normalizes out-of-range scores into [0,1]. The prompt asks
// the model to normalize, but the boundary does not trust it.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

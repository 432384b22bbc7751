// Package progress turns single lines of yt-dlp output into progress events.
package progress

import (
	"strconv"
	"strings"

	"ytbatch/internal/model"
)

// PostProcessingPercent is reported for every post-processing line. It is a
// fixed sentinel, not derived from the line.
const PostProcessingPercent = 95.0

// postProcessingMarkers are matched case-sensitively anywhere in the line.
var postProcessingMarkers = []string{
	"[ffmpeg]",
	"[ExtractAudio]",
	"[EmbedThumbnail]",
	"[Metadata]",
	"Converting",
	"Deleting",
}

// ParseLine maps one newline-stripped line to at most one event. Lines that
// carry no progress information return ok=false; that is the common case.
func ParseLine(line, jobID string) (model.ProgressEvent, bool) {
	l := strings.TrimSpace(line)
	if l == "" {
		return model.ProgressEvent{}, false
	}

	if isPostProcessing(l) {
		return model.ProgressEvent{
			JobID:    jobID,
			Status:   model.StatusProcessing,
			Progress: PostProcessingPercent,
		}, true
	}

	pct, ok := FirstPercentage(l)
	if !ok {
		return model.ProgressEvent{}, false
	}

	ev := model.ProgressEvent{
		JobID:     jobID,
		Status:    model.StatusDownloading,
		Progress:  pct,
		TotalSize: totalSize(l),
		Speed:     fieldAfter(l, " at "),
		ETA:       eta(l),
	}
	if pct >= 100.0 {
		ev.Status = model.StatusProcessing
	}
	return ev, true
}

func isPostProcessing(line string) bool {
	for _, m := range postProcessingMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// FirstPercentage returns the value of the first well-formed percentage token:
// a maximal run of digits with at most one '.', at least one digit, followed
// directly by '%'. Malformed runs are skipped.
func FirstPercentage(line string) (float64, bool) {
	i := 0
	for i < len(line) {
		if !isNumberByte(line[i]) {
			i++
			continue
		}
		start := i
		digits, dots := 0, 0
		for i < len(line) && isNumberByte(line[i]) {
			if line[i] == '.' {
				dots++
			} else {
				digits++
			}
			i++
		}
		if i >= len(line) || line[i] != '%' || digits == 0 || dots > 1 {
			continue
		}
		v, err := strconv.ParseFloat(line[start:i], 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

func isNumberByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}

// totalSize reads "of <size>" up to the next space. yt-dlp's "~" marker
// for estimated sizes is kept on the value.
func totalSize(line string) string {
	_, after, ok := strings.Cut(line, " of ")
	if !ok {
		return ""
	}
	approx := ""
	if rest, found := strings.CutPrefix(strings.TrimLeft(after, " "), "~"); found {
		approx, after = "~", rest
	}
	size := tokenBeforeSpace(after)
	if size == "" {
		return ""
	}
	return approx + size
}

func fieldAfter(line, marker string) string {
	_, after, ok := strings.Cut(line, marker)
	if !ok {
		return ""
	}
	return tokenBeforeSpace(after)
}

// tokenBeforeSpace skips padding and returns the text up to the next space.
// A value that runs to end of line is not terminated and yields "".
func tokenBeforeSpace(s string) string {
	before, _, found := strings.Cut(strings.TrimLeft(s, " "), " ")
	if !found {
		return ""
	}
	return before
}

func eta(line string) string {
	_, after, ok := strings.Cut(line, "ETA ")
	if !ok {
		return ""
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

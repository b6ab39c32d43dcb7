package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/clips"
)

// GenerateEDL renders clips as a CMX3600 edit decision list laid end to
// end on the record side.
func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffsetMs := 0
	for i, clip := range clips {
		srcIn := msToTimecode(clip.StartMs, fps)
		srcOut := msToTimecode(clip.EndMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		durationMs := clip.EndMs - clip.StartMs
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clip.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath),
		)
		if clip.Comment != "" {
			lines = append(lines, fmt.Sprintf("* COMMENT:  %s", clip.Comment))
		}

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}

// ParseTimestamp converts "HH:MM:SS.mmm" to milliseconds.
func ParseTimestamp(s string) (int, error) {
	hms, msPart, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || len(msPart) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var vals [4]int
	for i, p := range append(parts, msPart) {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return ((vals[0]*60+vals[1])*60+vals[2])*1000 + vals[3], nil
}

// ResolveClips maps clips to EDL events against mediaPath. When names is
// non-empty only those clips are included, in ledger order. Names that are
// missing or carry unreadable timestamps are returned as unresolved.
func ResolveClips(list []clips.Clip, mediaPath string, names []string) ([]ResolvedClip, []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var resolved []ResolvedClip
	var unresolved []string
	seen := make(map[string]bool)
	for _, c := range list {
		if len(want) > 0 && !want[c.Name] {
			continue
		}
		seen[c.Name] = true

		startMs, err1 := ParseTimestamp(c.StartTime)
		endMs, err2 := ParseTimestamp(c.EndTime)
		if err1 != nil || err2 != nil || endMs <= startMs {
			unresolved = append(unresolved, c.Name)
			continue
		}

		comment := c.ActionClass
		if c.Description != "" {
			comment = strings.TrimSpace(comment + " - " + c.Description)
		}
		resolved = append(resolved, ResolvedClip{
			ClipName:  c.Name,
			MediaPath: mediaPath,
			StartMs:   startMs,
			EndMs:     endMs,
			Comment:   SanitizeName(comment, 120),
		})
	}
	for _, n := range names {
		if !seen[n] {
			unresolved = append(unresolved, n)
			seen[n] = true
		}
	}
	return resolved, unresolved
}

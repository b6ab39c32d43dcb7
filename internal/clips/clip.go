// Package clips holds the clip marking state machine and the ordered clip
// ledger with its CSV persistence.
package clips

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/media"
)

// Metadata is the operator-entered description of a clip. Values are
// free-form and not validated.
type Metadata struct {
	ActionClass string `json:"action_class"`
	Description string `json:"description"`
	Team        string `json:"team"`
	Equipment   string `json:"equipment"`
}

// Clip is a committed, named marked range.
type Clip struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Metadata

	// Frames is known only for clips marked in this session; the ledger
	// does not carry frame indices.
	Frames *media.FrameRange `json:"frames,omitempty"`
}

// HasFrames reports whether the clip can be extracted frame-exactly.
func (c Clip) HasFrames() bool {
	return c.Frames != nil
}

// ClipName formats the generated name for index n.
func ClipName(n int) string {
	return fmt.Sprintf("clip_%d.mp4", n)
}

// ClipIndex extracts N from "clip_<N>.mp4".
func ClipIndex(name string) (int, bool) {
	s, ok := strings.CutPrefix(name, "clip_")
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, ".mp4")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

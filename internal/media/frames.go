package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid frame range format")
	ErrUnsatisfiable = errors.New("frame range not satisfiable")
)

// FrameRange is an inclusive span of frame indices.
type FrameRange struct {
	Start int
	End   int
}

// Len returns the number of frames in the range.
func (r FrameRange) Len() int {
	return r.End - r.Start + 1
}

func (r FrameRange) String() string {
	return fmt.Sprintf("frames=%d-%d", r.Start, r.End)
}

// ParseFrameRange parses "frames=START-END", "frames=START-" and
// "frames=-COUNT" (the last COUNT frames) against a video of total frames.
// An empty spec yields nil and no error. End is clamped to total-1.
func ParseFrameRange(spec string, total int) (*FrameRange, error) {
	if spec == "" {
		return nil, nil
	}

	if !strings.HasPrefix(spec, "frames=") {
		return nil, ErrInvalidRange
	}
	rangeSpec := strings.TrimSpace(strings.TrimPrefix(spec, "frames="))

	first, last, ok := strings.Cut(rangeSpec, "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	var start, end int
	if first == "" {
		count, err := strconv.Atoi(last)
		if err != nil || count <= 0 {
			return nil, ErrInvalidRange
		}
		start = total - count
		if start < 0 {
			start = 0
		}
		end = total - 1
	} else {
		var err error
		start, err = strconv.Atoi(first)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		if last == "" {
			end = total - 1
		} else {
			end, err = strconv.Atoi(last)
			if err != nil {
				return nil, ErrInvalidRange
			}
		}
	}

	if start > end || start >= total {
		return nil, ErrUnsatisfiable
	}
	if end >= total {
		end = total - 1
	}
	return &FrameRange{Start: start, End: end}, nil
}

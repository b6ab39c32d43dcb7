package clips

import (
	"errors"
	"fmt"

	"github.com/clipforge/clipforge-agent/internal/media"
)

// ErrNoVideo is returned by marking operations when no video is open.
var ErrNoVideo = media.ErrNotOpen

const (
	ReasonNoStart       = "no start marked"
	ReasonEndNotAfter   = "end not after start"
	ReasonMissingColumn = "missing column"
	ReasonNoClips       = "no clips to save"
	ReasonNoSaveDir     = "no save directory selected"
)

// ValidationError reports a violated marking precondition. The pending
// mark is left untouched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ParseError reports a ledger that exists but cannot be read.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError reports a failed write of the ledger or an exported file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

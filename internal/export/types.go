package export

// EDLRequest asks for a CMX3600 timeline of the marked clips.
type EDLRequest struct {
	Title     string   `json:"title"`
	OutputDir string   `json:"output_dir"`
	Clips     []string `json:"clips,omitempty"` // names; empty means every clip
}

type ResolvedClip struct {
	ClipName  string
	MediaPath string
	StartMs   int
	EndMs     int
	Comment   string
}

type EDLResponse struct {
	Status          string   `json:"status"`
	Format          string   `json:"format"`
	OutputPath      string   `json:"output_path"`
	ClipCount       int      `json:"clip_count"`
	UnresolvedClips []string `json:"unresolved_clips"`
}

// EventKind classifies the outcome for one clip during SaveAll.
type EventKind string

const (
	EventExported   EventKind = "exported"
	EventSkipped    EventKind = "skipped"
	EventPartial    EventKind = "partial"
	EventUnresolved EventKind = "unresolved"
	EventFailed     EventKind = "failed"
)

type Event struct {
	Clip     string    `json:"clip"`
	Kind     EventKind `json:"kind"`
	Frames   int       `json:"frames"`
	Expected int       `json:"expected"`
	Error    string    `json:"error,omitempty"`
}

// Report summarizes a SaveAll run. Every clip appears in exactly one list.
type Report struct {
	Exported   []string `json:"exported"`
	Skipped    []string `json:"skipped"`
	Partial    []string `json:"partial"`
	Unresolved []string `json:"unresolved"`
	Failed     []string `json:"failed"`
	Events     []Event  `json:"events"`
	LedgerPath string   `json:"ledger_path,omitempty"`
}

func (r *Report) add(e Event) {
	r.Events = append(r.Events, e)
	switch e.Kind {
	case EventExported:
		r.Exported = append(r.Exported, e.Clip)
	case EventSkipped:
		r.Skipped = append(r.Skipped, e.Clip)
	case EventPartial:
		r.Partial = append(r.Partial, e.Clip)
	case EventUnresolved:
		r.Unresolved = append(r.Unresolved, e.Clip)
	case EventFailed:
		r.Failed = append(r.Failed, e.Clip)
	}
}

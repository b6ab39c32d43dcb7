package logging

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ActionLogFilename is the append-only operator log kept in the save directory.
const ActionLogFilename = "actions_log.txt"

const actionTimeLayout = "2006-01-02 15:04:05"

// Action is one line of the operator log.
type Action struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the action as "[YYYY-MM-DD HH:MM:SS] message".
func (a Action) String() string {
	return fmt.Sprintf("[%s] %s", a.Time.Format(actionTimeLayout), a.Message)
}

// ActionSink receives every recorded action, e.g. a database mirror.
type ActionSink interface {
	RecordAction(a Action) error
}

// ActionLog collects operator actions for the session and appends them to
// actions_log.txt when a save directory is set. Write failures are logged and
// never returned.
type ActionLog struct {
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	dir         string
	history     []Action
	sinks       []ActionSink
	subscribers map[int]chan Action
	nextSub     int
}

// NewActionLog creates an action log with no save directory.
func NewActionLog(logger *slog.Logger) *ActionLog {
	if logger == nil {
		logger = Discard()
	}
	return &ActionLog{
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[int]chan Action),
	}
}

// SetDir sets the directory actions are appended to. An empty dir disables
// the file.
func (l *ActionLog) SetDir(dir string) {
	l.mu.Lock()
	l.dir = dir
	l.mu.Unlock()
}

// Dir returns the current save directory.
func (l *ActionLog) Dir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir
}

// AddSink registers a mirror for recorded actions.
func (l *ActionLog) AddSink(s ActionSink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Record appends a formatted action.
func (l *ActionLog) Record(format string, args ...any) Action {
	a := Action{Time: l.now(), Message: fmt.Sprintf(format, args...)}

	l.mu.Lock()
	l.history = append(l.history, a)
	dir := l.dir
	sinks := append([]ActionSink(nil), l.sinks...)
	for _, ch := range l.subscribers {
		select {
		case ch <- a:
		default:
			// slow subscriber, drop rather than block the control path
		}
	}
	l.mu.Unlock()

	l.logger.Info("action", "message", a.Message)

	if dir != "" {
		if err := appendAction(dir, a); err != nil {
			l.logger.Warn("failed to write action log", "dir", SanitizePath(dir), "error", err)
		}
	}
	for _, s := range sinks {
		if err := s.RecordAction(a); err != nil {
			l.logger.Warn("failed to mirror action", "error", err)
		}
	}
	return a
}

// History returns the actions recorded or replayed in this session.
func (l *ActionLog) History() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Action, len(l.history))
	copy(out, l.history)
	return out
}

// Replace swaps the in-memory history, used when replaying a log file.
func (l *ActionLog) Replace(actions []Action) {
	l.mu.Lock()
	l.history = append([]Action(nil), actions...)
	l.mu.Unlock()
}

// Subscribe returns a buffered channel receiving every new action and a
// cancel func that closes it.
func (l *ActionLog) Subscribe(buffer int) (<-chan Action, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Action, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subscribers[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

func appendAction(dir string, a Action) error {
	f, err := os.OpenFile(filepath.Join(dir, ActionLogFilename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(a.String() + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadActionLog parses dir/actions_log.txt. A missing file yields no actions
// and no error. Lines that do not carry a timestamp prefix are kept with a
// zero time.
func ReadActionLog(dir string) ([]Action, error) {
	f, err := os.Open(filepath.Join(dir, ActionLogFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var actions []Action
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		actions = append(actions, parseActionLine(line))
	}
	return actions, sc.Err()
}

func parseActionLine(line string) Action {
	if len(line) > len(actionTimeLayout)+2 && line[0] == '[' && line[len(actionTimeLayout)+1] == ']' {
		ts, err := time.ParseInLocation(actionTimeLayout, line[1:len(actionTimeLayout)+1], time.Local)
		if err == nil {
			return Action{Time: ts, Message: strings.TrimPrefix(line[len(actionTimeLayout)+2:], " ")}
		}
	}
	return Action{Message: line}
}

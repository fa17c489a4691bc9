package eventlog

import (
	"os"
	"strings"

	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/trigger"
)

// Options configures a Writer.
type Options struct {
	FPS     int    // frames per second; durations are logged in frames / FPS
	Version string // experiment version stamped on every row
}

// Event is what callers log: raw action codes, durations in frames, and
// the urns of the current payoff setting.
type Event struct {
	Onset          *float64
	DurationFrames int
	Trial          *int
	Action         *action.Code
	Outcome        *float64
	ResponseTime   *float64
	Trigger        trigger.Trigger
	Urns           *payoff.Urns
	Reset          bool
}

// Writer appends events to a new log file. One Writer owns the file.
type Writer struct {
	f       *os.File
	path    string
	fps     int
	version string
	seq     int
}

// Create starts a new log at path and writes the header. The file must not
// exist yet.
func Create(path string, opts Options) (*Writer, error) {
	if opts.FPS <= 0 {
		return nil, sperrors.Newf(sperrors.EConfiguration, "invalid frame rate %d", opts.FPS)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, sperrors.NewWithDetails(sperrors.EConfiguration, "a data file already exists", map[string]string{"path": path})
		}
		return nil, sperrors.Wrap(sperrors.EIO, "failed to create log", err)
	}
	w := &Writer{f: f, path: path, fps: opts.FPS, version: opts.Version}
	if err := w.writeLine(Header); err != nil {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close on header failure.
			_ = cerr
		}
		return nil, err
	}
	return w, nil
}

// Path returns the file path of the log.
func (w *Writer) Path() string {
	return w.path
}

// Log normalizes e and appends it as one row.
func (w *Writer) Log(e Event) (Record, error) {
	rec := Record{
		Seq:          w.seq + 1,
		Onset:        e.Onset,
		Duration:     float64(e.DurationFrames) / float64(w.fps),
		Trial:        e.Trial,
		Outcome:      e.Outcome,
		ResponseTime: e.ResponseTime,
		Trigger:      e.Trigger,
		Version:      w.version,
		Reset:        e.Reset,
	}
	if e.Action != nil {
		a, err := action.Encode(*e.Action)
		if err != nil {
			return Record{}, err
		}
		rec.Action = &a
	}
	if e.Urns != nil {
		cols, err := payoff.Flatten(*e.Urns)
		if err != nil {
			return Record{}, err
		}
		rec.Columns = &cols
	}
	if err := w.writeLine(rec.Fields()); err != nil {
		return Record{}, err
	}
	w.seq++
	return rec, nil
}

// Close finalizes the log.
func (w *Writer) Close() error {
	if err := w.f.Close(); err != nil {
		return sperrors.Wrap(sperrors.EIO, "failed to close log", err)
	}
	return nil
}

func (w *Writer) writeLine(fields []string) error {
	line := strings.Join(fields, "\t") + "\n"
	if _, err := w.f.WriteString(line); err != nil {
		return sperrors.Wrap(sperrors.EIO, "failed to write log", err)
	}
	return nil
}

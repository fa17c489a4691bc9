package eventlog

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/trigger"
)

// ReadFile parses a finalized log.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sperrors.Wrap(sperrors.EIO, "failed to open log", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close for read-only log.
			_ = cerr
		}
	}()
	return Read(f)
}

// Read parses a log. Columns are located by header name.
func Read(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, sperrors.Wrap(sperrors.EIO, "failed to read log", err)
		}
		return nil, sperrors.New(sperrors.EReplayData, "log is empty")
	}
	index, err := headerIndex(scanner.Text())
	if err != nil {
		return nil, err
	}

	var records []Record
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != len(index) {
			return nil, lineError(line, "expected "+strconv.Itoa(len(index))+" fields, got "+strconv.Itoa(len(fields)), nil)
		}
		row := func(name string) string { return fields[index[name]] }
		rec, err := parseRecord(row)
		if err != nil {
			return nil, lineError(line, "malformed row", err)
		}
		rec.Seq = len(records) + 1
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, sperrors.Wrap(sperrors.EIO, "failed to read log", err)
	}
	return records, nil
}

func headerIndex(line string) (map[string]int, error) {
	names := strings.Split(strings.TrimRight(line, "\r"), "\t")
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	for _, name := range Header {
		if _, ok := index[name]; !ok {
			return nil, sperrors.Newf(sperrors.EReplayData, "log header is missing column %q", name)
		}
	}
	return index, nil
}

func parseRecord(row func(string) string) (Record, error) {
	var rec Record
	var err error
	if rec.Onset, err = parseOptFloat(row("onset")); err != nil {
		return Record{}, err
	}
	if rec.Duration, err = strconv.ParseFloat(row("duration"), 64); err != nil {
		return Record{}, err
	}
	if rec.Trial, err = parseOptInt(row("trial")); err != nil {
		return Record{}, err
	}
	if rec.Action, err = parseAction(row("action_type"), row("action")); err != nil {
		return Record{}, err
	}
	if rec.Outcome, err = parseOptFloat(row("outcome")); err != nil {
		return Record{}, err
	}
	if rec.ResponseTime, err = parseOptFloat(row("response_time")); err != nil {
		return Record{}, err
	}
	if rec.Trigger, err = parseTrigger(row("event_value")); err != nil {
		return Record{}, err
	}
	if rec.Columns, err = parseColumns(row); err != nil {
		return Record{}, err
	}
	rec.Version = row("version")
	if rec.Reset, err = parseReset(row("reset")); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func parseAction(typ, index string) (*action.Action, error) {
	if typ == NA && index == NA {
		return nil, nil
	}
	if typ == NA || index == NA {
		return nil, sperrors.New(sperrors.EReplayData, "action_type and action must both be set or both be n/a")
	}
	t, err := action.ParseType(typ)
	if err != nil {
		return nil, err
	}
	i, err := strconv.Atoi(index)
	if err != nil {
		return nil, err
	}
	a := action.Action{Type: t, Index: i}
	if _, err := a.Code(); err != nil {
		return nil, err
	}
	return &a, nil
}

func parseColumns(row func(string) string) (*payoff.Columns, error) {
	var cols payoff.Columns
	missing := 0
	for i, name := range payoff.ColumnNames {
		v := row(name)
		if v == NA {
			missing++
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		cols[i] = f
	}
	switch missing {
	case 0:
		return &cols, nil
	case len(payoff.ColumnNames):
		return nil, nil
	}
	return nil, sperrors.New(sperrors.EReplayData, "payoff setting columns are partially missing")
}

func parseTrigger(v string) (trigger.Trigger, error) {
	if v == NA {
		return trigger.None, nil
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return trigger.None, sperrors.Wrap(sperrors.EReplayData, "event_value is not a byte", err)
	}
	if n == 0 {
		return trigger.None, nil
	}
	t, ok := trigger.Decode(byte(n))
	if !ok {
		return trigger.None, sperrors.Newf(sperrors.EReplayData, "event_value %d is not a registered trigger", n)
	}
	return t, nil
}

func parseReset(v string) (bool, error) {
	switch v {
	case "1", "True", "true":
		return true, nil
	case "0", "False", "false":
		return false, nil
	}
	return false, sperrors.Newf(sperrors.EReplayData, "invalid reset value %q", v)
}

func parseOptFloat(v string) (*float64, error) {
	if v == NA {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseOptInt(v string) (*int, error) {
	if v == NA {
		return nil, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func lineError(line int, msg string, cause error) error {
	return &sperrors.Error{
		Code:    sperrors.EReplayData,
		Msg:     msg,
		Cause:   cause,
		Details: map[string]string{"line": strconv.Itoa(line)},
	}
}

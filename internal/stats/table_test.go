package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Choice", "Outcome", "Trial"}
	rows := [][]string{
		{"left", "12.5", "0"},
		{"right", "3", "10"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Choice Outcome Trial" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "left      12.5     0" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "right        3    10" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"ID"}, [][]string{{"被験者"}}, nil)
	if lines[0] != "ID    " {
		t.Fatalf("expected header padded to display width, got %q", lines[0])
	}
}

package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{" JSON ", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPrinter_Formats(t *testing.T) {
	data := NewTableData("NAME", "IN USE")
	data.AddRow("alice", "2")

	var buf bytes.Buffer
	if err := NewPrinter(&buf, FormatTable, true).Print(data); err != nil {
		t.Fatalf("table: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "alice") {
		t.Errorf("table output missing content: %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("color escape written to non-terminal: %q", out)
	}

	payload := map[string]int{"sessions": 3}

	buf.Reset()
	if err := NewPrinter(&buf, FormatJSON, false).Print(payload); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got := buf.String(); got != "{\n  \"sessions\": 3\n}\n" {
		t.Errorf("json = %q", got)
	}

	buf.Reset()
	if err := NewPrinter(&buf, FormatYAML, false).Print(payload); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if got := buf.String(); got != "sessions: 3\n" {
		t.Errorf("yaml = %q", got)
	}

	buf.Reset()
	if err := NewPrinter(&buf, FormatTable, false).Print(payload); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if !strings.Contains(buf.String(), `"sessions": 3`) {
		t.Errorf("non-table data should fall back to JSON, got %q", buf.String())
	}
}

func TestPrintKeyValues(t *testing.T) {
	var buf bytes.Buffer
	err := PrintKeyValues(&buf, []KeyValue{
		{"Principal", "alice"},
		{"Auth method", "password"},
	})
	if err != nil {
		t.Fatalf("PrintKeyValues: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Principal", "alice", "Auth method", "password"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestCells(t *testing.T) {
	if YesNo(true) != "yes" || YesNo(false) != "no" {
		t.Error("YesNo")
	}
	if EmptyOr("", "-") != "-" || EmptyOr("x", "-") != "x" {
		t.Error("EmptyOr")
	}

	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	if got := Age(time.Time{}, now); got != "-" {
		t.Errorf("Age(zero) = %q", got)
	}
	if got := Age(now.Add(-90*time.Minute), now); got != "1h30m" {
		t.Errorf("Age = %q", got)
	}

	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0ms"},
		{250 * time.Millisecond, "250ms"},
		{45 * time.Second, "45s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 3*time.Second, "5m3s"},
		{2 * time.Hour, "2h"},
		{50 * time.Hour, "2d2h"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := Duration(tt.d); got != tt.want {
			t.Errorf("Duration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

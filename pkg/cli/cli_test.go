package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"
)

func sampleTable() *Table {
	t := &Table{Headers: []string{"ID", "NAME", "USAGE"}}
	t.Append("k1", "prod", "3/1000")
	t.Append("k2", "ci, nightly", "0/1000")
	return t
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"scalar", "test message", "test message\n"},
		{"table", sampleTable(), "ID  NAME         USAGE\nk1  prod         3/1000\nk2  ci, nightly  0/1000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			if err := (&TextFormatter{}).FormatTo(buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("FormatTo() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestJSONFormatter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := NewFormatter(FormatJSON).FormatTo(buf, sampleTable()); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var out []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out) != 2 || out[1]["name"] != "ci, nightly" || out[0]["usage"] != "3/1000" {
		t.Errorf("unexpected records %v", out)
	}
}

func TestCSVFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := NewFormatter(FormatCSV).FormatTo(buf, sampleTable()); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "ID,NAME,USAGE\nk1,prod,3/1000\nk2,\"ci, nightly\",0/1000\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	if err := NewFormatter(FormatCSV).FormatTo(buf, map[string]int{"a": 1}); err == nil {
		t.Error("expected error for non-tabular CSV output")
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" csv ", FormatCSV, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("database is locked")
	cmdErr := NewCommandError("keys create", cause)
	if !errors.Is(cmdErr, cause) {
		t.Error("expected CommandError to unwrap to its cause")
	}
	if !strings.Contains(cmdErr.Error(), "keys create") {
		t.Errorf("unexpected message %q", cmdErr.Error())
	}

	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{cmdErr, ExitFailure},
		{NewConfigError("keys.max_uses", "must be positive"), ExitConfig},
		{fmt.Errorf("loading: %w", NewConfigError("server", "bad")), ExitConfig},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}

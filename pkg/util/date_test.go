package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, err := ParseTime(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, err := ParseTime(strconv.FormatInt(ts, 10))
	if err != nil {
		t.Fatal(err)
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeRejects(t *testing.T) {
	for _, s := range []string{"", "-5", "0", "soon"} {
		if _, err := ParseTime(s); err == nil {
			t.Fatalf("%q: expected error", s)
		}
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2012-01-01", "2012-01-01 00:00:00", "2012-01-01T00:00:00", "2012-01-01T00:00:00Z", "2012-01-01T02:00:00+02:00"} {
		got, err := ParseTimestamp(s)
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("%s: got %v", s, got)
		}
	}
}

func TestParseTimestampRejects(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2012-13-01", "12345"} {
		if _, err := ParseTimestamp(s); err == nil {
			t.Fatalf("%q: expected error", s)
		}
	}
}

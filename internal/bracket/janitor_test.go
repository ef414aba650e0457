package bracket

import (
	"errors"
	"testing"
	"time"

	"bracket-core/internal/task"
)

func TestParseTimeString(t *testing.T) {
	tests := []struct {
		in         string
		wantHour   int
		wantMinute int
		wantErr    bool
	}{
		{"15:45", 15, 45, false},
		{"9:30", 9, 30, false},
		{"09:30", 9, 30, false},
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"15:60", 0, 0, true},
		{"1545", 0, 0, true},
		{"", 0, 0, true},
		{"noon", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, minute, err := ParseTimeString(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTimeString(%q) succeeded, expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeString(%q) returned error: %v", tt.in, err)
			}
			if hour != tt.wantHour || minute != tt.wantMinute {
				t.Fatalf("ParseTimeString(%q)=%d:%d, expected %d:%d", tt.in, hour, minute, tt.wantHour, tt.wantMinute)
			}
		})
	}
}

func TestWithinEODWindow(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time {
		return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before", at(12, 0), false},
		{"just outside threshold", at(15, 24), false},
		{"at threshold boundary", at(15, 25), true},
		{"inside window", at(15, 40), true},
		{"at eod", at(15, 45), true},
		{"after eod", at(16, 30), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinEODWindow(tt.now, 15, 45, 20); got != tt.want {
				t.Fatalf("withinEODWindow(%v)=%v, expected %v", tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestJanitorNoOpenOrders(t *testing.T) {
	s := &fakeSession{}

	report, err := JanitorCheckAndCancel(task.New(nil), s, "AAPL", "15:45", 20)
	if err != nil {
		t.Fatalf("JanitorCheckAndCancel returned error: %v", err)
	}
	if report.Action != "none" {
		t.Fatalf("action=%q, expected none", report.Action)
	}
	if len(s.cancelledIDs) != 0 {
		t.Fatalf("sent %d cancels, expected none", len(s.cancelledIDs))
	}
}

func TestJanitorFailsOnRefreshError(t *testing.T) {
	s := &fakeSession{ordersErr: errors.New("not connected")}

	if _, err := JanitorCheckAndCancel(task.New(nil), s, "AAPL", "15:45", 20); err == nil {
		t.Fatal("expected error when open orders cannot be refreshed")
	}
}

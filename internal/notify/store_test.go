package notify

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"autodl-console/pkg/logger"
)

func TestStore_DefaultsHidden(t *testing.T) {
	s := NewStore()
	n := s.Current()
	if n.Visible {
		t.Fatalf("new store should not show anything")
	}
	if n.Severity != SeverityInfo || n.Icon != IconInfo {
		t.Fatalf("new store should start as info: %+v", n)
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	s := NewStore()
	s.Success("first", "")
	s.Error("second", "Boom")

	n := s.Current()
	if n.Message != "second" || n.Title != "Boom" || n.Severity != SeverityError || n.Icon != IconError || !n.Visible {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestStore_HelpersFixSeverityAndDefaultTitle(t *testing.T) {
	cases := []struct {
		show  func(s *Store)
		title string
		sev   Severity
		icon  string
	}{
		{func(s *Store) { s.Success("m", "") }, "Success", SeveritySuccess, IconSuccess},
		{func(s *Store) { s.Error("m", "") }, "Error", SeverityError, IconError},
		{func(s *Store) { s.Info("m", "") }, "Info", SeverityInfo, IconInfo},
		{func(s *Store) { s.Warning("m", "") }, "Warning", SeverityWarning, IconWarning},
	}
	for _, tc := range cases {
		s := NewStore()
		tc.show(s)
		n := s.Current()
		if n.Title != tc.title || n.Severity != tc.sev || n.Icon != tc.icon {
			t.Fatalf("got %+v, want title=%s severity=%s icon=%s", n, tc.title, tc.sev, tc.icon)
		}
	}
}

func TestStore_DismissKeepsContent(t *testing.T) {
	s := NewStore()
	s.Now = func() time.Time { return time.Unix(100, 0) }
	s.DownloadComplete("report.xlsx")
	s.Dismiss()

	n := s.Current()
	if n.Visible {
		t.Fatalf("expected hidden")
	}
	if !strings.Contains(n.Message, "report.xlsx") || !n.ShownAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("content should survive dismiss: %+v", n)
	}
}

func TestStore_WatchAndCancel(t *testing.T) {
	s := NewStore()
	var mu sync.Mutex
	var seen []Notification
	cancel := s.Watch(func(n Notification) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	s.Info("a", "")
	s.Dismiss()
	s.Dismiss() // already hidden, no change
	cancel()
	cancel()
	s.Info("b", "")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(seen))
	}
	if !seen[0].Visible || seen[1].Visible {
		t.Fatalf("unexpected sequence: %+v", seen)
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Info("x", "")
			_ = s.Current()
		}()
	}
	wg.Wait()
	if n := s.Current(); n.Message != "x" || !n.Visible {
		t.Fatalf("unexpected final state: %+v", n)
	}
}

func TestLogAlerter(t *testing.T) {
	var buf bytes.Buffer
	LogAlerter{Log: logger.NewWithWriter("local", &buf)}.Alert(context.Background(), Alert{Title: "Download", Body: "done", Severity: SeverityInfo})
	if !strings.Contains(buf.String(), `"body":"done"`) {
		t.Fatalf("expected alert in log, got %s", buf.String())
	}
}

func TestAlertFunc(t *testing.T) {
	var got Alert
	var a Alerter = AlertFunc(func(_ context.Context, x Alert) { got = x })
	a.Alert(context.Background(), Alert{Body: "hi"})
	if got.Body != "hi" {
		t.Fatalf("alert not delivered")
	}
}

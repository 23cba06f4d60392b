// Package notify holds the console's single toast notification and the
// blocking alert surface.
//
// There is exactly one notification at a time. A new one replaces whatever is
// showing; nothing is queued.
package notify

import (
	"sync"
	"time"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

const (
	IconSuccess = "mdi-check-circle"
	IconError   = "mdi-alert-circle"
	IconInfo    = "mdi-information"
	IconWarning = "mdi-alert"

	IconDownload = "mdi-download-check"
)

type Notification struct {
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Icon     string    `json:"icon"`
	Visible  bool      `json:"visible"`
	ShownAt  time.Time `json:"shown_at,omitempty"`
}

// Store is last-write-wins. Watchers are called after every change, outside
// the lock, with a copy of the new state.
type Store struct {
	mu       sync.Mutex
	current  Notification
	watchers map[uint64]func(Notification)
	nextID   uint64

	Now func() time.Time
}

func NewStore() *Store {
	return &Store{
		current:  Notification{Severity: SeverityInfo, Icon: IconInfo},
		watchers: map[uint64]func(Notification){},
		Now:      time.Now,
	}
}

// Show replaces the current notification and makes it visible.
func (s *Store) Show(title, message string, severity Severity, icon string) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	s.set(Notification{
		Title:    title,
		Message:  message,
		Severity: severity,
		Icon:     icon,
		Visible:  true,
		ShownAt:  now(),
	})
}

func (s *Store) Success(message, title string) {
	s.Show(orDefault(title, "Success"), message, SeveritySuccess, IconSuccess)
}

func (s *Store) Error(message, title string) {
	s.Show(orDefault(title, "Error"), message, SeverityError, IconError)
}

func (s *Store) Info(message, title string) {
	s.Show(orDefault(title, "Info"), message, SeverityInfo, IconInfo)
}

func (s *Store) Warning(message, title string) {
	s.Show(orDefault(title, "Warning"), message, SeverityWarning, IconWarning)
}

// DownloadComplete announces a finished file.
func (s *Store) DownloadComplete(fileName string) {
	s.Show("Download Complete", fileName+" has been downloaded successfully.", SeveritySuccess, IconDownload)
}

// Dismiss hides the current notification and keeps its content.
func (s *Store) Dismiss() {
	s.mu.Lock()
	if !s.current.Visible {
		s.mu.Unlock()
		return
	}
	n := s.current
	n.Visible = false
	s.mu.Unlock()
	s.set(n)
}

func (s *Store) Current() Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Watch registers fn for every subsequent change. The returned cancel is
// idempotent.
func (s *Store) Watch(fn func(Notification)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) set(n Notification) {
	s.mu.Lock()
	s.current = n
	fns := make([]func(Notification), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

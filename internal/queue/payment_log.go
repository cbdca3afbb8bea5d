package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PaymentLog appends one human-friendly line per PaymentEvent to
// <dir>/payments.log.
type PaymentLog struct {
	dir string
	mu  sync.Mutex
}

func NewPaymentLog(dir string) *PaymentLog {
	if dir == "" {
		dir = "logs"
	}
	return &PaymentLog{dir: dir}
}

// Path is the file the log is written to.
func (l *PaymentLog) Path() string { return filepath.Join(l.dir, "payments.log") }

// Handle is a Handler for the payment events queue.
func (l *PaymentLog) Handle(_ context.Context, body []byte) error {
	var ev PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" || ev.PaymentID == 0 {
		return fmt.Errorf("incomplete payment event: %q", body)
	}
	return l.Write(ev)
}

// Write formats ev and appends it to the log file.
func (l *PaymentLog) Write(ev PaymentEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(l.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatPaymentEvent(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatPaymentEvent renders the single log line for ev, newline included.
func FormatPaymentEvent(ev PaymentEvent) string {
	movies := "[]"
	if len(ev.Movies) > 0 {
		movies = "[" + strings.Join(ev.Movies, ",") + "]"
	}
	return fmt.Sprintf("[%s] %s | payment_id=%d | order_id=%d | user_id=%d | status=%s | amount=%s | external_id=%s | movies=%s\n",
		ev.OccurredAt, ev.Kind, ev.PaymentID, ev.OrderID, ev.UserID, ev.Status, ev.Amount, ev.ExternalPaymentID, movies)
}

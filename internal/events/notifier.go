package events

import (
	"context"
	"fmt"

	"autodl-console/internal/notify"
)

// Toaster is the part of notify.Store the global policy writes to.
type Toaster interface {
	Success(message, title string)
	Error(message, title string)
	Info(message, title string)
}

var _ Toaster = (*notify.Store)(nil)

// Notify applies the global toast policy to e. It reports whether a toast was shown.
func Notify(t Toaster, e Event) bool {
	switch e.Variant {
	case ProgressCompleted:
		t.Success(fmt.Sprintf("Invoice %s captured successfully.", e.Invoice()), "Download Success")
	case ProgressFailed:
		t.Error(fmt.Sprintf("Failed to capture invoice %s.", e.Invoice()), "Process Failed")
	case BatchCompleted:
		t.Info(e.Payload.Message.String(), "Batch Finished")
	default:
		return false
	}
	return true
}

// AlertFor returns the blocking alert a view raises for e, if any.
func AlertFor(e Event) (notify.Alert, bool) {
	switch e.Variant {
	case BatchCompleted:
		return notify.Alert{
			Title:    "Download Finished!",
			Body:     fmt.Sprintf("✅ Download Finished!\n\nFile: %s is ready.", e.ArtifactName()),
			Severity: notify.SeveritySuccess,
		}, true
	case BatchFailed:
		return notify.Alert{
			Title:    "Download Failed",
			Body:     fmt.Sprintf("❌ Download Failed for %s", e.ArtifactName()),
			Severity: notify.SeverityError,
		}, true
	default:
		return notify.Alert{}, false
	}
}

// Alert applies the alert policy to e.
func Alert(ctx context.Context, a notify.Alerter, e Event) bool {
	al, ok := AlertFor(e)
	if !ok {
		return false
	}
	a.Alert(ctx, al)
	return true
}

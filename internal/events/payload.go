// Package events decodes bot_update payloads and routes them to the console's
// consumers: the app-lifetime Distributor that drives toast notifications and
// per-view Scopes that raise blocking alerts.
package events

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// BotUpdate is the event name the bot server publishes progress on.
const BotUpdate = "bot_update"

// Payload is the wire shape of a bot_update. Every field is optional.
// Only type and status select the variant, so every other field is Loose and
// a mistyped value never hides a recognized event.
type Payload struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Invoice  Loose  `json:"invoice"`
	OrderID  Loose  `json:"order_id"`
	FileName Loose  `json:"file_name"`
	Message  Loose  `json:"message"`
}

// Loose accepts a JSON string or number and keeps its text. Any other JSON
// value decodes to "".
type Loose string

func (l *Loose) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Loose(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Objects, arrays and booleans are not identifiers.
		*l = ""
		return nil
	}
	*l = Loose(n.String())
	return nil
}

func (l Loose) String() string { return string(l) }

type Variant int

const (
	Unknown Variant = iota
	ProgressCompleted
	ProgressFailed
	BatchCompleted
	BatchFailed
)

func (v Variant) String() string {
	switch v {
	case ProgressCompleted:
		return "progress_completed"
	case ProgressFailed:
		return "progress_failed"
	case BatchCompleted:
		return "batch_completed"
	case BatchFailed:
		return "batch_failed"
	default:
		return "unknown"
	}
}

// Event is a decoded bot_update.
type Event struct {
	Variant Variant
	Payload Payload
}

// Parse decodes raw. Anything that is not a recognized (type, status) pair,
// including undecodable JSON, is Unknown.
func Parse(raw []byte) Event {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{Variant: Unknown}
	}
	return Event{Variant: classify(p), Payload: p}
}

func classify(p Payload) Variant {
	switch {
	case p.Type == "progress" && p.Status == "completed":
		return ProgressCompleted
	case p.Type == "progress" && p.Status == "failed":
		return ProgressFailed
	case p.Type == "status_change" && p.Status == "completed":
		return BatchCompleted
	case p.Type == "status_change" && p.Status == "failed":
		return BatchFailed
	default:
		return Unknown
	}
}

// Invoice is the invoice identifier, possibly empty.
func (e Event) Invoice() string { return e.Payload.Invoice.String() }

// ArtifactName is the display name of a batch: the file name when present,
// otherwise "Import #<order_id>".
func (e Event) ArtifactName() string {
	if name := e.Payload.FileName.String(); strings.TrimSpace(name) != "" {
		return name
	}
	return "Import #" + e.Payload.OrderID.String()
}

// OrderID returns order_id as an integer when it is one.
func (e Event) OrderID() (int64, bool) {
	n, err := strconv.ParseInt(e.Payload.OrderID.String(), 10, 64)
	return n, err == nil
}

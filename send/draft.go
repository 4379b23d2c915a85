package send

import (
	"math/big"
	"strings"
	"time"

	"github.com/dexmail/dexmail-go/core"
	"github.com/google/uuid"
)

// Draft is the compose state the pipeline consumes. It is owned by
// the caller and cleared by the pipeline only after a successful
// send.
type Draft struct {
	To              []string
	Subject         string
	Body            string
	TransferEnabled bool
	Assets          []core.Asset
}

// Empty reports whether the draft carries nothing worth saving.
func (d *Draft) Empty() bool {
	return len(d.To) == 0 && strings.TrimSpace(d.Subject) == "" && strings.TrimSpace(d.Body) == ""
}

// Reset clears all compose state.
func (d *Draft) Reset() {
	*d = Draft{}
}

// DraftRecord is a saved snapshot of a draft.
type DraftRecord struct {
	ID      string    `json:"id"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SavedAt time.Time `json:"savedAt"`
}

// Snapshot captures the draft for persistence. Empty drafts are not
// saved.
func Snapshot(d *Draft) (DraftRecord, bool) {
	if d.Empty() {
		return DraftRecord{}, false
	}
	return DraftRecord{
		ID:      "draft-" + uuid.NewString(),
		To:      strings.Join(d.To, ", "),
		Subject: d.Subject,
		Body:    d.Body,
		SavedAt: time.Now(),
	}, true
}

func parseTokenID(raw string) (*big.Int, bool) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || id.Sign() < 0 {
		return nil, false
	}
	return id, true
}

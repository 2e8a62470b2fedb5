package cherry

import (
	"context"
	"log/slog"
	"time"
)

// Warning is a single moderator warning issued to a user
type Warning struct {
	Violation string    `json:"violation"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// violationChoices are the rules a warning can cite
var violationChoices = []string{
	"一般違規",
	"NSFW 違規",
	"政治話題",
	"非法廣告",
	"洗版",
	"嚴重違規 (釣魚/騷擾)",
}

// WarningStore keeps each user's warnings in the order they were issued
type WarningStore struct {
	doc *Document[map[string][]Warning]
	now func() time.Time
}

func NewWarningStore(store KeyValueStore, logger *slog.Logger) *WarningStore {
	return &WarningStore{
		doc: NewDocument(store, documentWarnings, emptyMap[string, []Warning](), logger),
		now: time.Now,
	}
}

// Add appends a warning for the user, returning their warning count
func (w *WarningStore) Add(ctx context.Context, userID, violation, reason string) (int, error) {
	v, err := w.doc.Update(
		ctx, func(v *map[string][]Warning) error {
			(*v)[userID] = append(
				(*v)[userID],
				Warning{Violation: violation, Reason: reason, Timestamp: w.now().UTC()},
			)
			return nil
		},
	)
	if err != nil {
		return 0, err
	}
	return len(v[userID]), nil
}

// List returns the user's warnings, oldest first
func (w *WarningStore) List(ctx context.Context, userID string) []Warning {
	return w.doc.Load(ctx)[userID]
}

// PopLatest removes and returns the user's most recent warning.
// ErrNotFound is returned if the user has none.
func (w *WarningStore) PopLatest(ctx context.Context, userID string) (Warning, int, error) {
	var popped Warning
	v, err := w.doc.Update(
		ctx, func(v *map[string][]Warning) error {
			warnings := (*v)[userID]
			if len(warnings) == 0 {
				return ErrNotFound
			}
			popped = warnings[len(warnings)-1]
			if len(warnings) == 1 {
				delete(*v, userID)
			} else {
				(*v)[userID] = warnings[:len(warnings)-1]
			}
			return nil
		},
	)
	if err != nil {
		return Warning{}, 0, err
	}
	return popped, len(v[userID]), nil
}

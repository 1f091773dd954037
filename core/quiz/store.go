package quiz

import (
	"context"
	"strconv"
	"time"
)

// Selection is the question sequence presented to a learner, remembered between requests.
type Selection struct {
	QuestionIDs []int64
	StartedAt   time.Time
}

// SelectionStore keeps the current Selection of each (learner, lesson).
// A missing or expired entry is never an error: a fresh selection is made instead.
type SelectionStore interface {
	Get(ctx context.Context, key string) (Selection, bool)
	Put(ctx context.Context, key string, sel Selection)
	Delete(ctx context.Context, key string)
}

func SelectionKey(userID string, lessonID int64) string {
	return userID + ":" + strconv.FormatInt(lessonID, 10)
}

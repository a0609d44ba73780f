package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func SubmissionStateKey(submissionID uuid.UUID) string {
	return fmt.Sprintf("submission:%s", submissionID)
}

func RateLimitKey(subject string) string {
	return fmt.Sprintf("ratelimit:%s", subject)
}

func AlertDeliveryLockKey(alertID uuid.UUID) string {
	return fmt.Sprintf("lock:alert:%s", alertID)
}

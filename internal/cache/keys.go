package cache

import "fmt"

func EventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

func RateLimitKey(caller string) string {
	return fmt.Sprintf("ratelimit:%s", caller)
}

package cache

import "fmt"

func JobStatusKey(jobID string) string {
	return fmt.Sprintf("imgjobs:job:%s:status", jobID)
}

func JobOutcomeKey(jobID string) string {
	return fmt.Sprintf("imgjobs:job:%s:outcome", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("imgjobs:ratelimit:%s", client)
}

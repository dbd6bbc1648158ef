package llm

import (
	"errors"
	"testing"
)

func TestGeminiThrottleDetection(t *testing.T) {
	cases := []struct {
		err      error
		throttle bool
	}{
		{errors.New("googleapi: Error 429: Resource has been exhausted"), true},
		{errors.New("rpc error: code = ResourceExhausted desc = quota exceeded"), true},
		{errors.New("rate limit reached for model"), true},
		{errors.New("API key not valid"), false},
		{errors.New("context deadline exceeded"), false},
	}
	for _, c := range cases {
		if got := isGeminiThrottle(c.err); got != c.throttle {
			t.Errorf("isGeminiThrottle(%q) = %v, want %v", c.err, got, c.throttle)
		}
	}
}

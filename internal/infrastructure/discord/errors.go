package discord

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	nerrors "github.com/iamwavecut/ngmod/internal/errors"
)

// mapError translates REST failures into the moderation error kinds so callers
// can branch with errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		var retry time.Duration
		if rl.RateLimit != nil && rl.TooManyRequests != nil {
			retry = rl.RetryAfter
		}
		return fmt.Errorf("%w: %w", &nerrors.RateLimitError{RetryAfter: retry}, err)
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return err
	}
	switch rest.Response.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", nerrors.ErrNoPrivileges, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", nerrors.ErrNotFound, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", &nerrors.RateLimitError{RetryAfter: retryAfterHeader(rest.Response.Header)}, err)
	}
	return err
}

func retryAfterHeader(h http.Header) time.Duration {
	seconds, err := strconv.ParseFloat(h.Get("Retry-After"), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

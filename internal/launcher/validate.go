package launcher

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RawRequest is a deployment request as received.
type RawRequest struct {
	Port         *int     `json:"port,omitempty"`
	MeetingURL   string   `json:"meetingUrl"`
	NotifierURLs []string `json:"notifierUrls,omitempty"`
	BotID        string   `json:"botId,omitempty"`
}

// Request is a validated deployment request. Port is zero when the
// launcher should assign one.
type Request struct {
	Port         int
	MeetingURL   string
	NotifierURLs []string
	BotID        string
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every problem found in a request.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validate checks raw without side effects. A missing bot id is generated.
func Validate(raw RawRequest) (Request, ValidationErrors) {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	req := Request{MeetingURL: strings.TrimSpace(raw.MeetingURL), NotifierURLs: []string{}}
	if req.MeetingURL == "" {
		add("meetingUrl", "is required")
	} else if msg := checkURL(req.MeetingURL, "http", "https"); msg != "" {
		add("meetingUrl", "%s", msg)
	}

	for i, n := range raw.NotifierURLs {
		n = strings.TrimSpace(n)
		if msg := checkURL(n, "http", "https", "ws", "wss"); msg != "" {
			add(fmt.Sprintf("notifierUrls[%d]", i), "%s", msg)
			continue
		}
		req.NotifierURLs = append(req.NotifierURLs, n)
	}

	if raw.Port != nil {
		if *raw.Port < 1 || *raw.Port > 65535 {
			add("port", "must be between 1 and 65535")
		} else {
			req.Port = *raw.Port
		}
	}

	if id := strings.TrimSpace(raw.BotID); id != "" {
		u, err := uuid.Parse(id)
		if err != nil {
			add("botId", "must be a UUID")
		} else {
			req.BotID = u.String()
		}
	} else {
		req.BotID = uuid.NewString()
	}

	if len(errs) > 0 {
		return Request{}, errs
	}
	return req, nil
}

func checkURL(raw string, schemes ...string) string {
	if raw == "" {
		return "must not be empty"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid URL"
	}
	if !u.IsAbs() || u.Host == "" {
		return "must be an absolute URL"
	}
	scheme := strings.ToLower(u.Scheme)
	for _, s := range schemes {
		if scheme == s {
			return ""
		}
	}
	return fmt.Sprintf("scheme must be one of %s", strings.Join(schemes, ", "))
}

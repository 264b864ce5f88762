package kratos

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	kratosclient "github.com/ory/kratos-client-go"
)

var (
	ErrInvalidConfig = errors.New("kratos: invalid config")
	ErrNotSignedIn   = errors.New("kratos: not signed in")
	ErrUnauthorized  = errors.New("kratos: session rejected")
	ErrUnavailable   = errors.New("kratos: service unavailable")
	ErrFlowRejected  = errors.New("kratos: flow rejected")
	ErrUIDMismatch   = errors.New("kratos: session belongs to another identity")
)

// FlowError carries the messages Kratos attached to a rejected flow. Its
// Error text is the user-facing message, suitable for display.
type FlowError struct {
	FlowID   string
	Status   int
	Messages []string
}

func (e *FlowError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("request rejected (status %d)", e.Status)
	}
	return strings.Join(e.Messages, "; ")
}

func (e *FlowError) Unwrap() error { return ErrFlowRejected }

type uiText struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type flowPayload struct {
	ID string `json:"id"`
	UI struct {
		Messages []uiText `json:"messages"`
		Nodes    []struct {
			Messages []uiText `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
	Error *struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// parseFlow decodes a flow (or generic error) body returned with a non-2xx
// status. It reports the flow id and every message of type "error".
func parseFlow(body []byte) (string, []string, error) {
	var p flowPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", nil, err
	}

	var msgs []string
	collect := func(list []uiText) {
		for _, m := range list {
			if m.Type == "error" && m.Text != "" {
				msgs = append(msgs, m.Text)
			}
		}
	}
	collect(p.UI.Messages)
	for _, n := range p.UI.Nodes {
		collect(n.Messages)
	}
	if p.Error != nil {
		switch {
		case p.Error.Reason != "":
			msgs = append(msgs, p.Error.Reason)
		case p.Error.Message != "":
			msgs = append(msgs, p.Error.Message)
		}
	}
	return p.ID, msgs, nil
}

// classify maps a generated-client failure onto this package's errors.
func classify(resp *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var apiErr *kratosclient.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		if id, msgs, perr := parseFlow(apiErr.Body()); perr == nil {
			return &FlowError{FlowID: id, Status: resp.StatusCode, Messages: msgs}
		}
	}
	return &FlowError{Status: resp.StatusCode}
}

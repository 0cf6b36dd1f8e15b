package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/uts-client/pkg/pagination"
)

// envelope is the UTS response wrapper common to all REST endpoints.
type envelope struct {
	PageSize   *int            `json:"pageSize"`
	PageNumber *int            `json:"pageNumber"`
	PageCount  *int            `json:"pageCount"`
	RecCount   *int            `json:"recCount"`
	Result     json.RawMessage `json:"result"`
	Error      json.RawMessage `json:"error"`
	Status     json.RawMessage `json:"status"`
}

// decodePage parses a UTS body into a Page. requested and pageSize are the
// values sent with the request; they fill in what the response omits.
func decodePage(body []byte, requested, pageSize int) (*pagination.Page, error) {
	text := strings.ToValidUTF8(string(body), "\uFFFD")

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, err
	}

	p := &pagination.Page{
		Number:   requested,
		Count:    1,
		RecCount: env.RecCount,
		Result:   env.Result,
		Body:     body,
	}

	if msg := serviceError(&env); msg != "" {
		p.ServiceError = msg
		return p, nil
	}

	if env.PageNumber != nil {
		p.Number = *env.PageNumber
	}

	size := pageSize
	if env.PageSize != nil && *env.PageSize > 0 {
		size = *env.PageSize
	}

	switch {
	case env.PageCount != nil:
		p.Count = *env.PageCount
	case env.RecCount != nil && size > 0:
		p.Count = (*env.RecCount + size - 1) / size
	}

	return p, nil
}

// serviceError extracts the structured error indicator, if any: a non-empty
// "error" member, or a numeric "status" >= 400 on a body without "result".
func serviceError(env *envelope) string {
	if raw := bytes.TrimSpace(env.Error); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg
			}
		} else if !bytes.Equal(raw, []byte("false")) {
			return string(raw)
		}
	}

	if len(env.Result) == 0 {
		if status, err := strconv.Atoi(strings.Trim(string(bytes.TrimSpace(env.Status)), `"`)); err == nil && status >= 400 {
			return http.StatusText(status)
		}
	}

	return ""
}

func pageResult(raw json.RawMessage) *pagination.Page {
	return &pagination.Page{Result: raw}
}

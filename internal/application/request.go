package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

// RequestSpec describes one API call. Path is relative to the API base URL.
type RequestSpec struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// Public requests are sent without a credential and never refreshed.
	Public bool
}

func Get(path string, query url.Values) RequestSpec {
	return RequestSpec{Method: http.MethodGet, Path: path, Query: query}
}

func Post(path string, body any) RequestSpec {
	return RequestSpec{Method: http.MethodPost, Path: path, Body: body}
}

func Patch(path string, body any) RequestSpec {
	return RequestSpec{Method: http.MethodPatch, Path: path, Body: body}
}

func Delete(path string) RequestSpec {
	return RequestSpec{Method: http.MethodDelete, Path: path}
}

// Response is a fully read API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r Response) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// Err returns a *domain.APIError for non-2xx responses and nil otherwise.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return domain.ParseAPIError(r.Status, r.Body)
}

// Decode checks the status and unmarshals the body into v. An empty body
// leaves v untouched.
func (r Response) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(bytes.TrimSpace(r.Body)) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type paginatedList struct {
	Results json.RawMessage `json:"results"`
}

// DecodeList accepts both a bare JSON array and the paginated
// {"count": n, "results": [...]} envelope.
func (r Response) DecodeList(v any) error {
	if err := r.Err(); err != nil {
		return err
	}

	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 {
		return nil
	}

	if body[0] == '{' {
		var page paginatedList
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode paginated response: %w", err)
		}
		if page.Results == nil {
			return errors.New("decode paginated response: missing results")
		}
		body = page.Results
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode list response: %w", err)
	}
	return nil
}

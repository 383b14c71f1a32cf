// Package apiurl resolves endpoint paths against the configured API base URL.
package apiurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Resolve joins path onto baseURL. The base is treated as a directory even
// without a trailing slash, so "http://h/api" + "auth/token/" gives
// "http://h/api/auth/token/".
func Resolve(baseURL string, path string, query url.Values) (string, error) {
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := parseBase(baseURL)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	endpoint, err := parsed.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	return endpoint.String(), nil
}

// ValidateBase checks that baseURL is an absolute http(s) URL.
func ValidateBase(baseURL string) error {
	_, err := parseBase(baseURL)
	return err
}

func parseBase(baseURL string) (*url.URL, error) {
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("api base url host is required")
	}
	return parsed, nil
}

// SamePath reports whether two endpoint paths name the same resource,
// ignoring leading and trailing slashes.
func SamePath(a, b string) bool {
	return strings.Trim(a, "/") == strings.Trim(b, "/")
}

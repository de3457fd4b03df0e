package core

import (
	"net/url"
	"strconv"
	"strings"
)

// Query parameters carried on stream locators.
const (
	TokenParam     = "token"
	CacheBustParam = "ts"
)

// AbsoluteURL joins path onto base unless path is already absolute.
func AbsoluteURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	root := NormalizeEndpoint(base)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return root + path
}

// WithToken sets the bearer token as a query parameter so backends that
// cannot send headers can still authenticate.
func WithToken(locator, token string) string {
	if token == "" {
		return locator
	}
	return setParam(locator, TokenParam, token)
}

// CacheBust sets a fresh ts parameter, replacing any previous one.
func CacheBust(locator string, stamp int64) string {
	return setParam(locator, CacheBustParam, strconv.FormatInt(stamp, 10))
}

func setParam(locator, key, value string) string {
	u, err := url.Parse(locator)
	if err != nil {
		sep := "?"
		if strings.Contains(locator, "?") {
			sep = "&"
		}
		return locator + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

package identity

import (
	"net/url"
	"strings"
)

// LinkBuilder turns tokens into the URLs sent by email
type LinkBuilder struct {
	BaseURL string
}

// NewLinkBuilder creates a builder rooted at baseURL
func NewLinkBuilder(baseURL string) LinkBuilder {
	return LinkBuilder{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Link appends the query escaped token as the hash query parameter
func (b LinkBuilder) Link(destination, token string) string {
	if destination != "" && !strings.HasPrefix(destination, "/") {
		destination = "/" + destination
	}

	sep := "?"
	if strings.Contains(destination, "?") {
		sep = "&"
	}

	return b.BaseURL + destination + sep + "hash=" + url.QueryEscape(token)
}

package syftrpc

import (
	"fmt"
	"net/url"
	"strings"
)

// JoinURLs joins a base and a path with exactly one slash between them.
// One trailing slash is stripped from base and one leading slash from path.
func JoinURLs(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	path = strings.TrimPrefix(path, "/")
	return base + "/" + path
}

// RoutedURL builds the logical address of a router action:
// syft://{author}/app_data/{router}/rpc/{action}
func RoutedURL(author, router, action string) string {
	return fmt.Sprintf("%s://%s/app_data/%s/rpc/%s", routedScheme, author, router, action)
}

// searchURL is the routed search address with the query embedded.
func searchURL(author, router, query string) string {
	return RoutedURL(author, router, ActionSearch) + "?query=" + url.QueryEscape(query)
}

// submitURL returns the submission endpoint for a routed URL.
func submitURL(serverURL, routed, from string) string {
	q := url.Values{}
	q.Set("x-syft-url", routed)
	q.Set("x-syft-from", from)
	return JoinURLs(serverURL, sendPath) + "?" + q.Encode()
}

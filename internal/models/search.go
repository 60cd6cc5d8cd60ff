package models

// SearchMetadata describes where a search passage came from.
type SearchMetadata struct {
	Filename string `json:"filename,omitempty"`
}

// SearchResult is a passage returned by a search router.
type SearchResult struct {
	Content  string         `json:"content"`
	Metadata SearchMetadata `json:"metadata"`
}

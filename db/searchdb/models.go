package searchdb

import (
	"errors"
	"time"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is one mod as the search engine sees it. Display fields are
// copied from the primary store when the document is built and may lag it.
type Document struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Categories        []string  `json:"categories"`
	Downloads         int64     `json:"downloads"`
	Follows           int64     `json:"follows"`
	PageURL           string    `json:"page_url"`
	IconURL           string    `json:"icon_url"`
	Author            string    `json:"author"`
	AuthorURL         string    `json:"author_url"`
	DateCreated       time.Time `json:"date_created"`
	CreatedTimestamp  int64     `json:"created_timestamp"`
	DateModified      time.Time `json:"date_modified"`
	ModifiedTimestamp int64     `json:"modified_timestamp"`
	IsNSFW            bool      `json:"is_nsfw"`
	Host              string    `json:"host"`
	Slug              string    `json:"slug,omitempty"`
}

// DocumentID builds the index key of an entity. The host tag keeps ids from
// different content sources apart when they share an index.
func DocumentID(hostTag string, entityID string) string {
	return hostTag + "-" + entityID
}

type Result struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Categories  []string `json:"categories"`
	Downloads   int64    `json:"downloads"`
	PageURL     string   `json:"page_url"`
	IconURL     string   `json:"icon_url"`
	Score       float64  `json:"score"`
}

type Response struct {
	Results    []Result `json:"results"`
	Total      uint64   `json:"total"`
	MaxScore   float64  `json:"max_score"`
	SearchTime string   `json:"search_time"`
}

package searchdb

import (
	"log/slog"
	"os"
	"time"

	"github.com/meghashyamc/modsearch/logger"
)

func newTestLogger() logger.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler)
}

func testDocument(id string, title string, description string, categories ...string) Document {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	modified := created.Add(48 * time.Hour)

	return Document{
		ID:                id,
		Title:             title,
		Description:       description,
		Categories:        categories,
		Downloads:         42,
		Follows:           7,
		PageURL:           "https://mods.example.com/mod/" + id,
		IconURL:           "https://cdn.example.com/" + id + ".png",
		Author:            "alice",
		AuthorURL:         "https://mods.example.com/user/1C",
		DateCreated:       created,
		CreatedTimestamp:  created.Unix(),
		DateModified:      modified,
		ModifiedTimestamp: modified.Unix(),
		Host:              "local",
	}
}

func testHostDocument(host string, id string, title string, description string) Document {
	doc := testDocument(id, title, description)
	doc.Host = host
	return doc
}

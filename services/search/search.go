package search

import (
	"context"
	"strings"

	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
)

type Searcher interface {
	Search(ctx context.Context, queryString string, limit int, offset int) (*searchdb.Response, error)
}

type Service struct {
	logger logger.Logger
	db     Searcher
}

func New(logger logger.Logger, db Searcher) *Service {
	return &Service{
		logger: logger,
		db:     db,
	}
}

func (s *Service) Search(ctx context.Context, query string, limit int, offset int) (*searchdb.Response, error) {
	response, err := s.db.Search(ctx, strings.TrimSpace(query), limit, offset)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search finished", "query", query, "total", response.Total, "took", response.SearchTime)
	return response, nil
}

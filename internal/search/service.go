package search

import (
	"context"
	"log"
)

// Service is the facade that tries the index first and falls back to the
// source of record.
type Service struct {
	index  Index
	source Source
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pg *PgUsers) *Service {
	s := &Service{}
	if meili != nil {
		s.index = meili
	}
	if pg != nil {
		s.source = pg
	}
	return s
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// SearchUsers tries Meilisearch if healthy, otherwise falls back to Postgres.
// Empty queries always go to Postgres so results come back ordered by name.
func (s *Service) SearchUsers(ctx context.Context, q Query) []UserRecord {
	if q.Text != "" && s.indexReady() {
		users, err := s.index.SearchUsers(ctx, q)
		if err == nil {
			return nonNil(users)
		}
		log.Printf("search: index error, falling back to source: %v", err)
	}

	if s.source == nil {
		return []UserRecord{}
	}
	users, err := s.source.SearchUsers(ctx, q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return []UserRecord{}
	}
	return nonNil(users)
}

// IndexUser indexes a user (fire-and-forget to Meilisearch).
func (s *Service) IndexUser(u UserRecord) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.IndexUser(u); err != nil {
			log.Printf("search: index user %s: %v", u.ID, err)
		}
	}()
}

// ReindexAllFromPG pushes every user from PostgreSQL into Meilisearch and
// reports how many were sent.
func (s *Service) ReindexAllFromPG(ctx context.Context) int {
	if !s.indexReady() || s.source == nil {
		return 0
	}
	users, err := s.source.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return 0
	}
	if err := s.index.IndexUsers(users); err != nil {
		log.Printf("search: reindex users: %v", err)
		return 0
	}
	return len(users)
}

// Close stops the index health loop, if any.
func (s *Service) Close() {
	if s.index != nil {
		s.index.Close()
	}
}

func nonNil(r []UserRecord) []UserRecord {
	if r == nil {
		return []UserRecord{}
	}
	return r
}

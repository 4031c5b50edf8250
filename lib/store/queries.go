package store

import (
	"context"
	"regexp"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/query"
)

// --------------------------------------------------------------------------
// Queries (the store is its own query.Source)
// --------------------------------------------------------------------------

func (s *storeImpl) Search(ctx context.Context, term any, property string) ([]db.Row, error) {
	return query.Search(ctx, s, term, property)
}

func (s *storeImpl) In(ctx context.Context, term any, property, key string) ([]db.Row, error) {
	return query.In(ctx, s, term, property, key)
}

func (s *storeImpl) Between(ctx context.Context, min, max float64, property, key string) ([]db.Row, error) {
	return query.Between(ctx, s, min, max, property, key)
}

func (s *storeImpl) StartsWith(ctx context.Context, q, key string) ([]db.Row, error) {
	return query.StartsWith(ctx, s, q, key)
}

func (s *storeImpl) EndsWith(ctx context.Context, q, key string) ([]db.Row, error) {
	return query.EndsWith(ctx, s, q, key)
}

func (s *storeImpl) Regex(ctx context.Context, pattern *regexp.Regexp, property, key string) ([]db.Row, error) {
	return query.Regex(ctx, s, pattern, property, key)
}

func (s *storeImpl) Compare(ctx context.Context, property, operator string, v any, key string) ([]db.Row, error) {
	return query.Compare(ctx, s, property, operator, v, key)
}

func (s *storeImpl) Custom(ctx context.Context, fn query.Predicate, key string) ([]db.Row, error) {
	return query.Custom(ctx, s, fn, key)
}

package option

import (
	"fmt"
	"strings"

	"racestay-engine/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithSortBy orders the query by an allow-listed column. An empty SortBy
// falls back to created_at so cursorless listings stay deterministic.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" {
			column = "created_at"
		}
		if s.Allow != nil && !s.Allow[column] {
			column = "created_at"
		}

		direction := "ASC"
		if strings.EqualFold(s.OrderBy, "desc") {
			direction = "DESC"
		}

		return db.Order(fmt.Sprintf("%s %s", column, direction))
	}
}

// LockingUpdate is the scope form of WithLockingUpdate, usable with
// tx.Scopes. It is a no-op on sqlite, which has no row-level locks and
// serializes writers at the connection level instead.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// WithLockingUpdate appends SELECT ... FOR UPDATE to the query.
func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// ApplyOperator adds a comparison condition that the struct-based query
// syntax cannot express.
func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	}
}

// ApplyPagination limits the result set from a pagination request.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if p.Limit > 0 {
			db = db.Limit(p.Limit)
		}
		return db
	}
}

// Apply runs all options against the query.
func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

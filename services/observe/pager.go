package observe

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/storage"
)

// Paging limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 1000
	maxOffset       = math.MaxInt32
)

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
}

// Page is one page of records with the facets of the unpaged result set.
type Page[T any] struct {
	Records    []T                 `json:"records"`
	Pagination Pagination          `json:"pagination"`
	Facets     map[string][]string `json:"facets"`
}

// FacetSpec names one facet: the distinct values of Column among rows
// matching Where. Where is usually a subset of the request's filters, so a
// facet is not narrowed by its own selection.
type FacetSpec struct {
	Name   string
	Column string
	// Keys are map entries projected alongside Column. Column may be empty
	// when Keys are set, in which case Label is required.
	Keys  []query.KeyColumn
	Where query.Expr
	// Label maps a row to its facet value. Defaults to the column text.
	Label func(query.Row) string
}

// Pager runs faceted, paginated listings over one table.
type Pager[T any] struct {
	engine storage.Engine
	schema *query.Schema
	decode func(query.Row) T
}

// NewPager creates a pager for schema decoding rows with decode.
func NewPager[T any](engine storage.Engine, schema *query.Schema, decode func(query.Row) T) *Pager[T] {
	return &Pager[T]{
		engine: engine,
		schema: schema,
		decode: decode,
	}
}

// validatePage rejects out-of-range paging before any storage work.
func validatePage(req PageRequest) error {
	if req.Page < 1 {
		return invalidf("page must be at least 1, got %d", req.Page)
	}
	if req.PageSize < 1 || req.PageSize > MaxPageSize {
		return invalidf("pageSize must be between 1 and %d, got %d", MaxPageSize, req.PageSize)
	}
	if int64(req.Page-1)*int64(req.PageSize) > maxOffset {
		return invalidf("page %d is out of range", req.Page)
	}
	return nil
}

// Fetch returns one page of rows matching where, the total match count, and
// the requested facets. The page, count and facet queries run concurrently;
// if any of them fails the whole request fails.
func (p *Pager[T]) Fetch(ctx context.Context, where query.Expr, req PageRequest, order query.Order, facets []FacetSpec) (*Page[T], error) {
	if err := validatePage(req); err != nil {
		return nil, err
	}
	if err := where.Validate(p.schema); err != nil {
		return nil, err
	}
	for _, f := range facets {
		if err := f.Where.Validate(p.schema); err != nil {
			return nil, fmt.Errorf("facet %s: %w", f.Name, err)
		}
	}

	var (
		rows        []query.Row
		total       int64
		facetValues = make([][]string, len(facets))
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		rows, err = p.engine.Execute(gctx, query.Query{
			Schema:  p.schema,
			Where:   where,
			OrderBy: []query.Order{order},
			Limit:   req.PageSize,
			Offset:  (req.Page - 1) * req.PageSize,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch %s page: %w", p.schema.Table, err)
		}
		return nil
	})

	g.Go(func() error {
		counted, err := p.engine.Execute(gctx, query.Query{
			Schema: p.schema,
			Where:  where,
			Count:  true,
		})
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", p.schema.Table, err)
		}
		if len(counted) > 0 {
			total = counted[0].Int64(query.CountColumn)
		}
		return nil
	})

	for i, f := range facets {
		g.Go(func() error {
			values, err := p.facet(gctx, f)
			if err != nil {
				return fmt.Errorf("failed to load facet %s: %w", f.Name, err)
			}
			facetValues[i] = values
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := &Page[T]{
		Records: make([]T, 0, len(rows)),
		Pagination: Pagination{
			CurrentPage: req.Page,
			PageSize:    req.PageSize,
			TotalPages:  totalPages(total, req.PageSize),
			TotalCount:  total,
		},
		Facets: make(map[string][]string, len(facets)),
	}
	for _, row := range rows {
		page.Records = append(page.Records, p.decode(row))
	}
	for i, f := range facets {
		page.Facets[f.Name] = facetValues[i]
	}
	return page, nil
}

func (p *Pager[T]) facet(ctx context.Context, f FacetSpec) ([]string, error) {
	q := query.Query{
		Schema:   p.schema,
		Keys:     f.Keys,
		Where:    f.Where,
		Distinct: true,
	}
	if f.Column != "" {
		q.Columns = []string{f.Column}
		q.OrderBy = []query.Order{{Column: f.Column}}
	}
	rows, err := p.engine.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	label := f.Label
	if label == nil {
		label = func(row query.Row) string { return row.String(f.Column) }
	}

	seen := make(map[string]bool, len(rows))
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		v := label(row)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// totalPages is ceil(total / pageSize).
func totalPages(total int64, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

package templates

import (
	"context"
	"slices"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/platform/pagination"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListOptions selects and pages templates. Status, Category and Tags are
// exact matches combined with Filter, an AIP-160 expression.
type ListOptions struct {
	Status    template.Status
	Category  string
	Tags      []string
	Filter    string
	PageSize  int
	PageToken string

	all bool
}

// Pagination describes the returned page.
type Pagination struct {
	Total         int    `json:"total"`
	PageSize      int    `json:"pageSize"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// Page is one page of templates.
type Page struct {
	Templates  []template.Template `json:"templates"`
	Pagination Pagination          `json:"pagination"`
}

// List returns templates matching opts, most recently updated first.
func (r *Repository) List(ctx context.Context, opts ListOptions) (Page, error) {
	filter, err := parseFilter(opts.Filter)
	if err != nil {
		return Page{}, err
	}
	pageSize := pagination.ClampPageSize(opts.PageSize, pagination.PageSizeConfig{Default: defaultPageSize, Max: maxPageSize})
	checksum := pagination.Checksum(
		string(opts.Status),
		strings.ToLower(opts.Category),
		strings.ToLower(strings.Join(opts.Tags, ",")),
		opts.Filter,
		strconv.Itoa(pageSize),
	)
	token, err := pagination.ParsePageToken(opts.PageToken, checksum)
	if err != nil {
		return Page{}, apperrors.Validation("invalid page token", []apperrors.Violation{{
			Path:    "page_token",
			Rule:    "format",
			Message: err.Error(),
		}})
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return Page{}, ErrClosed
	}
	matched := make([]template.Template, 0, len(r.byID))
	for _, t := range r.byID {
		if !matchesOptions(t, opts) {
			continue
		}
		ok, err := matches(filter, t)
		if err != nil {
			r.mu.RUnlock()
			return Page{}, apperrors.Validation("invalid filter", []apperrors.Violation{{
				Path:    "filter",
				Rule:    "evaluate",
				Message: err.Error(),
			}})
		}
		if ok {
			matched = append(matched, t.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b template.Template) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := len(matched)
	if opts.all {
		return Page{Templates: matched, Pagination: Pagination{Total: total, PageSize: total}}, nil
	}
	start := min(token.Offset, total)
	end := min(start+pageSize, total)
	return Page{
		Templates: matched[start:end],
		Pagination: Pagination{
			Total:         total,
			PageSize:      pageSize,
			NextPageToken: token.Next(pageSize, total),
		},
	}, nil
}

func matchesOptions(t template.Template, opts ListOptions) bool {
	if opts.Status != template.StatusUnspecified && t.Status != opts.Status {
		return false
	}
	if opts.Category != "" && !strings.EqualFold(t.Category, opts.Category) {
		return false
	}
	for _, tag := range opts.Tags {
		if strings.TrimSpace(tag) != "" && !t.HasTag(strings.TrimSpace(tag)) {
			return false
		}
	}
	return true
}

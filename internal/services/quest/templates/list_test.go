package templates

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
)

func seedListRepo(t *testing.T) (*Repository, []template.Template) {
	t.Helper()
	repo := openTestRepo(t, newMemStore())
	ctx := context.Background()

	seeds := []struct {
		name     string
		category string
		tags     []string
		score    int
		publish  bool
	}{
		{"Budget Basics", "finance", []string{"money", "beginner"}, 75, true},
		{"Kitchen Knights", "cooking", []string{"food"}, 20, false},
		{"Savings Siege", "finance", []string{"money", "advanced"}, 300, true},
		{"Garden Guardians", "outdoors", []string{"plants", "beginner"}, 40, true},
	}
	var created []template.Template
	for _, seed := range seeds {
		draft := ledgerDraft()
		draft.Name = seed.name
		draft.Category = seed.category
		draft.Tags = seed.tags
		draft.Quest.Reward.Score = seed.score
		tpl, err := repo.Create(ctx, draft, "ada")
		if err != nil {
			t.Fatalf("create %s: %v", seed.name, err)
		}
		if seed.publish {
			if tpl, err = repo.Publish(ctx, tpl.ID); err != nil {
				t.Fatalf("publish %s: %v", seed.name, err)
			}
		}
		created = append(created, tpl)
	}
	return repo, created
}

func names(page Page) []string {
	out := make([]string, 0, len(page.Templates))
	for _, tpl := range page.Templates {
		out = append(out, tpl.Name)
	}
	return out
}

func TestListSortedByMostRecentlyUpdated(t *testing.T) {
	repo, _ := seedListRepo(t)
	page, err := repo.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := names(page)
	want := []string{"Garden Guardians", "Savings Siege", "Kitchen Knights", "Budget Basics"}
	if len(got) != len(want) {
		t.Fatalf("names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
	if page.Pagination.Total != 4 || page.Pagination.NextPageToken != "" {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}
}

func TestListFilters(t *testing.T) {
	repo, _ := seedListRepo(t)
	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{name: "status", opts: ListOptions{Status: template.StatusDraft}, want: []string{"Kitchen Knights"}},
		{name: "category", opts: ListOptions{Category: "FINANCE"}, want: []string{"Savings Siege", "Budget Basics"}},
		{name: "tags all required", opts: ListOptions{Tags: []string{"money", "beginner"}}, want: []string{"Budget Basics"}},
		{name: "filter equals", opts: ListOptions{Filter: `category = "outdoors"`}, want: []string{"Garden Guardians"}},
		{name: "filter has tag", opts: ListOptions{Filter: `tags:"beginner"`}, want: []string{"Garden Guardians", "Budget Basics"}},
		{name: "filter name substring", opts: ListOptions{Filter: `name:"siege"`}, want: []string{"Savings Siege"}},
		{name: "filter int compare", opts: ListOptions{Filter: `reward_score >= 75 AND status = "published"`}, want: []string{"Savings Siege", "Budget Basics"}},
		{name: "filter or", opts: ListOptions{Filter: `category = "cooking" OR category = "outdoors"`}, want: []string{"Garden Guardians", "Kitchen Knights"}},
		{name: "filter not", opts: ListOptions{Filter: `NOT category = "finance"`}, want: []string{"Garden Guardians", "Kitchen Knights"}},
		{name: "combined", opts: ListOptions{Status: template.StatusPublished, Filter: `tags:"money"`}, want: []string{"Savings Siege", "Budget Basics"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(context.Background(), tt.opts)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			got := names(page)
			if len(got) != len(tt.want) {
				t.Fatalf("names = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("names = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestListInvalidFilter(t *testing.T) {
	repo, _ := seedListRepo(t)
	for _, filter := range []string{`unknown_field = "x"`, `name = `, `step_count = "two"`} {
		_, err := repo.List(context.Background(), ListOptions{Filter: filter})
		if apperrors.CodeOf(err) != apperrors.CodeValidationFailed {
			t.Fatalf("filter %q: expected validation error, got %v", filter, err)
		}
	}
}

func TestListPagination(t *testing.T) {
	repo, _ := seedListRepo(t)
	ctx := context.Background()

	first, err := repo.List(ctx, ListOptions{PageSize: 3})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Templates) != 3 || first.Pagination.NextPageToken == "" || first.Pagination.PageSize != 3 {
		t.Fatalf("unexpected first page %+v", first.Pagination)
	}

	second, err := repo.List(ctx, ListOptions{PageSize: 3, PageToken: first.Pagination.NextPageToken})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Templates) != 1 || second.Templates[0].Name != "Budget Basics" || second.Pagination.NextPageToken != "" {
		t.Fatalf("unexpected second page %v %+v", names(second), second.Pagination)
	}

	_, err = repo.List(ctx, ListOptions{PageSize: 3, Category: "finance", PageToken: first.Pagination.NextPageToken})
	if apperrors.CodeOf(err) != apperrors.CodeValidationFailed {
		t.Fatalf("expected token bound to query, got %v", err)
	}
	_, err = repo.List(ctx, ListOptions{PageToken: "%%%"})
	if apperrors.CodeOf(err) != apperrors.CodeValidationFailed {
		t.Fatalf("expected malformed token rejection, got %v", err)
	}
}

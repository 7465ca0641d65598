package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/platform/id"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("template repository is closed")

// Draft is the authoring input for a new template.
type Draft struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Tags        []string            `json:"tags"`
	Quest       template.Definition `json:"quest"`
}

// Patch changes template fields. Nil fields are left untouched.
type Patch struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	Category    *string              `json:"category,omitempty"`
	Tags        *[]string            `json:"tags,omitempty"`
	Quest       *template.Definition `json:"quest,omitempty"`
}

// DeleteResult reports how Delete disposed of a template.
type DeleteResult struct {
	// Archived is true when a published template was archived instead of
	// removed.
	Archived bool               `json:"archived"`
	Template *template.Template `json:"template,omitempty"`
}

// Repository indexes quest templates in memory over a durable store.
type Repository struct {
	mu     sync.RWMutex
	store  storage.TemplateStore
	byID   map[string]template.Template
	closed bool
	now    func() time.Time
	newID  func() (string, error)
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(r *Repository) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// Open hydrates a repository from store. The repository owns store and
// closes it on Close.
func Open(ctx context.Context, store storage.TemplateStore, opts ...Option) (*Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("template store is required")
	}
	r := &Repository{
		store: store,
		byID:  make(map[string]template.Template),
		now:   time.Now,
		newID: id.NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	records, err := store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	for _, t := range records {
		r.byID[t.ID] = t
	}
	return r, nil
}

// Close releases the durable store. Later calls return ErrClosed.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.byID = nil
	return r.store.Close()
}

// Get returns one template.
func (r *Repository) Get(ctx context.Context, templateID string) (template.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return template.Template{}, ErrClosed
	}
	t, ok := r.byID[templateID]
	if !ok {
		return template.Template{}, notFound(templateID)
	}
	return t.Clone(), nil
}

// Create validates and stores a new draft template.
func (r *Repository) Create(ctx context.Context, draft Draft, author string) (template.Template, error) {
	templateID, err := r.newID()
	if err != nil {
		return template.Template{}, fmt.Errorf("generate template id: %w", err)
	}
	def, err := r.normalizeDefinition(draft.Quest)
	if err != nil {
		return template.Template{}, err
	}
	now := r.now().UTC()
	t := template.Template{
		ID:          templateID,
		Name:        strings.TrimSpace(draft.Name),
		Description: strings.TrimSpace(draft.Description),
		Version:     template.InitialVersion,
		Status:      template.StatusDraft,
		Category:    strings.TrimSpace(draft.Category),
		Tags:        normalizeTags(draft.Tags),
		Author:      strings.TrimSpace(author),
		Quest:       def,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := template.Check(template.Validate(t), "template is invalid"); err != nil {
		return template.Template{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkQuestIDLocked(t); err != nil {
		return template.Template{}, err
	}
	if err := r.putLocked(ctx, t); err != nil {
		return template.Template{}, err
	}
	return t.Clone(), nil
}

// Update applies patch to a draft or published template and revalidates it.
// Published templates must keep passing publish validation. The embedded
// quest id never changes.
func (r *Repository) Update(ctx context.Context, templateID string, patch Patch) (template.Template, error) {
	var def *template.Definition
	if patch.Quest != nil {
		normalized, err := r.normalizeDefinition(*patch.Quest)
		if err != nil {
			return template.Template{}, err
		}
		def = &normalized
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.lookupLocked(templateID)
	if err != nil {
		return template.Template{}, err
	}
	if t.Status == template.StatusArchived {
		return template.Template{}, apperrors.Validation("template is archived", []apperrors.Violation{{
			Path:    "status",
			Rule:    "immutable",
			Message: "archived templates cannot be edited",
		}})
	}
	if patch.Name != nil {
		t.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Category != nil {
		t.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Tags != nil {
		t.Tags = normalizeTags(*patch.Tags)
	}
	if def != nil {
		def.ID = t.Quest.ID
		t.Quest = *def
	}
	if err := template.Check(template.Validate(t), "template is invalid"); err != nil {
		return template.Template{}, err
	}
	if t.Status == template.StatusPublished {
		if err := template.Check(template.ValidateForPublish(t), "published template is invalid"); err != nil {
			return template.Template{}, err
		}
	}
	t.UpdatedAt = r.now().UTC()
	if err := r.putLocked(ctx, t); err != nil {
		return template.Template{}, err
	}
	return t.Clone(), nil
}

// Delete archives a published template and removes any other.
func (r *Repository) Delete(ctx context.Context, templateID string) (DeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.lookupLocked(templateID)
	if err != nil {
		return DeleteResult{}, err
	}
	if t.Status == template.StatusPublished {
		archived, err := template.Transition(t, template.StatusArchived)
		if err != nil {
			return DeleteResult{}, err
		}
		archived.UpdatedAt = r.now().UTC()
		if err := r.putLocked(ctx, archived); err != nil {
			return DeleteResult{}, err
		}
		return DeleteResult{Archived: true, Template: &archived}, nil
	}
	if err := r.store.DeleteTemplate(ctx, templateID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return DeleteResult{}, fmt.Errorf("delete template %s: %w", templateID, err)
	}
	delete(r.byID, templateID)
	return DeleteResult{}, nil
}

// Publish validates a draft for publication, bumps its patch version, and
// marks it published.
func (r *Repository) Publish(ctx context.Context, templateID string) (template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.lookupLocked(templateID)
	if err != nil {
		return template.Template{}, err
	}
	if err := template.Check(template.ValidateForPublish(t), "template cannot be published"); err != nil {
		return template.Template{}, err
	}
	published, err := template.Transition(t, template.StatusPublished)
	if err != nil {
		return template.Template{}, err
	}
	version, err := template.BumpPatch(published.Version)
	if err != nil {
		return template.Template{}, err
	}
	now := r.now().UTC()
	published.Version = version
	published.PublishedAt = &now
	published.UpdatedAt = now
	if err := r.putLocked(ctx, published); err != nil {
		return template.Template{}, err
	}
	return published.Clone(), nil
}

// Unpublish returns a published template to draft.
func (r *Repository) Unpublish(ctx context.Context, templateID string) (template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.lookupLocked(templateID)
	if err != nil {
		return template.Template{}, err
	}
	if t.Status != template.StatusPublished {
		return template.Template{}, notPublished(templateID)
	}
	draft, err := template.Transition(t, template.StatusDraft)
	if err != nil {
		return template.Template{}, err
	}
	draft.UpdatedAt = r.now().UTC()
	if err := r.putLocked(ctx, draft); err != nil {
		return template.Template{}, err
	}
	return draft.Clone(), nil
}

// Duplicate copies a template into a new draft with fresh template and quest
// ids. An empty name derives one from the source.
func (r *Repository) Duplicate(ctx context.Context, templateID, name string) (template.Template, error) {
	newTemplateID, err := r.newID()
	if err != nil {
		return template.Template{}, fmt.Errorf("generate template id: %w", err)
	}
	newQuestID, err := r.newID()
	if err != nil {
		return template.Template{}, fmt.Errorf("generate quest id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	src, err := r.lookupLocked(templateID)
	if err != nil {
		return template.Template{}, err
	}
	now := r.now().UTC()
	dup := src.Clone()
	dup.ID = newTemplateID
	dup.Quest.ID = newQuestID
	dup.Status = template.StatusDraft
	dup.Version = template.InitialVersion
	dup.PublishedAt = nil
	dup.CreatedAt = now
	dup.UpdatedAt = now
	dup.Name = strings.TrimSpace(name)
	if dup.Name == "" {
		dup.Name = src.Name + " (copy)"
	}
	if err := r.putLocked(ctx, dup); err != nil {
		return template.Template{}, err
	}
	return dup.Clone(), nil
}

// Instantiate builds an available runtime quest from the published template
// referenced by ref, which may be a template id or its quest id.
func (r *Repository) Instantiate(ctx context.Context, ref string) (quest.Quest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return quest.Quest{}, ErrClosed
	}
	t, ok := r.byID[ref]
	if !ok {
		t, ok = r.publishedByQuestIDLocked(ref)
	}
	if !ok {
		return quest.Quest{}, notFound(ref)
	}
	if t.Status != template.StatusPublished {
		return quest.Quest{}, notPublished(t.ID)
	}
	return t.Quest.Instantiate(t.ID), nil
}

// Published returns every published template, most recently updated first.
func (r *Repository) Published(ctx context.Context) ([]template.Template, error) {
	page, err := r.List(ctx, ListOptions{Status: template.StatusPublished, PageSize: maxPageSize, all: true})
	if err != nil {
		return nil, err
	}
	return page.Templates, nil
}

func (r *Repository) lookupLocked(templateID string) (template.Template, error) {
	if r.closed {
		return template.Template{}, ErrClosed
	}
	t, ok := r.byID[templateID]
	if !ok {
		return template.Template{}, notFound(templateID)
	}
	return t.Clone(), nil
}

// checkQuestIDLocked rejects a quest id already embedded in another
// template. Archived templates keep their id reserved because players may
// hold completed instances of it.
func (r *Repository) checkQuestIDLocked(t template.Template) error {
	for _, other := range r.byID {
		if other.ID != t.ID && other.Quest.ID == t.Quest.ID {
			return apperrors.Validation("template is invalid", []apperrors.Violation{{
				Path:    "quest.id",
				Rule:    "unique",
				Message: fmt.Sprintf("quest id %s is already used by template %s", t.Quest.ID, other.ID),
			}})
		}
	}
	return nil
}

// publishedByQuestIDLocked resolves a quest id to its published template.
// Records loaded from older stores may share a quest id, so the most
// recently updated one wins.
func (r *Repository) publishedByQuestIDLocked(questID string) (template.Template, bool) {
	var found template.Template
	ok := false
	for _, candidate := range r.byID {
		if candidate.Quest.ID != questID || candidate.Status != template.StatusPublished {
			continue
		}
		if !ok || candidate.UpdatedAt.After(found.UpdatedAt) ||
			(candidate.UpdatedAt.Equal(found.UpdatedAt) && candidate.ID < found.ID) {
			found, ok = candidate, true
		}
	}
	return found, ok
}

// putLocked writes through to the store before updating the index.
func (r *Repository) putLocked(ctx context.Context, t template.Template) error {
	if r.closed {
		return ErrClosed
	}
	if err := r.store.PutTemplate(ctx, t); err != nil {
		return fmt.Errorf("store template %s: %w", t.ID, err)
	}
	r.byID[t.ID] = t.Clone()
	return nil
}

// normalizeDefinition trims fields and assigns missing quest and step ids.
func (r *Repository) normalizeDefinition(def template.Definition) (template.Definition, error) {
	out := template.Definition{
		ID:             strings.TrimSpace(def.ID),
		Title:          strings.TrimSpace(def.Title),
		Description:    strings.TrimSpace(def.Description),
		RealWorldSkill: strings.TrimSpace(def.RealWorldSkill),
		FantasyTheme:   strings.TrimSpace(def.FantasyTheme),
		Reward:         quest.Reward{Score: max(def.Reward.Score, 0), Items: append([]string(nil), def.Reward.Items...)},
	}
	if out.ID == "" {
		questID, err := r.newID()
		if err != nil {
			return template.Definition{}, fmt.Errorf("generate quest id: %w", err)
		}
		out.ID = questID
	}
	for i, step := range def.Steps {
		step.ID = strings.TrimSpace(step.ID)
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
		step.Title = strings.TrimSpace(step.Title)
		step.Description = strings.TrimSpace(step.Description)
		step.RealWorldSkill = strings.TrimSpace(step.RealWorldSkill)
		step.FantasyTheme = strings.TrimSpace(step.FantasyTheme)
		step.ValidationCriteria = append([]string(nil), step.ValidationCriteria...)
		out.Steps = append(out.Steps, step)
	}
	return out, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func notFound(templateID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeNotFound,
		fmt.Sprintf("template %s not found", templateID),
		map[string]string{"TemplateID": templateID},
	)
}

func notPublished(templateID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeTemplateNotPublished,
		fmt.Sprintf("template %s is not published", templateID),
		map[string]string{"TemplateID": templateID},
	)
}

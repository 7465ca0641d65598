// Package codec encodes quest instances into the versioned blobs kept in the
// record store. The wire shapes here are independent of the domain types so
// either side can change without breaking stored data.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
)

// CurrentVersion is written by Encode.
const CurrentVersion = 1

var (
	// ErrUnsupportedVersion indicates a blob written by a newer codec.
	ErrUnsupportedVersion = errors.New("unsupported quest codec version")
	// ErrEmpty indicates an empty blob.
	ErrEmpty = errors.New("empty quest blob")
)

type envelope struct {
	Version int             `json:"v"`
	Quest   json.RawMessage `json:"quest"`
}

type questV1 struct {
	ID          string   `json:"id"`
	TemplateID  string   `json:"templateId,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Steps       []stepV1 `json:"steps"`
	Reward      rewardV1 `json:"reward"`
	StartedAt   int64    `json:"startedAt,omitempty"`
	CompletedAt int64    `json:"completedAt,omitempty"`
}

type stepV1 struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Completed   bool           `json:"completed"`
	Data        map[string]any `json:"data,omitempty"`
}

type rewardV1 struct {
	Score int      `json:"score"`
	Items []string `json:"items,omitempty"`
}

// Encode serializes q with the current codec version.
func Encode(q quest.Quest) ([]byte, error) {
	body, err := json.Marshal(toV1(q))
	if err != nil {
		return nil, fmt.Errorf("encode quest %s: %w", q.ID, err)
	}
	return json.Marshal(envelope{Version: CurrentVersion, Quest: body})
}

// Decode parses a blob written by Encode. Blobs without a version envelope
// are read as the unversioned layout that predates it.
func Decode(data []byte) (quest.Quest, error) {
	if len(data) == 0 {
		return quest.Quest{}, ErrEmpty
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return quest.Quest{}, fmt.Errorf("decode quest envelope: %w", err)
	}
	body := env.Quest
	switch {
	case env.Version == 0 && len(body) == 0:
		body = data
	case env.Version == CurrentVersion:
	default:
		return quest.Quest{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	var wire questV1
	if err := json.Unmarshal(body, &wire); err != nil {
		return quest.Quest{}, fmt.Errorf("decode quest body: %w", err)
	}
	return fromV1(wire)
}

func toV1(q quest.Quest) questV1 {
	steps := make([]stepV1, 0, len(q.Steps))
	for _, step := range q.Steps {
		steps = append(steps, stepV1{
			ID:          step.ID,
			Description: step.Description,
			Completed:   step.Completed,
			Data:        maps.Clone(step.Data),
		})
	}
	return questV1{
		ID:          q.ID,
		TemplateID:  q.TemplateID,
		Title:       q.Title,
		Description: q.Description,
		Status:      string(q.Status),
		Steps:       steps,
		Reward:      rewardV1{Score: q.Reward.Score, Items: append([]string(nil), q.Reward.Items...)},
		StartedAt:   unixMilli(q.StartedAt),
		CompletedAt: unixMilli(q.CompletedAt),
	}
}

func fromV1(wire questV1) (quest.Quest, error) {
	if wire.ID == "" {
		return quest.Quest{}, errors.New("decode quest: missing id")
	}
	status, ok := quest.ParseStatus(wire.Status)
	if !ok {
		return quest.Quest{}, fmt.Errorf("decode quest %s: unknown status %q", wire.ID, wire.Status)
	}
	steps := make([]quest.Step, 0, len(wire.Steps))
	for _, step := range wire.Steps {
		steps = append(steps, quest.Step{
			ID:          step.ID,
			Description: step.Description,
			Completed:   step.Completed,
			Data:        step.Data,
		})
	}
	return quest.Quest{
		ID:          wire.ID,
		TemplateID:  wire.TemplateID,
		Title:       wire.Title,
		Description: wire.Description,
		Status:      status,
		Steps:       steps,
		Reward:      quest.Reward{Score: wire.Reward.Score, Items: wire.Reward.Items},
		StartedAt:   fromUnixMilli(wire.StartedAt),
		CompletedAt: fromUnixMilli(wire.CompletedAt),
	}, nil
}

func unixMilli(at *time.Time) int64 {
	if at == nil {
		return 0
	}
	return at.UnixMilli()
}

func fromUnixMilli(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	at := time.UnixMilli(ms).UTC()
	return &at
}

// Package action parses player actions into typed commands. Parsing rejects
// unknown types and malformed payloads before anything is written.
package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/session"
)

// Type names an action.
type Type string

const (
	TypeSetScore          Type = "SET_SCORE"
	TypeStartQuest        Type = "START_QUEST"
	TypeCompleteQuestStep Type = "COMPLETE_QUEST_STEP"
	TypeCompleteQuest     Type = "COMPLETE_QUEST"
	TypeFailQuest         Type = "FAIL_QUEST"
	TypeChat              Type = "CHAT"
	TypeUseItem           Type = "USE_ITEM"
	TypeChangeLocation    Type = "CHANGE_LOCATION"
)

// Action is the wire form of a player action.
type Action struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command is a parsed, validated action.
type Command interface {
	ActionType() Type
}

type SetScore struct{ Score int }

type StartQuest struct{ QuestID string }

// CompleteQuestStep targets the active quest. QuestID is optional and, when
// set, must match the active quest.
type CompleteQuestStep struct {
	QuestID string
	StepID  string
}

type CompleteQuest struct{ QuestID string }

type FailQuest struct{ QuestID string }

type Chat struct {
	Message string
	Role    session.Role
}

type UseItem struct{ ItemID string }

type ChangeLocation struct{ Location string }

func (SetScore) ActionType() Type          { return TypeSetScore }
func (StartQuest) ActionType() Type        { return TypeStartQuest }
func (CompleteQuestStep) ActionType() Type { return TypeCompleteQuestStep }
func (CompleteQuest) ActionType() Type     { return TypeCompleteQuest }
func (FailQuest) ActionType() Type         { return TypeFailQuest }
func (Chat) ActionType() Type              { return TypeChat }
func (UseItem) ActionType() Type           { return TypeUseItem }
func (ChangeLocation) ActionType() Type    { return TypeChangeLocation }

// Parse validates an action and returns its command.
func Parse(a Action) (Command, error) {
	kind := Type(strings.ToUpper(strings.TrimSpace(string(a.Type))))
	switch kind {
	case TypeSetScore:
		var p struct {
			Score *int `json:"score"`
		}
		if err := decode(a, &p); err != nil {
			return nil, err
		}
		if p.Score == nil {
			return nil, invalid(a.Type, "score is required")
		}
		if *p.Score < 0 {
			return nil, invalid(a.Type, "score must not be negative")
		}
		return SetScore{Score: *p.Score}, nil

	case TypeStartQuest:
		var p struct {
			QuestID string `json:"questId"`
		}
		if err := decode(a, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.QuestID) == "" {
			return nil, invalid(a.Type, "questId is required")
		}
		return StartQuest{QuestID: strings.TrimSpace(p.QuestID)}, nil

	case TypeCompleteQuestStep:
		var p struct {
			QuestID string `json:"questId"`
			StepID  string `json:"stepId"`
		}
		if err := decode(a, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.StepID) == "" {
			return nil, invalid(a.Type, "stepId is required")
		}
		return CompleteQuestStep{QuestID: strings.TrimSpace(p.QuestID), StepID: strings.TrimSpace(p.StepID)}, nil

	case TypeCompleteQuest, TypeFailQuest:
		var p struct {
			QuestID string `json:"questId"`
		}
		if err := decode(a, &p); err != nil {
			return nil, err
		}
		if kind == TypeFailQuest {
			return FailQuest{QuestID: strings.TrimSpace(p.QuestID)}, nil
		}
		return CompleteQuest{QuestID: strings.TrimSpace(p.QuestID)}, nil

	case TypeChat:
		var p struct {
			Message string `json:"message"`
			Role    string `json:"role"`
		}
		if err := decode(a, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Message) == "" {
			return nil, invalid(a.Type, "message is required")
		}
		role, ok := session.ParseRole(strings.ToLower(strings.TrimSpace(p.Role)))
		if !ok {
			return nil, invalid(a.Type, fmt.Sprintf("unknown role %q", p.Role))
		}
		return Chat{Message: p.Message, Role: role}, nil

	case TypeUseItem:
		var p struct {
			ItemID string `json:"itemId"`
		}
		if err := decode(a, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.ItemID) == "" {
			return nil, invalid(a.Type, "itemId is required")
		}
		return UseItem{ItemID: strings.TrimSpace(p.ItemID)}, nil

	case TypeChangeLocation:
		var p struct {
			Location string `json:"location"`
		}
		if err := decode(a, &p); err != nil {
			return nil, err
		}
		location, err := ParseLocation(p.Location)
		if err != nil {
			return nil, err
		}
		return ChangeLocation{Location: location}, nil

	default:
		return nil, apperrors.WithMetadata(
			apperrors.CodeInvalidAction,
			fmt.Sprintf("unknown action type %q", a.Type),
			map[string]string{"ActionType": string(a.Type)},
		)
	}
}

// ParseLocation trims and validates a location name. Glob characters are
// rejected because location names become store key suffixes.
func ParseLocation(value string) (string, error) {
	location := strings.TrimSpace(value)
	if location == "" {
		return "", invalid(TypeChangeLocation, "location is required")
	}
	if strings.ContainsAny(location, "*?[]") {
		return "", invalid(TypeChangeLocation, "location must not contain glob characters")
	}
	return location, nil
}

func decode(a Action, target any) error {
	payload := bytes.TrimSpace(a.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return &apperrors.Error{
			Code:     apperrors.CodeInvalidAction,
			Message:  fmt.Sprintf("malformed %s payload", a.Type),
			Metadata: map[string]string{"ActionType": string(a.Type)},
			Cause:    err,
		}
	}
	return nil
}

func invalid(t Type, message string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidAction,
		fmt.Sprintf("%s: %s", t, message),
		map[string]string{"ActionType": string(t)},
	)
}

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Stage string

const (
	StageDraft   Stage = "draft"
	StagePartial Stage = "partial"
	StageFinal   Stage = "final"
)

// ProfileExtraContextKey nests unclassified answers inside the user profile.
const ProfileExtraContextKey = "extra_context"

var ErrStageOrder = errors.New("session stage order violated")

// Session is a budget session. Snapshots are reachable only through the
// stage-aware accessors so that a final model cannot exist without a partial one.
type Session struct {
	ID                  string
	UserQuery           string
	UserProfile         map[string]any
	FoundationalContext map[string]any
	CreatedAt           time.Time
	UpdatedAt           time.Time

	stage   Stage
	draft   Draft
	partial UnifiedModel
	final   UnifiedModel
}

// NewSession создает сессию на стадии draft.
func NewSession(id string, draft Draft, now time.Time) *Session {
	return &Session{
		ID:          id,
		UserProfile: map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
		stage:       StageDraft,
		draft:       draft,
	}
}

func (s *Session) Stage() Stage {
	return s.stage
}

func (s *Session) Draft() Draft {
	return s.draft
}

// Partial возвращает частичную модель, если она уже построена.
func (s *Session) Partial() (UnifiedModel, bool) {
	if s.stage == StageDraft {
		return UnifiedModel{}, false
	}
	return s.partial.Clone(), true
}

// Final возвращает финальную модель, если ответы уже применены.
func (s *Session) Final() (UnifiedModel, bool) {
	if s.stage != StageFinal {
		return UnifiedModel{}, false
	}
	return s.final.Clone(), true
}

// SetPartial сохраняет частичную модель. Повторный вызов перезаписывает ее,
// стадия final при этом не откатывается.
func (s *Session) SetPartial(model UnifiedModel, now time.Time) {
	s.partial = model.Clone()
	if s.stage == StageDraft {
		s.stage = StagePartial
	}
	s.UpdatedAt = now
}

// SetFinal сохраняет финальную модель; требует наличия частичной.
func (s *Session) SetFinal(model UnifiedModel, now time.Time) error {
	if s.stage == StageDraft {
		return fmt.Errorf("set final on %s session: %w", s.stage, ErrStageOrder)
	}
	s.final = model.Clone()
	s.stage = StageFinal
	s.UpdatedAt = now
	return nil
}

// SessionRecord is the persisted shape of a session.
type SessionRecord struct {
	ID                  string         `json:"id"`
	Stage               Stage          `json:"stage"`
	Draft               Draft          `json:"draft"`
	Partial             *UnifiedModel  `json:"partial,omitempty"`
	Final               *UnifiedModel  `json:"final,omitempty"`
	UserQuery           string         `json:"user_query"`
	UserProfile         map[string]any `json:"user_profile"`
	FoundationalContext map[string]any `json:"foundational_context,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Record возвращает сериализуемое представление сессии.
func (s *Session) Record() SessionRecord {
	record := SessionRecord{
		ID:                  s.ID,
		Stage:               s.stage,
		Draft:               s.draft,
		UserQuery:           s.UserQuery,
		UserProfile:         s.UserProfile,
		FoundationalContext: s.FoundationalContext,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
	if partial, ok := s.Partial(); ok {
		record.Partial = &partial
	}
	if final, ok := s.Final(); ok {
		record.Final = &final
	}
	return record
}

// SessionFromRecord восстанавливает сессию и отклоняет недопустимые комбинации снимков.
func SessionFromRecord(record SessionRecord) (*Session, error) {
	switch record.Stage {
	case StageDraft:
		if record.Partial != nil || record.Final != nil {
			return nil, fmt.Errorf("draft session %s carries later snapshots: %w", record.ID, ErrStageOrder)
		}
	case StagePartial:
		if record.Partial == nil || record.Final != nil {
			return nil, fmt.Errorf("partial session %s has inconsistent snapshots: %w", record.ID, ErrStageOrder)
		}
	case StageFinal:
		if record.Partial == nil || record.Final == nil {
			return nil, fmt.Errorf("final session %s has missing snapshots: %w", record.ID, ErrStageOrder)
		}
	default:
		return nil, fmt.Errorf("unknown stage %q", record.Stage)
	}

	session := &Session{
		ID:                  record.ID,
		UserQuery:           record.UserQuery,
		UserProfile:         record.UserProfile,
		FoundationalContext: record.FoundationalContext,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
		stage:               record.Stage,
		draft:               record.Draft,
	}
	if session.UserProfile == nil {
		session.UserProfile = map[string]any{}
	}
	if record.Partial != nil {
		session.partial = record.Partial.Clone()
	}
	if record.Final != nil {
		session.final = record.Final.Clone()
	}
	return session, nil
}

// MarshalJSON сериализует сессию через SessionRecord.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Record())
}

// UnmarshalJSON восстанавливает сессию с проверкой стадий.
func (s *Session) UnmarshalJSON(data []byte) error {
	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}

	restored, err := SessionFromRecord(record)
	if err != nil {
		return err
	}
	*s = *restored
	return nil
}

package repository

import (
	"encoding/json"
	"fmt"

	"example.com/budget-pipeline/backend/internal/models"
)

func encodeSession(session *models.Session) ([]byte, error) {
	data, err := json.Marshal(session.Record())
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var record models.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return models.SessionFromRecord(record)
}

func checkPartial(session *models.Session) error {
	if _, ok := session.Partial(); !ok {
		return fmt.Errorf("update partial of %s session %s: %w", session.Stage(), session.ID, ErrStage)
	}
	return nil
}

func checkFinal(session *models.Session) error {
	if _, ok := session.Final(); !ok {
		return fmt.Errorf("update final of %s session %s: %w", session.Stage(), session.ID, ErrStage)
	}
	return nil
}

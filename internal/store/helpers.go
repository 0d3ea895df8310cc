package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// cloneProperties copies a property bag so callers cannot mutate stored data.
func cloneProperties(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// encodeProperties serializes a property bag for a text/JSON column.
// An empty bag is stored as "{}".
func encodeProperties(props map[string]json.RawMessage) ([]byte, error) {
	if len(props) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state properties: %w", err)
	}
	return b, nil
}

// decodeProperties parses a stored property bag.
func decodeProperties(raw []byte) (map[string]json.RawMessage, error) {
	props := make(map[string]json.RawMessage)
	if len(raw) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state properties: %w", err)
	}
	return props, nil
}

// reverseTranscript flips newest-first query results into chronological order.
func reverseTranscript(s []models.TranscriptEntry) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanTranscript reads newest-first transcript rows and returns them oldest-first.
func scanTranscript(rows *sql.Rows) ([]models.TranscriptEntry, error) {
	var entries []models.TranscriptEntry
	for rows.Next() {
		var e models.TranscriptEntry
		var activityID, fromID, text sql.NullString
		var direction, activityType string
		if err := rows.Scan(&e.ConversationKey, &activityID, &direction, &activityType, &fromID, &text, &e.Time); err != nil {
			return nil, fmt.Errorf("scan transcript row failed: %w", err)
		}
		e.ActivityID = activityID.String
		e.FromID = fromID.String
		e.Text = text.String
		e.Direction = models.Direction(direction)
		e.ActivityType = models.ActivityType(activityType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows failed: %w", err)
	}
	reverseTranscript(entries)
	return entries, nil
}

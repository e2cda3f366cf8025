package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type IdeaAuthor struct {
	Name string `json:"name"`
}

// Idea is the host application's feedback entry as posted with a notification.
type Idea struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"` // SUBMITTED, PLANNED, IN_PROGRESS, COMPLETED, REJECTED
	Author      IdeaAuthor `json:"author"`
	Votes       int        `json:"votes"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// UnmarshalJSON accepts the id as a string or a number; hosts with integer keys send the latter.
func (i *Idea) UnmarshalJSON(data []byte) error {
	type plain Idea
	aux := struct {
		*plain
		ID json.RawMessage `json:"id"`
	}{plain: (*plain)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id := bytes.TrimSpace(aux.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		i.ID = ""
	case id[0] == '"':
		return json.Unmarshal(id, &i.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("idea id must be a string or a number: %w", err)
		}
		i.ID = n.String()
	}

	return nil
}

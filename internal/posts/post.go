package posts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Post struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (p Post) IsZero() bool {
	return strings.TrimSpace(string(p.ID)) == ""
}

// ID is a post identifier. Upstream sends numbers; ids are kept as strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = ID(value)
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("post id: %w", err)
	}
	*id = ID(number.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

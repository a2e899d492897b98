package notion

import (
	"encoding/json"
	"strings"
	"time"
)

type searchRequest struct {
	Sort        *searchSort `json:"sort,omitempty"`
	StartCursor string      `json:"start_cursor,omitempty"`
	PageSize    int         `json:"page_size,omitempty"`
}

type searchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

type searchResponse struct {
	Results    []object `json:"results"`
	HasMore    bool     `json:"has_more"`
	NextCursor *string  `json:"next_cursor"`
}

// object is a page or a database as returned by search and retrieve
type object struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	URL            string              `json:"url"`
	LastEditedTime time.Time           `json:"last_edited_time"`
	Archived       bool                `json:"archived"`
	InTrash        bool                `json:"in_trash"`
	Parent         parent              `json:"parent"`
	Properties     map[string]property `json:"properties"`
	Title          []richText          `json:"title"`       // databases only
	Description    []richText          `json:"description"` // databases only
}

func (o *object) gone() bool { return o.Archived || o.InTrash }

type parent struct {
	Type       string `json:"type"`
	PageID     string `json:"page_id"`
	DatabaseID string `json:"database_id"`
}

type property struct {
	Type        string     `json:"type"`
	Title       []richText `json:"title"`
	MultiSelect []option   `json:"multi_select"`
	Relation    []struct {
		ID string `json:"id"`
	} `json:"relation"`
}

type option struct {
	Name string `json:"name"`
}

type richText struct {
	Type      string `json:"type"`
	PlainText string `json:"plain_text"`
	Mention   *struct {
		Type string `json:"type"`
		Page *struct {
			ID string `json:"id"`
		} `json:"page"`
	} `json:"mention"`
}

type blockList struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// block keeps the text of a block whatever its type. Notion nests the
// payload under a key named after the type.
type block struct {
	ID    string
	Type  string
	Text  []richText
	Title string // child_page and child_database
}

func (b *block) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	_ = json.Unmarshal(fields["id"], &b.ID)
	_ = json.Unmarshal(fields["type"], &b.Type)

	payload, ok := fields[b.Type]
	if !ok {
		return nil
	}
	var body struct {
		RichText []richText `json:"rich_text"`
		Title    string     `json:"title"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil
	}
	b.Text = body.RichText
	b.Title = body.Title
	return nil
}

func (b *block) isChildContainer() bool {
	return b.Type == "child_page" || b.Type == "child_database"
}

// plain concatenates rich text. With links set, page mentions render as
// [[id|title]] so they surface as cross references.
func plain(rts []richText, links bool) string {
	var sb strings.Builder
	for _, rt := range rts {
		if links && rt.Type == "mention" && rt.Mention != nil && rt.Mention.Type == "page" && rt.Mention.Page != nil {
			sb.WriteString("[[" + rt.Mention.Page.ID + "|" + rt.PlainText + "]]")
			continue
		}
		sb.WriteString(rt.PlainText)
	}
	return sb.String()
}

func (o *object) title() string {
	if o.Object == "database" {
		return strings.TrimSpace(plain(o.Title, false))
	}
	for _, p := range o.Properties {
		if p.Type == "title" {
			return strings.TrimSpace(plain(p.Title, false))
		}
	}
	return ""
}

// tags collects the option names of every multi-select property
func (o *object) tags() []string {
	var out []string
	for _, p := range o.Properties {
		if p.Type != "multi_select" {
			continue
		}
		for _, opt := range p.MultiSelect {
			out = append(out, opt.Name)
		}
	}
	return out
}

func (o *object) relations() map[string][]string {
	var out map[string][]string
	for name, p := range o.Properties {
		if p.Type != "relation" || len(p.Relation) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string][]string)
		}
		for _, r := range p.Relation {
			out[name] = append(out[name], r.ID)
		}
	}
	return out
}

func (o *object) parentID() string {
	switch o.Parent.Type {
	case "page_id":
		return o.Parent.PageID
	case "database_id":
		return o.Parent.DatabaseID
	}
	return ""
}

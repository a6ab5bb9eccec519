package artifact

import "encoding/json"

// Set bundles the structured recommendation payload attached to an
// assistant message. A message carries at most one Set; the stream folds a
// later artifacts event by replacing the whole Set, never merging.
type Set struct {
	Books       []Book       `json:"books,omitempty"`
	Music       []Music      `json:"music,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	out := Set{}
	if s.Books != nil {
		out.Books = append([]Book(nil), s.Books...)
	}
	if s.Music != nil {
		out.Music = make([]Music, len(s.Music))
		for i, m := range s.Music {
			out.Music[i] = m.clone()
		}
	}
	if s.Suggestions != nil {
		out.Suggestions = append([]Suggestion(nil), s.Suggestions...)
	}
	return out
}

// Book is a single book recommendation. Optional fields stay zero when the
// upstream payload omits them.
type Book struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Year        int      `json:"year,omitempty"`
	ISBN        string   `json:"isbn,omitempty"`
	Description string   `json:"description,omitempty"`
	CoverURL    string   `json:"coverUrl,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
}

// Suggestion is a follow-up query the assistant proposes. The upstream API
// sends it either as a bare string or as an object, so unmarshalling accepts
// both.
type Suggestion struct {
	Text string `json:"text"`
}

func (s *Suggestion) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		s.Text = plain
		return nil
	}

	var obj struct {
		Text       string `json:"text"`
		Suggestion string `json:"suggestion"`
		Query      string `json:"query"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.Text != "":
		s.Text = obj.Text
	case obj.Suggestion != "":
		s.Text = obj.Suggestion
	default:
		s.Text = obj.Query
	}
	return nil
}

func (s Suggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Text)
}

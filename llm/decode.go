package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-ring-crawler/models"
)

// looseString accepts a JSON string, number, bool or null.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(v))
		return nil
	case '{', '[':
		return fmt.Errorf("expected scalar, got %s", string(data[:1]))
	default:
		*s = looseString(data)
		return nil
	}
}

// looseList accepts an array of scalars, a single scalar or null.
type looseList []string

func (l *looseList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] != '[' {
		var one looseString
		if err := one.UnmarshalJSON(data); err != nil {
			return err
		}
		if one != "" {
			*l = looseList{string(one)}
		}
		return nil
	}
	var items []looseString
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(looseList, 0, len(items))
	for _, item := range items {
		if item != "" {
			out = append(out, string(item))
		}
	}
	*l = out
	return nil
}

type item struct {
	Name          looseString `json:"name"`
	Description   looseString `json:"description"`
	Price         looseString `json:"price"`
	Metal         looseString `json:"metal"`
	Stone         looseString `json:"stone"`
	Carat         looseString `json:"carat"`
	Style         looseString `json:"style"`
	Collection    looseString `json:"collection"`
	Rating        looseString `json:"rating"`
	ReviewCount   looseString `json:"review_count"`
	Certification looseString `json:"certification"`
	ImageURLs     looseList   `json:"image_urls"`
	ProductURL    looseString `json:"product_url"`
	Sizes         looseList   `json:"sizes"`
}

func (it item) candidate() models.RawCandidate {
	images := []string(it.ImageURLs)
	if images == nil {
		images = []string{}
	}
	sizes := []string(it.Sizes)
	if sizes == nil {
		sizes = []string{}
	}
	return models.RawCandidate{
		Name:          string(it.Name),
		Description:   string(it.Description),
		Price:         string(it.Price),
		Metal:         string(it.Metal),
		Stone:         string(it.Stone),
		Carat:         string(it.Carat),
		Style:         string(it.Style),
		Collection:    string(it.Collection),
		Rating:        string(it.Rating),
		ReviewCount:   string(it.ReviewCount),
		Certification: string(it.Certification),
		ImageURLs:     images,
		ProductURL:    string(it.ProductURL),
		Sizes:         sizes,
	}
}

// decodeCandidates parses a model reply. Items that fail to decode or have
// no name are dropped individually; an unparseable reply yields nothing.
func decodeCandidates(reply string) []models.RawCandidate {
	raw := jsonPayload(reply)
	if raw == "" {
		return nil
	}

	var elems []json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal([]byte(raw), &elems); err != nil {
			slog.Debug("llm reply is not a json array", slog.Any("error", err))
			return nil
		}
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			slog.Debug("llm reply is not a json object", slog.Any("error", err))
			return nil
		}
		elems = []json.RawMessage{json.RawMessage(raw)}
		for _, key := range []string{"items", "rings", "products"} {
			if list, ok := wrapper[key]; ok {
				if err := json.Unmarshal(list, &elems); err != nil {
					return nil
				}
				break
			}
		}
	default:
		return nil
	}

	out := make([]models.RawCandidate, 0, len(elems))
	for _, elem := range elems {
		var it item
		if err := json.Unmarshal(elem, &it); err != nil {
			slog.Debug("dropping undecodable item", slog.Any("error", err))
			continue
		}
		if it.Name == "" {
			continue
		}
		out = append(out, it.candidate())
	}
	return out
}

// jsonPayload strips code fences and prose around the first JSON value.
func jsonPayload(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

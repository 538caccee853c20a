package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/helixir/pubmed-harvester/internal/domain"
)

// EncodeJSON renders articles as a 2-space indented JSON array with keys in
// canonical field order. Zero articles produce "[]". HTML characters are not
// escaped, so abstracts keep their literal <, > and &.
func EncodeJSON(articles []domain.Article) (string, error) {
	if len(articles) == 0 {
		return "[]", nil
	}

	out := make([]domain.Article, len(articles))
	for i, a := range articles {
		if a.CoAuthors == nil {
			a.CoAuthors = []string{}
		}
		if a.CoAuthorCountries == nil {
			a.CoAuthorCountries = []string{}
		}
		out[i] = a
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}

	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

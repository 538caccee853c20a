package export

import (
	"strings"

	"github.com/helixir/pubmed-harvester/internal/domain"
)

// EncodeCSV renders articles as CSV. The header row lists the canonical field
// names; every data value is double-quoted with inner quotes doubled, whether
// or not it needs quoting. Rows are joined by "\n" with no trailing newline.
// Zero articles produce an empty string.
func EncodeCSV(articles []domain.Article) string {
	if len(articles) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(domain.ArticleFields, ","))

	for _, a := range articles {
		sb.WriteByte('\n')
		for i, v := range a.Values() {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeQuoted(&sb, v)
		}
	}

	return sb.String()
}

func writeQuoted(sb *strings.Builder, v string) {
	sb.WriteByte('"')
	sb.WriteString(strings.ReplaceAll(v, `"`, `""`))
	sb.WriteByte('"')
}

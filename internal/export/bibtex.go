package export

import (
	"fmt"
	"strings"

	"github.com/helixir/pubmed-harvester/internal/domain"
)

// abstractEscaper backslash-escapes BibTeX specials. Braces are stripped
// beforehand, so they never reach it.
var abstractEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"&", `\&`,
	"%", `\%`,
	"$", `\$`,
	"#", `\#`,
	"_", `\_`,
)

// EncodeBibTeX renders one @article entry per article, joined by "\n".
// Only the abstract is escaped; other fields are emitted verbatim.
func EncodeBibTeX(articles []domain.Article) string {
	entries := make([]string, 0, len(articles))
	for _, a := range articles {
		entries = append(entries, bibtexEntry(a))
	}
	return strings.Join(entries, "\n")
}

func bibtexEntry(a domain.Article) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "@article{%s,\n", a.ID)
	fmt.Fprintf(&sb, "  title = {%s},\n", a.Title)
	fmt.Fprintf(&sb, "  author = {%s},\n", strings.Join(a.Authors(), " and "))
	fmt.Fprintf(&sb, "  firstauthorcountry = {%s},\n", a.FirstAuthorCountry)
	fmt.Fprintf(&sb, "  coauthorscountries = {%s},\n", a.CoAuthorCountriesText())
	fmt.Fprintf(&sb, "  journal = {%s},\n", a.Journal)
	fmt.Fprintf(&sb, "  year = {%s},\n", a.Year)
	fmt.Fprintf(&sb, "  volume = {%s},\n", a.Volume)
	fmt.Fprintf(&sb, "  issue = {%s},\n", a.Issue)
	fmt.Fprintf(&sb, "  doi = {%s},\n", a.DOI)
	fmt.Fprintf(&sb, "  abstract = {%s},\n", EscapeAbstract(a.Abstract))
	fmt.Fprintf(&sb, "  publicationtype = {%s},\n", a.PublicationTypes)
	fmt.Fprintf(&sb, "  pmid = {%s}\n", a.ID)
	sb.WriteString("}")

	return sb.String()
}

// EscapeAbstract removes braces, then escapes backslash, double quote and the
// characters & % $ # _ with a leading backslash.
func EscapeAbstract(s string) string {
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	return abstractEscaper.Replace(s)
}

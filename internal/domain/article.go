package domain

import "strings"

// ArticleFields lists the canonical Article field names in declared order.
// CSV headers and JSON object keys follow this order.
var ArticleFields = []string{
	"id",
	"title",
	"journal",
	"firstAuthor",
	"coAuthors",
	"firstAuthorCountry",
	"coAuthorCountries",
	"year",
	"doi",
	"volume",
	"issue",
	"publicationTypes",
	"abstract",
}

// Article is the normalized bibliographic record produced for one PubMed identifier.
//
// All string fields are trimmed and absent data is the empty string. List fields are
// never nil once produced by the normalizer, so encoders do not branch on missing data.
type Article struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Journal            string   `json:"journal"`
	FirstAuthor        string   `json:"firstAuthor"`
	CoAuthors          []string `json:"coAuthors"`
	FirstAuthorCountry string   `json:"firstAuthorCountry"`
	CoAuthorCountries  []string `json:"coAuthorCountries"`
	Year               string   `json:"year"`
	DOI                string   `json:"doi"`
	Volume             string   `json:"volume"`
	Issue              string   `json:"issue"`
	PublicationTypes   string   `json:"publicationTypes"`
	Abstract           string   `json:"abstract"`
}

// Authors returns the first author followed by all co-authors, skipping empty names.
func (a Article) Authors() []string {
	authors := make([]string, 0, len(a.CoAuthors)+1)
	if a.FirstAuthor != "" {
		authors = append(authors, a.FirstAuthor)
	}
	for _, name := range a.CoAuthors {
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// CoAuthorsText renders co-authors as a single comma-separated string.
func (a Article) CoAuthorsText() string {
	return strings.Join(a.CoAuthors, ", ")
}

// CoAuthorCountriesText renders co-author countries as individually quoted,
// comma-separated names, e.g. `"Japan", "Brazil"`.
func (a Article) CoAuthorCountriesText() string {
	quoted := make([]string, len(a.CoAuthorCountries))
	for i, c := range a.CoAuthorCountries {
		quoted[i] = `"` + c + `"`
	}
	return strings.Join(quoted, ", ")
}

// Values returns the flat text value of every field in ArticleFields order.
func (a Article) Values() []string {
	return []string{
		a.ID,
		a.Title,
		a.Journal,
		a.FirstAuthor,
		a.CoAuthorsText(),
		a.FirstAuthorCountry,
		a.CoAuthorCountriesText(),
		a.Year,
		a.DOI,
		a.Volume,
		a.Issue,
		a.PublicationTypes,
		a.Abstract,
	}
}

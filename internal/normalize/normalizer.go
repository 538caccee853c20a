// Package normalize turns raw PubMed records into domain articles.
package normalize

import (
	"strings"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/papersources/pubmed"
)

// doiPrefix is prepended to bare DOI suffixes.
const doiPrefix = "https://doi.org/"

// Resolver maps an affiliation string to a canonical country name.
type Resolver interface {
	Resolve(affiliation string) (string, bool)
}

// Normalizer converts raw records into Articles. It holds no mutable state
// and is safe for concurrent use when its Resolver is.
type Normalizer struct {
	resolver Resolver
}

// New creates a Normalizer backed by the given resolver.
func New(resolver Resolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize builds an Article for id from a decoded record.
// It never fails: missing data yields empty strings and empty lists.
//
// The first author is position 0 of the author list. If that entry has no
// usable name the article has no first author; later authors are not promoted.
// The first author's country is resolved from the first affiliation in the
// record, whichever author it belongs to.
func (n *Normalizer) Normalize(id string, record *pubmed.PubmedArticle) domain.Article {
	article := domain.Article{
		ID:                strings.TrimSpace(id),
		CoAuthors:         []string{},
		CoAuthorCountries: []string{},
	}
	if record == nil {
		return article
	}

	a := record.MedlineCitation.Article
	issue := a.Journal.JournalIssue

	article.Title = strings.TrimSpace(a.ArticleTitle.String())
	article.Journal = strings.TrimSpace(a.Journal.Title)
	article.Volume = strings.TrimSpace(issue.Volume)
	article.Issue = strings.TrimSpace(issue.Issue)
	article.Year = extractYear(issue.PubDate)
	article.DOI = extractDOI(record.PubmedData.ArticleIdList)
	article.Abstract = extractAbstract(a.Abstract)
	article.PublicationTypes = extractPublicationTypes(a.PublicationTypeList)

	article.FirstAuthor, article.CoAuthors = extractAuthors(a.AuthorList)
	article.FirstAuthorCountry, article.CoAuthorCountries = n.resolveCountries(extractAffiliations(a.AuthorList))

	return article
}

// extractAuthors splits the author list into the first author and co-authors.
func extractAuthors(list *pubmed.AuthorList) (string, []string) {
	coAuthors := []string{}
	if list == nil {
		return "", coAuthors
	}

	var first string
	for i, author := range list.Authors {
		name := strings.TrimSpace(strings.TrimSpace(author.ForeName) + " " + strings.TrimSpace(author.LastName))
		if name == "" {
			continue
		}
		if i == 0 {
			first = name
			continue
		}
		coAuthors = append(coAuthors, name)
	}

	return first, coAuthors
}

// extractAffiliations flattens every author's affiliations in document order.
func extractAffiliations(list *pubmed.AuthorList) []string {
	if list == nil {
		return nil
	}

	var out []string
	for _, author := range list.Authors {
		for _, info := range author.AffiliationInfo {
			if s := strings.TrimSpace(info.Affiliation.String()); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// resolveCountries resolves affiliation 0 to the first author's country and
// the rest to a first-seen-ordered set that excludes that country.
func (n *Normalizer) resolveCountries(affiliations []string) (string, []string) {
	coCountries := []string{}
	if n.resolver == nil || len(affiliations) == 0 {
		return "", coCountries
	}

	first, _ := n.resolver.Resolve(affiliations[0])

	seen := make(map[string]struct{})
	for _, aff := range affiliations[1:] {
		country, ok := n.resolver.Resolve(aff)
		if !ok || country == first {
			continue
		}
		if _, dup := seen[country]; dup {
			continue
		}
		seen[country] = struct{}{}
		coCountries = append(coCountries, country)
	}

	return first, coCountries
}

// extractYear prefers the structured year and falls back to the first four
// characters of MedlineDate.
func extractYear(date pubmed.PubDate) string {
	if y := strings.TrimSpace(date.Year); y != "" {
		return y
	}

	medline := strings.TrimSpace(date.MedlineDate)
	if len(medline) >= 4 {
		return medline[:4]
	}
	return medline
}

// extractDOI returns the first non-empty DOI from the record's own id list,
// as a resolver URL.
func extractDOI(ids pubmed.ArticleIdList) string {
	for _, aid := range ids.ArticleIds {
		if !strings.EqualFold(aid.IdType, "doi") {
			continue
		}
		if v := strings.TrimSpace(aid.Value); v != "" {
			return doiPrefix + v
		}
	}
	return ""
}

// extractAbstract joins the non-empty abstract fragments with a single space.
// Section labels are not included.
func extractAbstract(abstract *pubmed.Abstract) string {
	if abstract == nil {
		return ""
	}

	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, at := range abstract.AbstractTexts {
		if s := strings.TrimSpace(at.Value.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func extractPublicationTypes(list *pubmed.PublicationTypeList) string {
	if list == nil {
		return ""
	}

	types := make([]string, 0, len(list.PublicationTypes))
	for _, pt := range list.PublicationTypes {
		if v := strings.TrimSpace(pt.Value); v != "" {
			types = append(types, v)
		}
	}
	return strings.Join(types, ", ")
}

package index

import (
	"sort"

	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/db/searchdb"
)

type Mapper struct {
	siteURL string
	hostTag string
}

func NewMapper(siteURL string, hostTag string) *Mapper {
	return &Mapper{siteURL: siteURL, hostTag: hostTag}
}

func (m *Mapper) DocumentID(id primarydb.ModID) string {
	return searchdb.DocumentID(m.hostTag, id.String())
}

// HostTag is stored in the host field of every document this mapper produces.
func (m *Mapper) HostTag() string {
	return m.hostTag
}

// Map builds the search document of a mod. It does not look at the status.
func (m *Mapper) Map(mod primarydb.Mod, owner primarydb.Owner, categories []string) searchdb.Document {
	created := mod.Published.UTC()
	modified := mod.Updated.UTC()

	return searchdb.Document{
		ID:                m.DocumentID(mod.ID),
		Title:             mod.Title,
		Description:       mod.Description,
		Categories:        normalizeCategories(categories),
		Downloads:         mod.Downloads,
		Follows:           mod.Follows,
		PageURL:           m.siteURL + "/mod/" + mod.ID.String(),
		IconURL:           mod.IconURL,
		Author:            owner.Username,
		AuthorURL:         m.siteURL + "/user/" + owner.ID.String(),
		DateCreated:       created,
		CreatedTimestamp:  created.Unix(),
		DateModified:      modified,
		ModifiedTimestamp: modified.Unix(),
		IsNSFW:            mod.IsNSFW,
		Host:              m.hostTag,
		Slug:              mod.Slug,
	}
}

// categories are a set
func normalizeCategories(categories []string) []string {
	normalized := make([]string, 0, len(categories))
	seen := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		normalized = append(normalized, category)
	}
	sort.Strings(normalized)
	return normalized
}

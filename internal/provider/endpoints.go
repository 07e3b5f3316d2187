package provider

import (
	"fmt"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// recordURLs are the per-provider person-record URL templates. The
// external ID substitutes into the single %s.
var recordURLs = map[types.Source]string{
	types.SourceFamilySearch: "https://www.familysearch.org/platform/tree/persons/%s",
	types.SourceAncestry:     "https://www.ancestry.com/api/trees/persons/%s",
	types.SourceWikiTree:     "https://api.wikitree.com/api.php?action=getProfile&key=%s&fields=*",
	types.Source23AndMe:      "https://you.23andme.com/api/family-tree/persons/%s",
}

// DefaultEndpoint maps a source and external ID to the provider's
// record URL. Unknown sources yield an empty URL, which the fetcher
// rejects as a permanent error.
func DefaultEndpoint(source types.Source, externalID string) string {
	tmpl, ok := recordURLs[source]
	if !ok {
		return ""
	}
	return fmt.Sprintf(tmpl, externalID)
}

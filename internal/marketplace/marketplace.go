package marketplace

import "context"

// Source identifies which marketplace produced a listing.
const (
	SourceEBay   = "ebay"
	SourceAmazon = "amazon"
)

// Listing is one normalized marketplace search result. Condition is set for
// eBay listings, Rating for Amazon ones.
type Listing struct {
	Title     string `json:"title"`
	Price     string `json:"price"`
	Condition string `json:"condition,omitempty"`
	Rating    string `json:"rating,omitempty"`
	URL       string `json:"url"`
	ImageURL  string `json:"image_url"`
	Source    string `json:"source"`
}

// ResultSet is the merged unit returned to the caller after a successful
// verification. Within each source the marketplace's native ranking order is
// preserved.
type ResultSet struct {
	EBay   []Listing `json:"ebay"`
	Amazon []Listing `json:"amazon"`
}

// Client searches a single marketplace. Implementations return at most limit
// listings in the external API's relevance order, an empty slice when the
// marketplace has no matches, and an error for auth/transport failures.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]Listing, error)
}

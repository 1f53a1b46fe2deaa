package collector

// apiResponse represents the collection API response structure.
type apiResponse struct {
	Target string    `json:"target"`
	Items  []apiItem `json:"items"`
}

type apiItem struct {
	URL          string `json:"url"`
	PublishedAt  string `json:"publishedAt"`
	Views        *int64 `json:"views"`
	Likes        *int64 `json:"likes"`
	Comments     *int64 `json:"comments"`
	AuthorHandle string `json:"authorHandle"`
	AuthorName   string `json:"authorName"`
	DurationSec  int    `json:"durationSec"`
	Caption      string `json:"caption"`
}

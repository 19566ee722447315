package models

// FetchedItem is one element extracted by the fetcher. Link is absolute, or
// empty when the element had no href.
type FetchedItem struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

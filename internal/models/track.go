package models

import "time"

// TrackItem is one trending entry reported by a platform
type TrackItem struct {
	Title string `json:"title"`
	Hot   string `json:"hot"`
	Rank  int    `json:"rank"`
}

// TrackResult groups the items returned by one platform
type TrackResult struct {
	Platform string      `json:"platform"`
	Items    []TrackItem `json:"items"`
}

// Track follows a keyword across platforms. Results are replaced on every
// refresh and hold one entry per platform that answered.
type Track struct {
	ID         string        `json:"id"`
	Keyword    string        `json:"keyword"`
	Platforms  []string      `json:"platforms"`
	Results    []TrackResult `json:"results"`
	LastUpdate *time.Time    `json:"lastUpdate"`
	Active     bool          `json:"active"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// CreateTrackRequest is the input accepted by the searcher
type CreateTrackRequest struct {
	Keyword   string   `json:"keyword" validate:"required,max=256"`
	Platforms []string `json:"platforms"`
}

func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	c := *t
	c.Platforms = append([]string{}, t.Platforms...)
	c.Results = make([]TrackResult, len(t.Results))
	for i, r := range t.Results {
		c.Results[i] = TrackResult{Platform: r.Platform, Items: append([]TrackItem{}, r.Items...)}
	}
	if t.LastUpdate != nil {
		lu := *t.LastUpdate
		c.LastUpdate = &lu
	}
	return &c
}

func (t *Track) GetID() string { return t.ID }

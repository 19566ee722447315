package models

import "time"

// MaxSubscriptionItems caps the items kept from one fetch
const MaxSubscriptionItems = 20

// SubscriptionItem is one entry extracted from a watched page
type SubscriptionItem struct {
	Title string    `json:"title"`
	Link  string    `json:"link"`
	Time  time.Time `json:"time"`
}

// Subscription watches a URL and keeps the items matched by Selector from
// the most recent successful fetch.
type Subscription struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	URL                 string             `json:"url"`
	Selector            string             `json:"selector"`
	Interval            string             `json:"interval"`
	LastCheck           *time.Time         `json:"lastCheck"`
	Items               []SubscriptionItem `json:"items"`
	Active              bool               `json:"active"`
	CreatedAt           time.Time          `json:"createdAt"`
	ConsecutiveFailures int                `json:"consecutiveFailures"`
	LastError           string             `json:"lastError,omitempty"`
}

// CreateSubscriptionRequest is the input accepted by the poller
type CreateSubscriptionRequest struct {
	Name     string `json:"name" validate:"required,max=256"`
	URL      string `json:"url" validate:"required"`
	Selector string `json:"selector"`
	Interval string `json:"interval"`
}

func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastCheck != nil {
		t := *s.LastCheck
		c.LastCheck = &t
	}
	c.Items = append([]SubscriptionItem{}, s.Items...)
	return &c
}

func (s *Subscription) GetID() string { return s.ID }

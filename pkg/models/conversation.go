package models

type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Slug is generated from title and id for human-friendly URLs
	Slug string `json:"slug,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time metadata or conversation activity changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
	// Messages is the top-level forest in arrival order. Omitted when only
	// metadata is stored or listed.
	Messages []*Message `json:"messages,omitempty"`
}

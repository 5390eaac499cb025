package pagecontext

import "time"

// RestrictedMarker replaces the URL and title of a context whose page
// falls outside a server's allowed domains.
const RestrictedMarker = "[restricted]"

// DefaultTitle is used when a page observation arrives without a title.
const DefaultTitle = "Untitled"

// RawContext is a page observation as reported by the UI layer: the
// visited URL, the document title and an optional text selection.
type RawContext struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Selection string `json:"selection,omitempty"`
}

// PageContext is a snapshot of the currently viewed page offered to
// tool servers. A permission-filtered context is a PageContext too, so
// history retention and serialization stay uniform.
type PageContext struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Selection string    `json:"selection,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Permissions declares what page data one tool server may receive.
// An empty AllowedDomains list means no domain restriction.
type Permissions struct {
	ShareHistory     bool     `json:"share_history" toml:"share_history" yaml:"share_history" mapstructure:"share_history"`
	SharePageContent bool     `json:"share_page_content" toml:"share_page_content" yaml:"share_page_content" mapstructure:"share_page_content"`
	ShareSelections  bool     `json:"share_selections" toml:"share_selections" yaml:"share_selections" mapstructure:"share_selections"`
	AllowedDomains   []string `json:"allowed_domains,omitempty" toml:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty" mapstructure:"allowed_domains"`
}

// AllGranted returns permissions with every share flag on and no
// domain restriction.
func AllGranted() Permissions {
	return Permissions{
		ShareHistory:     true,
		SharePageContent: true,
		ShareSelections:  true,
	}
}

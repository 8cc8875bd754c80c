package model

// Tab is the content section of a channel.
type Tab string

const (
	TabVideos Tab = "videos"
	TabShorts Tab = "shorts"
)

// Valid returns true if the tab is known.
func (t Tab) Valid() bool { return t == TabVideos || t == TabShorts }

// CollectionKind is the kind of a resolved source.
type CollectionKind string

const (
	CollectionKindPlaylist CollectionKind = "playlist"
	CollectionKindChannel  CollectionKind = "channel"
	// CollectionKindSingleItem marks a page standing for a single item view, it has no items.
	CollectionKindSingleItem CollectionKind = "single-item"
)

// Item is a single entry of a collection page.
type Item struct {
	ID              string
	URL             string
	Title           string
	Thumbnail       string
	DurationSeconds float64
	IsShort         bool
}

// CollectionPage is one page of a playlist or channel.
type CollectionPage struct {
	SourceURL string
	Kind      CollectionKind
	Title     string
	Tab       Tab
	Page      int
	Items     []Item
	HasMore   bool
	IsLoading bool
	// Err is the last fetch error, only for display.
	Err string
}

// Item returns the item with the ID on the page.
func (p CollectionPage) Item(id string) (Item, bool) {
	for _, it := range p.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// HasPrevious returns true if there is a previous page.
func (p CollectionPage) HasPrevious() bool { return p.Page > 1 }

// Format is an opaque downloadable format of a single item.
type Format struct {
	FormatID       string
	Resolution     string
	Ext            string
	FilesizeApprox int64
}

// SingleItem is a resolved single media item.
type SingleItem struct {
	Title           string
	Thumbnail       string
	DurationSeconds float64
	OriginalURL     string
	Formats         []Format
}

// FormatProbe is the maximum available resolution of a URL.
type FormatProbe struct {
	URL           string
	MaxHeight     int
	MaxResolution string
	Error         string
}

// ResolveRequest is the request to resolve a URL page.
type ResolveRequest struct {
	URL  string
	Page int
	Tab  Tab
}

// ResolveResult is either a collection page or a single item.
type ResolveResult struct {
	Collection *CollectionPage
	Single     *SingleItem
}

// BrowseState is the state of the browse state machine.
type BrowseState string

const (
	BrowseStateIdle              BrowseState = "idle"
	BrowseStateAwaitingFirstPage BrowseState = "awaiting-first-page"
	BrowseStateLoading           BrowseState = "loading"
	BrowseStateLoaded            BrowseState = "loaded"
	BrowseStateError             BrowseState = "error"
)

// View is what a browse session is currently showing.
type View struct {
	// Session is the browse session number, it changes on every submitted URL.
	Session uint64
	State   BrowseState
	Page    CollectionPage
	// Single is set when the submitted URL resolved to a single item.
	Single *SingleItem
}

// IsSingle returns true when the view shows a single item.
func (v View) IsSingle() bool { return v.Single != nil }

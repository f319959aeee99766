package resolve

import "github.com/olivier-w/csvtv/internal/media"

// DestinationKind selects the screen that handles a selected channel.
type DestinationKind int

const (
	DestinationStream DestinationKind = iota
	DestinationPage
)

func (k DestinationKind) String() string {
	if k == DestinationStream {
		return "stream"
	}
	return "page"
}

// Destination is where a selected URL should be opened.
type Destination struct {
	Kind        DestinationKind
	URL         string
	ContentType string
	Playlist    PlaylistKind
	Err         error // resolution failure that sent the URL to the page view
}

// Router turns a selected URL into a Destination.
type Router struct {
	resolver *Resolver
}

// NewRouter creates a Router backed by r.
func NewRouter(r *Resolver) *Router {
	return &Router{resolver: r}
}

// Route resolves rawURL and calls done on the UI loop. Resolution failures
// open the original URL as a page so the selection is never dropped.
func (rt *Router) Route(rawURL string, done func(Destination)) {
	rt.resolver.ResolveAsync(rawURL, func(t Target, err error) {
		done(Decide(rawURL, t, err))
	})
}

// Decide maps a resolver outcome to a Destination.
func Decide(rawURL string, t Target, err error) Destination {
	if err != nil {
		return Destination{Kind: DestinationPage, URL: rawURL, Err: err}
	}
	if t.IsStream || media.IsVideoStream(t.FinalURL, t.ContentType) {
		return Destination{Kind: DestinationStream, URL: t.FinalURL, ContentType: t.ContentType, Playlist: t.Playlist}
	}
	return Destination{Kind: DestinationPage, URL: t.FinalURL}
}

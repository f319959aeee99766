package source

import (
	"context"
	"fmt"
)

// LocatorWriter persists the chosen source locator.
type LocatorWriter interface {
	SetSourceLocator(locator string) error
}

// SetupOutcome describes what Apply saved.
type SetupOutcome struct {
	Locator  string
	Channels int
	Message  string // notification for the user
	Valid    bool
}

// Setup validates setup input by fetching it before saving.
type Setup struct {
	fetcher *Fetcher
	store   LocatorWriter
}

// NewSetup creates a Setup.
func NewSetup(f *Fetcher, store LocatorWriter) *Setup {
	return &Setup{fetcher: f, store: store}
}

// Apply resolves input against the current locator, validates it and
// stores the result. An input that fails to load stores the bundled
// default instead. The returned error only reports a failed write.
func (s *Setup) Apply(ctx context.Context, input, current string) (SetupOutcome, error) {
	locator := ResolveSetupInput(input, current)

	if KindOf(locator) == KindBundled {
		if err := s.store.SetSourceLocator(locator); err != nil {
			return SetupOutcome{}, fmt.Errorf("saving source locator: %w", err)
		}
		return SetupOutcome{
			Locator: locator,
			Message: "No sheet link provided. Using default CSV file.",
			Valid:   true,
		}, nil
	}

	channels, err := s.fetcher.Fetch(ctx, locator)
	if err != nil {
		if werr := s.store.SetSourceLocator(DefaultLocator); werr != nil {
			return SetupOutcome{}, fmt.Errorf("saving source locator: %w", werr)
		}
		return SetupOutcome{
			Locator: DefaultLocator,
			Message: "Invalid sheet link: " + err.Error(),
		}, nil
	}

	if err := s.store.SetSourceLocator(locator); err != nil {
		return SetupOutcome{}, fmt.Errorf("saving source locator: %w", err)
	}
	return SetupOutcome{
		Locator:  locator,
		Channels: len(channels),
		Message:  fmt.Sprintf("Sheet loaded successfully with %d videos.", len(channels)),
		Valid:    true,
	}, nil
}

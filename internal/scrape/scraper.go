package scrape

import (
	"context"

	"github.com/gramtrack/gramtrack/internal/models"
)

// Scraper is the capability set the tracking pipeline depends on. The
// transport behind it (plain HTTP, or a headless browser for enumerations
// that need JavaScript) is an implementation detail.
//
// Every call authenticates with the cookie pool's current credential,
// reports failures back to the pool, and returns errors classified by Kind.
type Scraper interface {
	// FetchProfile returns public counts, identity fields and the latest
	// embedded media items for one account.
	FetchProfile(ctx context.Context, platform models.Platform, username string) (*models.ProfileData, error)

	// FetchMedia returns detailed metrics for one media item.
	FetchMedia(ctx context.Context, platform models.Platform, shortcode string) (*models.MediaData, error)

	// ListMediaShortcodes enumerates all current media identifiers for the
	// account. Preferred over the profile-embedded list, which is truncated.
	ListMediaShortcodes(ctx context.Context, platform models.Platform, username string) ([]string, error)

	// FetchReplies returns replies to one tweet. Twitter only.
	FetchReplies(ctx context.Context, platform models.Platform, tweetID string) ([]models.ReplyData, error)
}

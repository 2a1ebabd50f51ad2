package model

import (
	"net/url"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/domain/types"
)

// DefaultBrowser is used when the user leaves the browser prompt blank or
// enters an identifier outside the allow-list
const DefaultBrowser = "chrome"

const redactedValue = "REDACTED"

// KnownBrowsers is the default allow-list of cookie-source browsers accepted by
// yt-dlp's --cookies-from-browser
var KnownBrowsers = []string{
	"brave",
	"chrome",
	"chromium",
	"edge",
	"firefox",
	"opera",
	"safari",
	"vivaldi",
	"whale",
}

// SessionInput holds what the user typed for a single run
type SessionInput struct {
	PlayerURL   string // Direct player address of the video
	RefererURL  string // Page the video is embedded on
	Browser     string // Cookie-source browser identifier
	PrivacyHash string `masq:"secret"` // "h" query parameter of unlisted videos
}

// Validate checks both URLs. playerHosts restricts the player URL host; an
// empty list accepts any host.
func (x *SessionInput) Validate(playerHosts []string) error {
	if err := x.ValidatePlayerURL(playerHosts); err != nil {
		return err
	}
	return x.ValidateRefererURL()
}

// ValidatePlayerURL checks the player URL and extracts PrivacyHash
func (x *SessionInput) ValidatePlayerURL(playerHosts []string) error {
	player, err := parseHTTPURL(x.PlayerURL)
	if err != nil {
		return goerr.Wrap(types.ErrInvalidInput, "player URL is invalid",
			goerr.V("field", "player_url"),
			goerr.V("reason", err.Error()),
		)
	}

	if len(playerHosts) > 0 && !slices.Contains(playerHosts, strings.ToLower(player.Hostname())) {
		return goerr.Wrap(types.ErrInvalidInput, "not a player URL",
			goerr.V("field", "player_url"),
			goerr.V("host", player.Hostname()),
			goerr.V("allowed_hosts", playerHosts),
		)
	}

	x.PrivacyHash = player.Query().Get("h")
	return nil
}

// ValidateRefererURL checks the embedding page URL
func (x *SessionInput) ValidateRefererURL() error {
	if _, err := parseHTTPURL(x.RefererURL); err != nil {
		return goerr.Wrap(types.ErrInvalidInput, "referer URL is invalid",
			goerr.V("field", "referer_url"),
			goerr.V("reason", err.Error()),
		)
	}
	return nil
}

// Redacted returns a copy of x that is safe to log
func (x SessionInput) Redacted() SessionInput {
	x.PlayerURL = RedactPlayerURL(x.PlayerURL)
	return x
}

// RedactPlayerURL masks the "h" parameter of raw. Anything that is not a URL
// with that parameter is returned unchanged.
func RedactPlayerURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	if !q.Has("h") {
		return raw
	}
	q.Set("h", redactedValue)
	u.RawQuery = q.Encode()
	return u.String()
}

// ResolveBrowser returns browser when it is in allowed, otherwise fallback.
// The second value reports whether the fallback was taken for a non-empty
// input.
func ResolveBrowser(browser string, allowed []string, fallback string) (string, bool) {
	b := strings.ToLower(strings.TrimSpace(browser))
	if b == "" {
		return fallback, false
	}
	if slices.Contains(allowed, b) {
		return b, false
	}
	return fallback, true
}

func parseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, goerr.New("URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, goerr.New("URL scheme must be http or https", goerr.V("scheme", u.Scheme))
	}
	if u.Host == "" {
		return nil, goerr.New("URL has no host")
	}

	return u, nil
}

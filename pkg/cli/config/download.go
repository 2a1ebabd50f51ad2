package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/domain/model"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Flag names shared by Flags and Load
const (
	flagDownloadDir    = "download-dir"
	flagYtDlp          = "yt-dlp"
	flagAria2c         = "aria2c"
	flagConnections    = "connections"
	flagMergeFormat    = "merge-format"
	flagOutputTemplate = "output-template"
	flagDefaultBrowser = "default-browser"
	flagPlayerHost     = "player-host"
)

// MaxConnections is aria2c's upper bound for --max-connection-per-server
const MaxConnections = 16

// DefaultPlayerHost is accepted for the player URL when nothing is configured
const DefaultPlayerHost = "player.vimeo.com"

// Download holds download launcher configuration. Values come from flags or
// environment variables first, then the TOML file, then defaults.
type Download struct {
	ConfigPath     string
	Dir            string
	YtDlp          string
	Aria2c         string
	Connections    int
	MergeFormat    string
	OutputTemplate string
	DefaultBrowser string
	PlayerHosts    []string
	Browsers       []string

	// Answers given up front skip the matching prompt
	URL     string
	Referer string
	Browser string
}

type downloadFile struct {
	DownloadDir    *string   `toml:"download_dir"`
	YtDlp          *string   `toml:"yt_dlp"`
	Aria2c         *string   `toml:"aria2c"`
	Connections    *int      `toml:"connections"`
	MergeFormat    *string   `toml:"merge_format"`
	OutputTemplate *string   `toml:"output_template"`
	DefaultBrowser *string   `toml:"default_browser"`
	PlayerHosts    *[]string `toml:"player_hosts"`
	Browsers       []string  `toml:"browsers"`
}

// DefaultDownloadDir returns ~/Downloads, or the working directory when the
// home directory is unknown
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// DefaultConfigPath returns the per-user config file location
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "vimeodl", "config.toml")
}

// Flags returns CLI flags for download configuration
func (c *Download) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "TOML config file (default: " + DefaultConfigPath() + " if present)",
			Destination: &c.ConfigPath,
			Sources:     cli.EnvVars("VIMEODL_CONFIG"),
		},
		&cli.StringFlag{
			Name:        flagDownloadDir,
			Aliases:     []string{"d"},
			Usage:       "Directory the merged file is written to",
			Value:       DefaultDownloadDir(),
			Destination: &c.Dir,
			Sources:     cli.EnvVars("VIMEODL_DOWNLOAD_DIR"),
		},
		&cli.StringFlag{
			Name:        flagYtDlp,
			Usage:       "yt-dlp executable name or path",
			Value:       "yt-dlp",
			Destination: &c.YtDlp,
			Sources:     cli.EnvVars("VIMEODL_YT_DLP"),
		},
		&cli.StringFlag{
			Name:        flagAria2c,
			Usage:       "aria2c executable name or path",
			Value:       "aria2c",
			Destination: &c.Aria2c,
			Sources:     cli.EnvVars("VIMEODL_ARIA2C"),
		},
		&cli.IntFlag{
			Name:        flagConnections,
			Usage:       "aria2c connections per server (1-16)",
			Value:       MaxConnections,
			Destination: &c.Connections,
			Sources:     cli.EnvVars("VIMEODL_CONNECTIONS"),
		},
		&cli.StringFlag{
			Name:        flagMergeFormat,
			Usage:       "Container format of the merged file",
			Value:       "mp4",
			Destination: &c.MergeFormat,
			Sources:     cli.EnvVars("VIMEODL_MERGE_FORMAT"),
		},
		&cli.StringFlag{
			Name:        flagOutputTemplate,
			Usage:       "yt-dlp output template, relative to the download directory",
			Value:       "%(title)s [%(id)s].%(ext)s",
			Destination: &c.OutputTemplate,
			Sources:     cli.EnvVars("VIMEODL_OUTPUT_TEMPLATE"),
		},
		&cli.StringFlag{
			Name:        flagDefaultBrowser,
			Usage:       "Browser used when the answer is blank or unknown",
			Value:       model.DefaultBrowser,
			Destination: &c.DefaultBrowser,
			Sources:     cli.EnvVars("VIMEODL_DEFAULT_BROWSER"),
		},
		&cli.StringSliceFlag{
			Name:        flagPlayerHost,
			Usage:       "Accepted player URL host (repeatable)",
			Value:       []string{DefaultPlayerHost},
			Destination: &c.PlayerHosts,
			Sources:     cli.EnvVars("VIMEODL_PLAYER_HOSTS"),
		},
		&cli.StringFlag{
			Name:        "url",
			Usage:       "Player URL; skips the prompt",
			Destination: &c.URL,
		},
		&cli.StringFlag{
			Name:        "referer",
			Usage:       "Embedding page URL; skips the prompt",
			Destination: &c.Referer,
		},
		&cli.StringFlag{
			Name:        "browser",
			Usage:       "Cookie-source browser; skips the prompt",
			Destination: &c.Browser,
		},
	}
}

// Load merges the TOML config file into c. isSet reports whether a flag was
// given on the command line or through its environment variable; those values
// are kept. A missing file is ignored unless its path was given explicitly.
func (c *Download) Load(isSet func(name string) bool) error {
	path := c.ConfigPath
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := c.apply(raw, isSet); err != nil {
				return goerr.Wrap(err, "failed to load config file", goerr.V("path", path))
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			// no per-user config
		default:
			return goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
		}
	}

	if len(c.Browsers) == 0 {
		c.Browsers = slices.Clone(model.KnownBrowsers)
	}

	return c.Validate()
}

func (c *Download) apply(raw []byte, isSet func(name string) bool) error {
	var file downloadFile
	if err := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&file); err != nil {
		return goerr.Wrap(err, "failed to decode TOML")
	}

	setString := func(name string, dst *string, src *string) {
		if src != nil && !isSet(name) {
			*dst = *src
		}
	}

	setString(flagDownloadDir, &c.Dir, file.DownloadDir)
	setString(flagYtDlp, &c.YtDlp, file.YtDlp)
	setString(flagAria2c, &c.Aria2c, file.Aria2c)
	setString(flagMergeFormat, &c.MergeFormat, file.MergeFormat)
	setString(flagOutputTemplate, &c.OutputTemplate, file.OutputTemplate)
	setString(flagDefaultBrowser, &c.DefaultBrowser, file.DefaultBrowser)

	if file.Connections != nil && !isSet(flagConnections) {
		c.Connections = *file.Connections
	}
	if file.PlayerHosts != nil && !isSet(flagPlayerHost) {
		c.PlayerHosts = *file.PlayerHosts
	}
	if len(file.Browsers) > 0 {
		c.Browsers = file.Browsers
	}

	return nil
}

// Validate normalizes and checks the merged configuration
func (c *Download) Validate() error {
	if c.Connections < 1 || c.Connections > MaxConnections {
		return goerr.New("connections must be between 1 and 16", goerr.V("connections", c.Connections))
	}
	if strings.TrimSpace(c.MergeFormat) == "" {
		return goerr.New("merge format must not be empty")
	}
	if strings.TrimSpace(c.OutputTemplate) == "" {
		return goerr.New("output template must not be empty")
	}
	if filepath.IsAbs(c.OutputTemplate) {
		return goerr.New("output template must be relative to the download directory",
			goerr.V("output_template", c.OutputTemplate))
	}

	dir, err := expandHome(c.Dir)
	if err != nil {
		return err
	}
	if dir == "" {
		return goerr.New("download directory must not be empty")
	}
	c.Dir = dir

	for i, b := range c.Browsers {
		c.Browsers[i] = strings.ToLower(strings.TrimSpace(b))
	}
	c.DefaultBrowser = strings.ToLower(strings.TrimSpace(c.DefaultBrowser))
	if !slices.Contains(c.Browsers, c.DefaultBrowser) {
		return goerr.New("default browser is not in the browser list",
			goerr.V("default_browser", c.DefaultBrowser),
			goerr.V("browsers", c.Browsers),
		)
	}

	for i, h := range c.PlayerHosts {
		c.PlayerHosts[i] = strings.ToLower(strings.TrimSpace(h))
	}

	return nil
}

func expandHome(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve home directory", goerr.V("path", path))
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

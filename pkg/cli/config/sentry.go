package config

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Sentry holds optional error reporting configuration
type Sentry struct {
	DSN string
	Env string
}

// Flags returns CLI flags for Sentry configuration
func (c *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN; failures are reported when set",
			Destination: &c.DSN,
			Sources:     cli.EnvVars("VIMEODL_SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment name",
			Value:       "local",
			Destination: &c.Env,
			Sources:     cli.EnvVars("VIMEODL_SENTRY_ENV"),
		},
	}
}

// Configure initializes the Sentry client. It reports false when no DSN is
// set, in which case Report is a no-op.
func (c *Sentry) Configure() (bool, error) {
	if c.DSN == "" {
		return false, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         c.DSN,
		Environment: c.Env,
		Release:     types.AppName + "@" + types.Version,
	}); err != nil {
		return false, goerr.Wrap(err, "failed to initialize sentry")
	}

	return true, nil
}

// Report sends err to Sentry and waits briefly for delivery
func (c *Sentry) Report(err error) {
	if c.DSN == "" || err == nil {
		return
	}
	sentry.CaptureException(err)
	sentry.Flush(2 * time.Second)
}

package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/cli/config"
	"github.com/urfave/cli/v3"
)

func cmdBrowsers(downloadCfg *config.Download) *cli.Command {
	return &cli.Command{
		Name:  "browsers",
		Usage: "List browsers accepted as cookie source",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := downloadCfg.Load(c.IsSet); err != nil {
				return goerr.Wrap(err, "invalid download configuration")
			}

			w := c.Root().Writer
			for _, b := range downloadCfg.Browsers {
				if b == downloadCfg.DefaultBrowser {
					fmt.Fprintf(w, "%s (default)\n", b)
					continue
				}
				fmt.Fprintln(w, b)
			}
			return nil
		},
	}
}

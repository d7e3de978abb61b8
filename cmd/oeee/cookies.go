package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oeee-cafe/oeee-client/internal/models"
)

func (c *cli) cookiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Inspect the stored cookies",
	}

	cmd.AddCommand(c.cookiesListCmd(), c.cookiesClearCmd())

	return cmd
}

func (c *cli) cookiesListCmd() *cobra.Command {
	var showValues bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live cookies by origin",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}

			snapshot := a.cookies.Snapshot()
			if len(snapshot) == 0 {
				c.printf("No cookies stored\n")
				return nil
			}

			origins := make([]string, 0, len(snapshot))
			for origin := range snapshot {
				origins = append(origins, origin)
			}
			sort.Strings(origins)

			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			defer tw.Flush()

			writeRow(tw, "ORIGIN", "NAME", "VALUE", "PATH", "EXPIRES", "SECURE")
			now := time.Now()
			for _, origin := range origins {
				for _, rec := range snapshot[origin] {
					value := "***"
					if showValues {
						value = rec.Value
					}
					writeRow(tw, origin, rec.Name, value, rec.Path, expiry(rec, now), strconv.FormatBool(rec.Secure))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showValues, "show-values", false, "Print cookie values instead of masking them")

	return cmd
}

func (c *cli) cookiesClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored cookie",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}

			a.cookies.Clear()
			c.printf("Cookies cleared\n")
			return nil
		},
	}
}

func writeRow(w io.Writer, cells ...string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

func expiry(rec models.CookieRecord, now time.Time) string {
	if !rec.IsPersistent() {
		return "session"
	}

	return rec.ExpiresAt().Round(time.Second).Format(time.RFC3339) +
		" (" + (time.Duration(rec.RemainingSeconds(now)) * time.Second).String() + ")"
}

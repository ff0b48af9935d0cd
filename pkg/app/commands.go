package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/uvci/resto/pkg/migration"
	"github.com/uvci/resto/pkg/router"
)

// RouteList lists every route the kernel would serve.
func (a *Application) RouteList() ([]router.RouteInfo, error) {
	r, err := a.router()
	if err != nil {
		return nil, err
	}
	return r.Routes(), nil
}

// PrintRoutes writes the route table for route:list.
func PrintRoutes(w io.Writer, routes []router.RouteInfo) error {
	if len(routes) == 0 {
		_, err := fmt.Fprintln(w, "No named routes registered.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATH\tNAME")
	fmt.Fprintln(tw, "------\t----\t----")
	for _, ri := range routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
	}
	return tw.Flush()
}

// PrintMigrations writes the table for migrate:status.
func PrintMigrations(w io.Writer, statuses []migration.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tRAN\tBATCH")
	for _, s := range statuses {
		ran, batch := "no", "-"
		if s.Ran {
			ran, batch = "yes", fmt.Sprint(s.Batch)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, ran, batch)
	}
	return tw.Flush()
}

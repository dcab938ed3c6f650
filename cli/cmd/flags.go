package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/periscope/services/observe"
)

// windowFlags selects a time range either as a look-back or as explicit
// RFC 3339 bounds.
type windowFlags struct {
	since time.Duration
	start string
	end   string
}

func (f *windowFlags) register(cmd *cobra.Command, defaultHint string) {
	cmd.Flags().DurationVar(&f.since, "since", 0, "Look back this far from now, in whole minutes (default "+defaultHint+")")
	cmd.Flags().StringVar(&f.start, "start", "", "Window start (RFC 3339)")
	cmd.Flags().StringVar(&f.end, "end", "", "Window end, exclusive (RFC 3339)")
}

func (f *windowFlags) timeRange() (observe.TimeRange, error) {
	var r observe.TimeRange
	if f.since != 0 {
		if f.since < 0 || f.since%time.Minute != 0 {
			return r, fmt.Errorf("--since must be a positive whole number of minutes, got %s", f.since)
		}
		r.LastMinutes = int(f.since / time.Minute)
	}

	var err error
	if r.Start, err = parseTime("start", f.start); err != nil {
		return r, err
	}
	if r.End, err = parseTime("end", f.end); err != nil {
		return r, err
	}
	return r, nil
}

func parseTime(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

// pageFlags selects one page of a listing.
type pageFlags struct {
	page      int
	pageSize  int
	sortBy    string
	sortOrder string
	facets    bool
}

func (f *pageFlags) register(cmd *cobra.Command) {
	def := observe.DefaultPageRequest()
	cmd.Flags().IntVar(&f.page, "page", def.Page, "Page number, starting at 1")
	cmd.Flags().IntVar(&f.pageSize, "page-size", def.PageSize, "Records per page")
	cmd.Flags().StringVar(&f.sortBy, "sort-by", "", "Column to sort by (default timestamp)")
	cmd.Flags().StringVar(&f.sortOrder, "sort-order", "", "Sort order, asc or desc (default desc)")
	cmd.Flags().BoolVar(&f.facets, "facets", false, "Also print the filter values available for the result")
}

func (f *pageFlags) request() observe.PageRequest {
	return observe.PageRequest{
		Page:      f.page,
		PageSize:  f.pageSize,
		SortBy:    f.sortBy,
		SortOrder: f.sortOrder,
	}
}

// printPageFooter writes the pagination summary and, when asked, the facets
// below a table.
func (a *app) printPageFooter(p observe.Pagination, facets map[string][]string, withFacets bool) {
	a.out.Infof("\npage %d of %d (%d records)", p.CurrentPage, p.TotalPages, p.TotalCount)
	if !withFacets {
		return
	}
	names := make([]string, 0, len(facets))
	for name := range facets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := facets[name]
		if len(values) == 0 {
			a.out.Infof("%s: -", name)
			continue
		}
		a.out.Infof("%s: %s", name, strings.Join(values, ", "))
	}
}

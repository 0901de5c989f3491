package bot

import (
	"fmt"
	"strings"

	"feedwatcher/internal/filter"
	"feedwatcher/internal/matcher"
	"feedwatcher/internal/model"
)

const (
	maxListedResults  = 20
	maxDescriptionLen = 300
	dateLayout        = "2006-01-02 15:04 UTC"
)

// FormatResult formats a result as a Telegram notification message.
func FormatResult(r model.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n\n", r.FeedName, r.Query.Name)
	b.WriteString(r.Item.Title)
	if desc := truncate(filter.PlainText(r.Item.Description), maxDescriptionLen); desc != "" {
		b.WriteString("\n\n")
		b.WriteString(desc)
	}
	if link := r.Item.LinkString(); link != "" {
		b.WriteString("\n\n")
		b.WriteString(link)
	}
	return b.String()
}

// FormatResultList formats stored results, newest first, for /results.
func FormatResultList(results []model.Result) string {
	if len(results) == 0 {
		return "No results."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results (%d):\n", len(results))
	for i, r := range results {
		if i == maxListedResults {
			fmt.Fprintf(&b, "\n...and %d more", len(results)-maxListedResults)
			break
		}
		fmt.Fprintf(&b, "\nR%d [%s] %s\n", r.ID, r.FeedName, r.Item.Title)
		fmt.Fprintf(&b, "   %s, query %q\n", r.Item.Date.UTC().Format(dateLayout), r.Query.Name)
		if link := r.Item.LinkString(); link != "" {
			fmt.Fprintf(&b, "   %s\n", link)
		}
	}
	return b.String()
}

// FormatFeedList formats a list of feeds for display.
func FormatFeedList(feeds []model.Feed) string {
	if len(feeds) == 0 {
		return "You have no feeds yet. Use /add <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your feeds:\n")
	for _, f := range feeds {
		fmt.Fprintf(&b, "\n#%d %s\n", f.ID, f.URL)
		if f.LastUpdate.IsZero() {
			b.WriteString("   no items yet\n")
		} else {
			fmt.Fprintf(&b, "   newest item: %s\n", f.LastUpdate.UTC().Format(dateLayout))
		}
	}
	return b.String()
}

// FormatQuery formats one query with its filters in index order.
func FormatQuery(q model.Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Q%d %s\n", q.ID, q.Name)
	filters := q.Sorted()
	if len(filters) == 0 {
		b.WriteString("   matches everything\n")
		return b.String()
	}
	for _, f := range filters {
		fmt.Fprintf(&b, "   %d: %s", f.Index, f.Type)
		for _, p := range f.Parameters {
			if p.StringValue == nil {
				fmt.Fprintf(&b, " %s", p.Name)
				continue
			}
			fmt.Fprintf(&b, " %s=%q", p.Name, *p.StringValue)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatQueryList formats all queries for /queries.
func FormatQueryList(queries []model.Query) string {
	if len(queries) == 0 {
		return "No queries yet. Use /newquery <name> to create one."
	}
	var b strings.Builder
	b.WriteString("Your queries:\n")
	for _, q := range queries {
		b.WriteString("\n")
		b.WriteString(FormatQuery(q))
	}
	return b.String()
}

// FormatFailures formats the feeds a sweep could not evaluate.
func FormatFailures(failures []matcher.FeedOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed to check %d feed(s):\n", len(failures))
	for _, o := range failures {
		fmt.Fprintf(&b, "\n#%d %s\n   %v\n", o.Feed.ID, o.Feed.URL, o.Err)
	}
	b.WriteString("\nPrevious results are kept. The feeds will be retried on the next check.")
	return b.String()
}

// FormatReport summarizes a sweep for /check.
func FormatReport(r matcher.Report) string {
	var skipped int
	for _, o := range r.Outcomes {
		skipped += len(o.QueryErrors)
	}
	msg := fmt.Sprintf("Checked %d feed(s): %d new result(s), %d failure(s).",
		len(r.Outcomes), len(r.Results()), len(r.Failures()))
	if skipped > 0 {
		msg += fmt.Sprintf("\n%d query evaluation(s) skipped because of invalid filters.", skipped)
	}
	return msg
}

func filterTypeList() string {
	var b strings.Builder
	for _, t := range filter.Types() {
		params, _ := filter.RequiredParams(t)
		fmt.Fprintf(&b, "  %s %s=...\n", t, strings.Join(params, "=... "))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

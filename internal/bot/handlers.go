package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"feedwatcher/internal/filter"
	"feedwatcher/internal/model"
	"feedwatcher/internal/parser"
	"feedwatcher/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Feed Watcher!

Watch RSS and Atom feeds and collect the items that match your queries.

Quick start:
1. /add <url> — subscribe to a feed
2. /newquery <name> — create a query
3. /filter <query_id> title_contains text=<word> — narrow it down

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Feeds:
/add <url> — subscribe to a feed
/feeds — show all feeds
/rmfeed <id> — delete a feed and its results

Queries:
/queries — show all queries with their filters
/newquery <name> — create an empty query (matches everything)
/filter <query_id> <type> name=value — append a filter
/rmquery <id> — delete a query and its results

Results:
/results — show matched items
/delete <result_id> — delete one result
/clear — delete all results (with undo)
/check — check all feeds now

Filter types:
`+filterTypeList())
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	u, err := ParseFeedURL(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	body, err := b.fetcher.FetchFeed(ctx, u.String())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}
	name, err := parser.NewDocument(bytes.NewReader(body)).Name()
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to read feed: %v", err))
		return
	}

	feed := &model.Feed{URL: u, LastUpdate: b.now().UTC()}
	if err := b.store.AddFeed(ctx, feed); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			b.reply(chatID, fmt.Sprintf("Feed %s is already subscribed.", u))
			return
		}
		b.reply(chatID, fmt.Sprintf("Failed to save feed: %v", err))
		return
	}

	b.log.Info("feed added", "feed_id", feed.ID, "url", u, "chat_id", chatID)
	b.reply(chatID, fmt.Sprintf("Feed #%d \"%s\" added.\nURL: %s\nItems published from now on are checked against your queries.",
		feed.ID, name, u))
}

func (b *Bot) handleFeeds(ctx context.Context, chatID int64) {
	feeds, err := b.store.ListFeeds(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatFeedList(feeds))
}

func (b *Bot) handleRmFeed(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args, "feed")
	if err != nil {
		b.reply(chatID, "Usage: /rmfeed <id>")
		return
	}
	if err := b.store.DeleteFeed(ctx, id); err != nil {
		b.replyDeleteError(chatID, "Feed #%d", id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Feed #%d deleted together with its results.", id))
}

func (b *Bot) handleQueries(ctx context.Context, chatID int64) {
	queries, err := b.store.ListQueries(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatQueryList(queries))
}

func (b *Bot) handleNewQuery(ctx context.Context, chatID int64, name string) {
	if name == "" {
		b.reply(chatID, "Usage: /newquery <name>")
		return
	}
	q := &model.Query{Name: name}
	if err := b.store.AddQuery(ctx, q); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Query Q%d \"%s\" created. It matches every item until you add filters with /filter %d <type> name=value.",
		q.ID, q.Name, q.ID))
}

func (b *Bot) handleFilter(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseFilterArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	q, err := b.store.GetQuery(ctx, parsed.QueryID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Query Q%d not found.", parsed.QueryID))
		return
	}

	q.Filters = append(q.Filters, model.Filter{
		Type:       parsed.Type,
		Parameters: parsed.Parameters,
		Index:      q.NextIndex(),
	})
	if err := filter.ValidateQuery(*q); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid filter: %v\n\nFilter types:\n%s", err, filterTypeList()))
		return
	}
	if err := b.store.UpdateQuery(ctx, q); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Filter added.\n\n"+FormatQuery(*q))
}

func (b *Bot) handleRmQuery(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args, "query")
	if err != nil {
		b.reply(chatID, "Usage: /rmquery <id>")
		return
	}
	if err := b.store.DeleteQuery(ctx, id); err != nil {
		b.replyDeleteError(chatID, "Query Q%d", id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Query Q%d deleted together with its results.", id))
}

func (b *Bot) handleResults(ctx context.Context, chatID int64) {
	results, err := b.store.ListResults(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if hidden, ok := b.clearPending(chatID); ok {
		results = withoutIDs(results, hidden)
	}
	b.reply(chatID, FormatResultList(results))
}

func withoutIDs(results []model.Result, ids []model.ID) []model.Result {
	skip := make(map[model.ID]bool, len(ids))
	for _, id := range ids {
		skip[id] = true
	}
	out := results[:0:0]
	for _, r := range results {
		if !skip[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args, "result")
	if err != nil {
		b.reply(chatID, "Usage: /delete <result_id>")
		return
	}
	if err := b.store.DeleteResult(ctx, id); err != nil {
		b.replyDeleteError(chatID, "Result R%d", id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Result R%d deleted.", id))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64) {
	if b.checker == nil {
		b.reply(chatID, "Checking is not available.")
		return
	}
	report, err := b.checker.CheckNow(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Check failed: %v", err))
		return
	}
	b.reply(chatID, FormatReport(report))
}

// replyDeleteError reports a failed delete. label is a format with one %d verb.
func (b *Bot) replyDeleteError(chatID int64, label string, id model.ID, err error) {
	what := fmt.Sprintf(label, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, what+" not found.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Error deleting %s: %v", what, err))
}

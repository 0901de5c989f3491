package main

import (
	"context"
	"log/slog"

	"feedwatcher/internal/matcher"
	"feedwatcher/internal/model"
)

// logNotifier reports sweep output to the log when no Telegram token is set.
type logNotifier struct {
	log *slog.Logger
}

func (n *logNotifier) NotifyResults(_ context.Context, results []model.Result) {
	for _, r := range results {
		n.log.Info("match",
			"result_id", r.ID,
			"feed", r.FeedName,
			"query", r.Query.Name,
			"title", r.Item.Title,
			"link", r.Item.LinkString(),
		)
	}
}

func (n *logNotifier) NotifyFailures(_ context.Context, failures []matcher.FeedOutcome) {
	for _, o := range failures {
		n.log.Warn("feed check failed", "feed_id", o.Feed.ID, "url", o.Feed.URL, "error", o.Err)
	}
}

package filter

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"feedwatcher/internal/model"
)

func item(title, description, link string, date time.Time) model.FeedItem {
	it := model.FeedItem{Title: title, Description: description, Date: date}
	if link != "" {
		it.Link, _ = url.Parse(link)
	}
	return it
}

func filterOf(t model.FilterType, index int, params ...string) model.Filter {
	f := model.Filter{Type: t, Index: index}
	for i := 0; i+1 < len(params); i += 2 {
		f.Parameters = append(f.Parameters, model.NewParameter(params[i], params[i+1]))
	}
	return f
}

func TestMatch(t *testing.T) {
	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		item   model.FeedItem
		filter model.Filter
		want   bool
	}{
		{
			name:   "title contains, case insensitive",
			item:   item("Product Launch Today", "", "", jan2),
			filter: filterOf(model.FilterTitleContains, 0, ParamText, "launch"),
			want:   true,
		},
		{
			name:   "title contains no match",
			item:   item("Weekly Roundup", "launch details inside", "", jan2),
			filter: filterOf(model.FilterTitleContains, 0, ParamText, "launch"),
			want:   false,
		},
		{
			name:   "description contains ignores markup",
			item:   item("t", "<p>Faster <b>file sharing</b> on macOS</p>", "", jan2),
			filter: filterOf(model.FilterDescriptionContains, 0, ParamText, "file sharing"),
			want:   true,
		},
		{
			name:   "description contains decodes entities",
			item:   item("t", "Salt &amp; Pepper", "", jan2),
			filter: filterOf(model.FilterDescriptionContains, 0, ParamText, "salt & pepper"),
			want:   true,
		},
		{
			name:   "contains matches description",
			item:   item("Release notes", "Kubernetes sidecar", "", jan2),
			filter: filterOf(model.FilterContains, 0, ParamText, "kubernetes"),
			want:   true,
		},
		{
			name:   "unicode cyrillic contains",
			item:   item("Деплой в Kubernetes", "Руководство", "", jan2),
			filter: filterOf(model.FilterContains, 0, ParamText, "деплой"),
			want:   true,
		},
		{
			name:   "not contains blocks match",
			item:   item("Job vacancy at Google", "Apply now", "", jan2),
			filter: filterOf(model.FilterNotContains, 0, ParamText, "vacancy"),
			want:   false,
		},
		{
			name:   "not contains passes non-match",
			item:   item("Kubernetes update", "New features", "", jan2),
			filter: filterOf(model.FilterNotContains, 0, ParamText, "vacancy"),
			want:   true,
		},
		{
			name:   "title regex matches",
			item:   item("Helm chart v3.15", "", "", jan2),
			filter: filterOf(model.FilterTitleRegex, 0, ParamPattern, `helm.*v\d+`),
			want:   true,
		},
		{
			name:   "link regex matches",
			item:   item("t", "", "https://blog.example.com/posts/1", jan2),
			filter: filterOf(model.FilterLinkRegex, 0, ParamPattern, `^https://blog\.example\.com/`),
			want:   true,
		},
		{
			name:   "link regex never matches missing link",
			item:   item("t", "", "", jan2),
			filter: filterOf(model.FilterLinkRegex, 0, ParamPattern, `.*`),
			want:   false,
		},
		{
			name:   "published after",
			item:   item("t", "", "", jan2),
			filter: filterOf(model.FilterPublishedAfter, 0, ParamDate, "2024-01-01T00:00:00Z"),
			want:   true,
		},
		{
			name:   "published after is strict",
			item:   item("t", "", "", jan2),
			filter: filterOf(model.FilterPublishedAfter, 0, ParamDate, "2024-01-02"),
			want:   false,
		},
		{
			name:   "published before with feed-style date",
			item:   item("t", "", "", jan2),
			filter: filterOf(model.FilterPublishedBefore, 0, ParamDate, "Wed, 03 Jan 2024 00:00:00 GMT"),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.filter, tt.item)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchConfigErrors(t *testing.T) {
	novalue := model.Filter{Type: model.FilterTitleContains, Parameters: []model.FilterParameter{{Name: ParamText}}}

	tests := []struct {
		name   string
		filter model.Filter
	}{
		{name: "unknown type", filter: filterOf("title_sounds_like", 0, ParamText, "x")},
		{name: "missing parameter", filter: filterOf(model.FilterTitleContains, 0)},
		{name: "wrong parameter name", filter: filterOf(model.FilterTitleContains, 0, ParamPattern, "x")},
		{name: "parameter without value", filter: novalue},
		{name: "empty parameter", filter: filterOf(model.FilterContains, 0, ParamText, "  ")},
		{name: "invalid regex", filter: filterOf(model.FilterTitleRegex, 0, ParamPattern, "[invalid")},
		{name: "invalid date", filter: filterOf(model.FilterPublishedAfter, 0, ParamDate, "someday")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Match(tt.filter, item("anything", "", "", time.Now()))
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Match error = %v, want *ConfigError", err)
			}
		})
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "valid simple", pattern: "hello", wantErr: false},
		{name: "valid alternation", pattern: "k8s|docker|helm", wantErr: false},
		{name: "valid group", pattern: "(?i)release.*v\\d+", wantErr: false},
		{name: "invalid unclosed bracket", pattern: "[invalid", wantErr: true},
		{name: "invalid bad repetition", pattern: "*bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			gotErr := err != nil
			if diff := cmp.Diff(tt.wantErr, gotErr); diff != "" {
				t.Errorf("ValidateRegex() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}

func TestRequiredParams(t *testing.T) {
	for _, ft := range Types() {
		params, ok := RequiredParams(ft)
		if !ok || len(params) == 0 {
			t.Errorf("RequiredParams(%s) = %v, %v", ft, params, ok)
		}
	}
	if _, ok := RequiredParams("nope"); ok {
		t.Error("expected unknown type to have no parameters")
	}
	if diff := cmp.Diff(8, len(Types())); diff != "" {
		t.Errorf("type count mismatch (-want +got):\n%s", diff)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain words", "plain words"},
		{"<p>Hello <em>world</em></p>", "Hello world"},
		{"a<br/>b", "a b"},
		{"<style>p{}</style>visible<script>alert(1)</script>", "visible"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, PlainText(tt.in)); diff != "" {
			t.Errorf("PlainText(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

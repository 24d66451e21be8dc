package tools

import (
	"context"

	"github.com/nugget/moltbot/internal/fetch"
	"github.com/nugget/moltbot/internal/search"
)

// maxWebResults caps num_results on web searches.
const maxWebResults = 10

// SetWebTools adds web research tools. Search tools need a configured
// manager; scrape_page needs only a fetcher. Either may be nil.
func (r *Registry) SetWebTools(mgr *search.Manager, fetcher *fetch.Fetcher) {
	if mgr != nil && mgr.Configured() {
		r.setSearchTools(mgr)
	}
	if fetcher == nil {
		return
	}

	r.mustRegister(&Tool{
		Name:        "scrape_page",
		Description: "Read the text content of a web page (articles, documentation). Returns the title, meta description and readable text of the main content.",
		Parameters: objectSchema(map[string]any{
			"url":       prop("string", "Full URL (https://...) to read"),
			"max_chars": prop("integer", "Maximum characters to return (default 8000)"),
		}, "url"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			u, err := requireString(args, "url")
			if err != nil {
				return "", err
			}
			res, err := fetcher.Fetch(ctx, u, intArg(args, "max_chars", 0))
			if err != nil {
				return "", err
			}
			return jsonResult(res)
		},
	})
}

func (r *Registry) setSearchTools(mgr *search.Manager) {
	queryTool := func(run func(ctx context.Context, q string, opts search.Options) ([]search.Result, error)) Handler {
		return func(ctx context.Context, args map[string]any) (string, error) {
			q, err := requireString(args, "query")
			if err != nil {
				return "", err
			}
			n := min(max(intArg(args, "num_results", 5), 1), maxWebResults)
			results, err := run(ctx, q, search.Options{Count: n})
			if err != nil {
				return "", err
			}
			return jsonResult(map[string]any{"query": q, "results": results})
		}
	}

	r.mustRegister(&Tool{
		Name:        "web_search",
		Description: "Search Google for information. Returns organic results with titles, snippets and URLs.",
		Parameters: objectSchema(map[string]any{
			"query":       prop("string", "What to search for"),
			"num_results": prop("integer", "Number of results (default 5, max 10)"),
		}, "query"),
		Handler: queryTool(mgr.Search),
	})

	r.mustRegister(&Tool{
		Name:        "web_news",
		Description: "Search Google News for recent articles on a topic.",
		Parameters: objectSchema(map[string]any{
			"query":       prop("string", "News topic to search"),
			"num_results": prop("integer", "Number of articles (default 5, max 10)"),
		}, "query"),
		Handler: queryTool(mgr.News),
	})

	r.mustRegister(&Tool{
		Name:        "research_topic",
		Description: "Research a topic using web search and news. Returns a short summary of findings.",
		Parameters: objectSchema(map[string]any{
			"topic":        prop("string", "Topic to research"),
			"include_news": prop("boolean", "Include recent news (default true)"),
		}, "topic"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			topic, err := requireString(args, "topic")
			if err != nil {
				return "", err
			}
			withNews := true
			if _, ok := args["include_news"]; ok {
				withNews = boolArg(args, "include_news")
			}
			return mgr.Research(ctx, topic, withNews), nil
		},
	})
}

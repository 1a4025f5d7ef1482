package scraper

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/drnu/drnu-downloader/server/internal/httpclient"
	"golang.org/x/net/html"
)

var (
	ErrResourceNotFound = errors.New("scraper: unable to find resource")
	ErrProgramNotFound  = errors.New("scraper: unable to find program")
)

var resourcePattern = regexp.MustCompile(`resource:\s*"([^"]*)"`)

// article classes holding the program id, in lookup order
var programContainers = []string{
	"programSerieSpotContainer",
	"programSerieEpisodeChapterContainer",
}

type Scraper struct {
	Client    *http.Client
	UserAgent string
}

func New(client *http.Client, userAgent string) *Scraper {
	return &Scraper{Client: client, UserAgent: userAgent}
}

func (s *Scraper) FetchHTML(ctx context.Context, uri string) (string, error) {
	body, err := httpclient.Get(ctx, s.Client, uri, s.UserAgent)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ResourceURI fetches an episode page and returns the embedded resource
// description URI.
func (s *Scraper) ResourceURI(ctx context.Context, episodeURI string) (string, error) {
	page, err := s.FetchHTML(ctx, episodeURI)
	if err != nil {
		return "", err
	}
	return ExtractResourceURI(page)
}

// ExtractResourceURI returns the first `resource: "<uri>"` literal in page.
func ExtractResourceURI(page string) (string, error) {
	m := resourcePattern.FindStringSubmatch(page)
	if m == nil || m[1] == "" {
		return "", ErrResourceNotFound
	}
	return m[1], nil
}

// ProgramID fetches a program page and returns its program identifier.
func (s *Scraper) ProgramID(ctx context.Context, programURI string) (string, error) {
	page, err := s.FetchHTML(ctx, programURI)
	if err != nil {
		return "", err
	}
	return ExtractProgramID(page)
}

func ExtractProgramID(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}

	for _, class := range programContainers {
		if id, ok := findArticleID(doc, class); ok {
			return id, nil
		}
	}

	return "", ErrProgramNotFound
}

// findArticleID walks the tree depth first looking for an <article>
// whose class attribute is exactly class.
func findArticleID(n *html.Node, class string) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "article" && attr(n, "class") == class {
		if id := attr(n, "id"); id != "" {
			return id, true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if id, ok := findArticleID(c, class); ok {
			return id, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

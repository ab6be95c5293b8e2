package extractors

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// LinksProbe collects every <a> element of an HTML document.
type LinksProbe struct{}

func (LinksProbe) Extract(ctx context.Context, doc Document) (*Result, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	contentType := "text/html"
	if doc.ContentType != nil {
		contentType = *doc.ContentType
	}
	body, err := charset.NewReader(f, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode charset: %w", err)
	}
	page, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	res := &Result{}
	page.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		res.Links = append(res.Links, Link{
			Text:  strings.Join(strings.Fields(s.Text()), " "),
			Href:  attr(s, "href"),
			Class: attr(s, "class"),
			ID:    attr(s, "id"),
		})
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func attr(s *goquery.Selection, name string) *string {
	v, ok := s.Attr(name)
	if !ok {
		return nil
	}
	return &v
}

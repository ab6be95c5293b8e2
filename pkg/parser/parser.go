// Package parser turns captured HTML into readable text with a detected
// language.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"
)

// Block is one content-bearing element of the readable article.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Content is the readable form of one HTML page.
type Content struct {
	URL      string    `json:"url"`
	Title    string    `json:"title,omitempty"`
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"` // ISO 639-1, empty when undetected
	Blocks   []Block   `json:"blocks,omitempty"`
	Keywords []Keyword `json:"keywords,omitempty"`
}

// Parser extracts readable content. The language detector is built on first
// use since loading its models is slow.
type Parser struct {
	once     sync.Once
	detector lingua.LanguageDetector
	// Languages narrows detection; nil means all supported languages.
	Languages []lingua.Language
	// KeywordLimit caps Content.Keywords; 0 means DefaultKeywordLimit and a
	// negative value disables keywords.
	KeywordLimit int
}

// Parse runs readability over html and splits the article into blocks.
func (p *Parser) Parse(rawURL string, html io.Reader) (*Content, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	readabilityParser := readability.NewParser()
	article, err := readabilityParser.Parse(html, parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}

	var blocks []Block
	doc.Find("h1,h2,h3,h4,p,li,pre").Each(func(i int, s *goquery.Selection) {
		if text := normalizeText(s.Text()); text != "" {
			blocks = append(blocks, Block{Type: goquery.NodeName(s), Text: text})
		}
	})

	text := normalizeText(article.TextContent)
	content := &Content{
		URL:      rawURL,
		Title:    normalizeText(article.Title),
		Text:     text,
		Language: p.DetectLanguage(text),
		Blocks:   blocks,
	}
	if limit := p.keywordLimit(); limit > 0 {
		content.Keywords = TopKeywords(WordFrequency(text), limit)
	}
	return content, nil
}

// DetectLanguage returns the ISO 639-1 code of text, or "" when no language
// is reliably detected.
func (p *Parser) DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	p.once.Do(func() {
		builder := lingua.NewLanguageDetectorBuilder()
		if len(p.Languages) > 0 {
			p.detector = builder.FromLanguages(p.Languages...).Build()
		} else {
			p.detector = builder.FromAllLanguages().WithLowAccuracyMode().Build()
		}
	})
	lang, ok := p.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func (p *Parser) keywordLimit() int {
	if p.KeywordLimit == 0 {
		return DefaultKeywordLimit
	}
	return p.KeywordLimit
}

// normalizeText cleans up a string by trimming space and removing excess newlines.
func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.Join(strings.Fields(scanner.Text()), " "); line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

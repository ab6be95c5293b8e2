package indexer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/classify"
	"github.com/dtnitsch/metawarc/pkg/extractors"
	"github.com/dtnitsch/metawarc/pkg/warc"
)

// WarcID strips the <urn:uuid:...> wrapping from a WARC-Record-ID.
func WarcID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimPrefix(id, "urn:uuid:")
}

func recordRow(source string, rec *warc.Record, class classify.Result) models.Record {
	return models.Record{
		WarcID:         WarcID(rec.ID),
		URL:            rec.TargetURI,
		Offset:         rec.Offset,
		Length:         rec.Length(),
		ContentTypeRaw: class.ContentTypeRaw,
		ContentType:    class.ContentType,
		Charset:        class.Charset,
		StatusCode:     int64(rec.HTTP.StatusCode),
		ContentLength:  contentLength(rec.HTTP),
		RecordDate:     rec.Header.Get("WARC-Date"),
		Source:         source,
		Filename:       class.Filename,
		Ext:            class.Ext,
	}
}

// contentLength is the declared Content-Length header, or 0 when absent.
func contentLength(h *warc.HTTPHeader) int64 {
	if v := h.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

func headerRows(source, warcID string, h *warc.HTTPHeader) []models.HeaderProperty {
	keys := make([]string, 0, len(h.Header))
	for k := range h.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows []models.HeaderProperty
	for _, k := range keys {
		for _, v := range h.Header[k] {
			rows = append(rows, models.HeaderProperty{Key: k, Value: v, WarcID: warcID, Source: source})
		}
	}
	return rows
}

func linkRows(source, warcID, url string, res *extractors.Result) []models.Link {
	if res == nil {
		return nil
	}
	rows := make([]models.Link, 0, len(res.Links))
	for _, l := range res.Links {
		rows = append(rows, models.Link{
			WarcID: warcID,
			Source: source,
			URL:    url,
			Text:   l.Text,
			Href:   l.Href,
			Class:  l.Class,
			ID:     l.ID,
		})
	}
	return rows
}

func documentRow(source string, row models.Record, routed *extractors.Routed) (models.DocumentMetadata, error) {
	doc := models.DocumentMetadata{
		WarcID:   row.WarcID,
		Offset:   row.Offset,
		Filename: row.Filename,
		Ext:      routed.Ext,
		URL:      row.URL,
		Mime:     row.ContentType,
		Source:   source,
	}
	if routed.Result != nil {
		if err := doc.SetMetadata(routed.Result.Metadata); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// buffers collects rows of one source file until they are flushed.
type buffers struct {
	records   []models.Record
	headers   []models.HeaderProperty
	links     []models.Link
	documents map[models.TableType][]models.DocumentMetadata
}

func newBuffers() *buffers {
	return &buffers{documents: map[models.TableType][]models.DocumentMetadata{}}
}

func (b *buffers) addRouted(source string, row models.Record, routed *extractors.Routed) error {
	if routed == nil {
		return nil
	}
	if routed.Table == models.TableLinks {
		b.links = append(b.links, linkRows(source, row.WarcID, row.URL, routed.Result)...)
		return nil
	}
	doc, err := documentRow(source, row, routed)
	if err != nil {
		return err
	}
	b.documents[routed.Table] = append(b.documents[routed.Table], doc)
	return nil
}

// Package warctest builds synthetic WARC files and document payloads for tests.
package warctest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Response describes one HTTP response record to write.
type Response struct {
	ID          string // WARC-Record-ID without the urn:uuid wrapping
	URL         string
	Status      int
	ContentType string // omitted when empty
	Headers     map[string]string
	Body        []byte
}

// Builder accumulates WARC records in memory.
type Builder struct {
	gzip    bool
	buf     bytes.Buffer
	offsets []int64
	n       int
}

// New returns a builder writing plain WARC records.
func New() *Builder { return &Builder{} }

// NewGzip returns a builder writing one gzip member per record.
func NewGzip() *Builder { return &Builder{gzip: true} }

// Offsets returns the start offset of every record written so far.
func (b *Builder) Offsets() []int64 { return b.offsets }

// Bytes returns the container contents.
func (b *Builder) Bytes() []byte { return b.buf.Bytes() }

// Warcinfo appends a warcinfo record.
func (b *Builder) Warcinfo() *Builder {
	return b.Raw("warcinfo", "", "application/warc-fields", []byte("software: warctest\r\nformat: WARC File Format 1.1\r\n"))
}

// Request appends a request record for url.
func (b *Builder) Request(url string) *Builder {
	block := fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\n\r\n", strings.TrimPrefix(url, "https://"))
	return b.Raw("request", url, "application/http; msgtype=request", []byte(block))
}

// Response appends a response record.
func (b *Builder) Response(r Response) *Builder {
	status := r.Status
	if status == 0 {
		status = 200
	}
	var block bytes.Buffer
	fmt.Fprintf(&block, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if r.ContentType != "" {
		fmt.Fprintf(&block, "Content-Type: %s\r\n", r.ContentType)
	}
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&block, "%s: %s\r\n", k, r.Headers[k])
	}
	if _, ok := r.Headers["Content-Length"]; !ok {
		fmt.Fprintf(&block, "Content-Length: %d\r\n", len(r.Body))
	}
	block.WriteString("\r\n")
	block.Write(r.Body)
	return b.record("response", r.URL, r.ID, "application/http; msgtype=response", block.Bytes())
}

// Raw appends a record with an arbitrary type and block.
func (b *Builder) Raw(warcType, url, contentType string, block []byte) *Builder {
	return b.record(warcType, url, "", contentType, block)
}

// Garbage appends bytes that do not form a record.
func (b *Builder) Garbage(data []byte) *Builder {
	b.buf.Write(data)
	return b
}

func (b *Builder) record(warcType, url, id, contentType string, block []byte) *Builder {
	b.n++
	if id == "" {
		id = fmt.Sprintf("00000000-0000-4000-8000-%012d", b.n)
	}
	var rec bytes.Buffer
	rec.WriteString("WARC/1.1\r\n")
	fmt.Fprintf(&rec, "WARC-Type: %s\r\n", warcType)
	fmt.Fprintf(&rec, "WARC-Record-ID: <urn:uuid:%s>\r\n", id)
	fmt.Fprintf(&rec, "WARC-Date: 2024-05-01T12:%02d:00Z\r\n", b.n%60)
	if url != "" {
		fmt.Fprintf(&rec, "WARC-Target-URI: %s\r\n", url)
	}
	fmt.Fprintf(&rec, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&rec, "Content-Length: %d\r\n", len(block))
	rec.WriteString("\r\n")
	rec.Write(block)
	rec.WriteString("\r\n\r\n")

	b.offsets = append(b.offsets, int64(b.buf.Len()))
	if !b.gzip {
		b.buf.Write(rec.Bytes())
		return b
	}
	zw := gzip.NewWriter(&b.buf)
	zw.Write(rec.Bytes())
	zw.Close()
	return b
}

// HTML returns a small HTML page containing the given anchors.
func HTML(title string, anchors ...string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><head><title>%s</title></head><body>\n", title)
	for _, a := range anchors {
		sb.WriteString(a)
		sb.WriteString("\n")
	}
	sb.WriteString("</body></html>\n")
	return []byte(sb.String())
}

// PDF returns a minimal PDF whose trailer references an info dictionary with
// the given entries. Values are written as literal strings.
func PDF(info map[string]string) []byte {
	var buf bytes.Buffer
	var offsets []int
	buf.WriteString("%PDF-1.4\n")
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj("<< /Type /Pages /Kids [] /Count 0 >>")
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var dict strings.Builder
	dict.WriteString("<<")
	for _, k := range keys {
		fmt.Fprintf(&dict, " /%s (%s)", k, info[k])
	}
	dict.WriteString(" >>")
	obj(dict.String())

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 3 0 R >>\n", len(offsets)+1)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

// OOXML returns a zip package with the given docProps parts. A nil map leaves
// the part out.
func OOXML(core, app map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("[Content_Types].xml")
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	if core != nil {
		w, _ = zw.Create("docProps/core.xml")
		w.Write(propsXML("cp:coreProperties",
			`xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"`,
			"dc", core))
	}
	if app != nil {
		w, _ = zw.Create("docProps/app.xml")
		w.Write(propsXML("Properties",
			`xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"`,
			"", app))
	}
	zw.Close()
	return buf.Bytes()
}

func propsXML(root, ns, prefix string, fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><%s %s>`, root, ns)
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + ":" + k
		}
		fmt.Fprintf(&sb, "<%s>%s</%s>", name, fields[k], name)
	}
	fmt.Fprintf(&sb, "</%s>", root)
	return []byte(sb.String())
}

// PNG returns an encoded w×h image.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

package warc_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtnitsch/metawarc/pkg/warc"
	"github.com/dtnitsch/metawarc/pkg/warc/warctest"
)

func sampleArchive(b *warctest.Builder) *warctest.Builder {
	return b.
		Warcinfo().
		Request("https://example.org/").
		Response(warctest.Response{
			ID:          "11111111-1111-4111-8111-111111111111",
			URL:         "https://example.org/",
			ContentType: "text/html; charset=UTF-8",
			Body:        warctest.HTML("home", `<a href="/a">A</a>`),
		}).
		Response(warctest.Response{
			URL:         "https://example.org/file.bin",
			ContentType: "application/octet-stream",
			Body:        bytes.Repeat([]byte{0x00, 0xff}, 300),
		})
}

func readAll(t *testing.T, r *warc.Reader) []*warc.Record {
	t.Helper()
	var out []*warc.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		_, err = rec.Finish()
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestReader_OffsetsAndLengths(t *testing.T) {
	for _, tc := range []struct {
		name    string
		builder *warctest.Builder
	}{
		{"plain", warctest.New()},
		{"gzip", warctest.NewGzip()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := sampleArchive(tc.builder)
			data := b.Bytes()

			r, err := warc.NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, tc.name == "gzip", r.Compressed())

			recs := readAll(t, r)
			require.Len(t, recs, 4)

			offsets := b.Offsets()
			for i, rec := range recs {
				assert.Equal(t, offsets[i], rec.Offset, "record %d offset", i)
				end := int64(len(data))
				if i+1 < len(offsets) {
					end = offsets[i+1]
				}
				assert.Equal(t, end-rec.Offset, rec.Length(), "record %d length", i)
			}

			assert.Equal(t, "warcinfo", recs[0].Type)
			assert.Nil(t, recs[1].HTTP, "request records carry no HTTP response view")
			require.NotNil(t, recs[2].HTTP)
			assert.Equal(t, 200, recs[2].HTTP.StatusCode)
			assert.Equal(t, "text/html; charset=UTF-8", *recs[2].HTTP.ContentType())
			assert.Equal(t, "https://example.org/", recs[2].TargetURI)
			assert.Equal(t, "<urn:uuid:11111111-1111-4111-8111-111111111111>", recs[2].ID)
		})
	}
}

func TestReader_SeekAndResume(t *testing.T) {
	for _, builder := range []*warctest.Builder{warctest.New(), warctest.NewGzip()} {
		b := sampleArchive(builder)
		data := b.Bytes()
		offsets := b.Offsets()

		r, err := warc.NewReaderAt(bytes.NewReader(data), offsets[3])
		require.NoError(t, err)
		rec, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, offsets[3], rec.Offset)
		assert.Equal(t, "https://example.org/file.bin", rec.TargetURI)

		payload, err := rec.Payload()
		require.NoError(t, err)
		body, err := io.ReadAll(payload)
		require.NoError(t, err)
		assert.Len(t, body, 600)

		n, err := rec.Finish()
		require.NoError(t, err)
		assert.Equal(t, int64(len(data))-offsets[3], n)
	}
}

func TestReader_PayloadOnlyOnce(t *testing.T) {
	b := sampleArchive(warctest.New())
	r, err := warc.NewReaderAt(bytes.NewReader(b.Bytes()), b.Offsets()[2])
	require.NoError(t, err)
	rec, err := r.Next()
	require.NoError(t, err)

	_, err = rec.Payload()
	require.NoError(t, err)
	_, err = rec.Payload()
	assert.ErrorIs(t, err, warc.ErrPayloadConsumed)
}

func TestReader_ContentEncodingDecoded(t *testing.T) {
	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	zw.Write([]byte("hello, archive"))
	zw.Close()

	data := warctest.New().Response(warctest.Response{
		URL:         "https://example.org/greeting.txt",
		ContentType: "text/plain",
		Headers:     map[string]string{"Content-Encoding": "gzip"},
		Body:        body.Bytes(),
	}).Bytes()

	r, err := warc.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	rec, err := r.Next()
	require.NoError(t, err)
	payload, err := rec.Payload()
	require.NoError(t, err)
	got, err := io.ReadAll(payload)
	require.NoError(t, err)
	assert.Equal(t, "hello, archive", string(got))
}

func TestReader_FramingSkip(t *testing.T) {
	b := warctest.New().
		Response(warctest.Response{URL: "https://example.org/a", ContentType: "text/plain", Body: []byte("a")}).
		Garbage([]byte("this is not a record\r\nneither is this\r\n")).
		Response(warctest.Response{URL: "https://example.org/b", ContentType: "text/plain", Body: []byte("b")})

	var skippedAt []int64
	r, err := warc.NewReader(bytes.NewReader(b.Bytes()), warc.WithSkipHandler(func(offset int64, err error) {
		skippedAt = append(skippedAt, offset)
	}))
	require.NoError(t, err)

	recs := readAll(t, r)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://example.org/b", recs[1].TargetURI)
	assert.Equal(t, b.Offsets()[1], recs[1].Offset)
	assert.Equal(t, 1, r.Skipped())
	assert.Len(t, skippedAt, 1)
}

func TestReader_FramingSkipCountsDamagedRecordOnce(t *testing.T) {
	var damaged bytes.Buffer
	damaged.WriteString("WARC/1.0\r\nWARC-Type: response\r\nContent-Length: bogus\r\n\r\n")
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&damaged, "payload line %d\r\n", i)
	}
	b := warctest.New().
		Garbage(damaged.Bytes()).
		Response(warctest.Response{URL: "https://example.org/ok", ContentType: "text/plain", Body: []byte("ok")})

	calls := 0
	r, err := warc.NewReader(bytes.NewReader(b.Bytes()), warc.WithSkipHandler(func(offset int64, err error) {
		calls++
		assert.Zero(t, offset)
	}))
	require.NoError(t, err)

	recs := readAll(t, r)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://example.org/ok", recs[0].TargetURI)
	assert.Equal(t, b.Offsets()[0], recs[0].Offset)
	assert.Equal(t, 1, r.Skipped())
	assert.Equal(t, 1, calls)
}

func TestReader_FramingStrict(t *testing.T) {
	b := warctest.New().
		Response(warctest.Response{URL: "https://example.org/a", ContentType: "text/plain", Body: []byte("a")}).
		Garbage([]byte("junk\r\n"))

	r, err := warc.NewReader(bytes.NewReader(b.Bytes()), warc.WithFramingPolicy(warc.FramingStrict))
	require.NoError(t, err)

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	var fe *warc.FramingError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, b.Offsets()[0]+int64(len(b.Bytes()))-int64(len("junk\r\n")), fe.Offset)
}

func TestReader_GzipSkipsDamagedMembers(t *testing.T) {
	first := warctest.NewGzip().
		Response(warctest.Response{URL: "https://example.org/a", ContentType: "text/plain", Body: []byte("a")}).
		Bytes()
	second := warctest.NewGzip().
		Response(warctest.Response{URL: "https://example.org/b", ContentType: "text/plain", Body: []byte("b")}).
		Bytes()

	// A well-formed gzip member that does not hold a WARC record.
	var notWarc bytes.Buffer
	zw := gzip.NewWriter(&notWarc)
	zw.Write([]byte("not a warc record\r\n"))
	zw.Close()
	junk := []byte("xx")

	var data []byte
	data = append(data, first...)
	data = append(data, notWarc.Bytes()...)
	data = append(data, junk...)
	data = append(data, second...)

	r, err := warc.NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	recs := readAll(t, r)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://example.org/a", recs[0].TargetURI)
	assert.Equal(t, "https://example.org/b", recs[1].TargetURI)
	assert.Equal(t, int64(len(first)+notWarc.Len()+len(junk)), recs[1].Offset)
	assert.Equal(t, int64(len(second)), recs[1].Length())
	// The junk bytes are passed over while resynchronising after the
	// non-WARC member, so only one unit is reported.
	assert.Equal(t, 1, r.Skipped())
}

func TestParseFramingPolicy(t *testing.T) {
	p, err := warc.ParseFramingPolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, warc.FramingStrict, p)

	p, err = warc.ParseFramingPolicy("")
	require.NoError(t, err)
	assert.Equal(t, warc.FramingSkip, p)

	_, err = warc.ParseFramingPolicy("lenient")
	assert.Error(t, err)
}

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dtnitsch/metawarc/models"
)

func strPtr(s string) *string { return &s }

func TestExtension(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.org/a/b.JPG?x=1", "jpg"},
		{"https://x.org/a/b", ""},
		{"https://x.org/", ""},
		{"https://x.org/archive.tar.gz", "gz"},
		{"https://x.org/report.pdf?download=1&v=2", "pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.url))
		})
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "b.jpg", Filename("https://x.org/a/b.JPG?x=1"))
	assert.Equal(t, "", Filename("https://x.org/"))
	assert.Equal(t, "index.html", Filename("https://x.org/Index.HTML"))
}

func TestContentType(t *testing.T) {
	norm, cs := ContentType(strPtr("text/html; charset=UTF-8"))
	if assert.NotNil(t, norm) && assert.NotNil(t, cs) {
		assert.Equal(t, "text/html", *norm)
		assert.Equal(t, "utf-8", *cs)
	}

	norm, cs = ContentType(strPtr(` Application/PDF ; name=x; charset="ISO-8859-1"`))
	if assert.NotNil(t, norm) && assert.NotNil(t, cs) {
		assert.Equal(t, "application/pdf", *norm)
		assert.Equal(t, "iso-8859-1", *cs)
	}

	norm, cs = ContentType(strPtr("image/png"))
	assert.Equal(t, "image/png", *norm)
	assert.Nil(t, cs)

	norm, cs = ContentType(strPtr(`text/plain; charset=""`))
	assert.Equal(t, "text/plain", *norm)
	assert.Nil(t, cs)

	norm, cs = ContentType(nil)
	assert.Nil(t, norm)
	assert.Nil(t, cs)
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		name string
		mime *string
		ext  string
		want Family
	}{
		{"html by mime", strPtr("text/html"), "", FamilyHTML},
		{"mime wins over ext", strPtr("application/pdf"), "html", FamilyPDF},
		{"docx by mime", strPtr("application/vnd.openxmlformats-officedocument.wordprocessingml.document"), "", FamilyOfficeXML},
		{"legacy by ext", strPtr("application/octet-stream"), "doc", FamilyOfficeLegacy},
		{"image by ext without mime", nil, "jpeg", FamilyImage},
		{"two letter ext ignored", nil, "js", FamilyNone},
		{"long ext ignored", nil, "xhtml", FamilyNone},
		{"unknown", strPtr("text/css"), "css", FamilyNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FamilyOf(tt.mime, tt.ext))
		})
	}
}

func TestFamilyTables(t *testing.T) {
	assert.Equal(t, models.TableLinks, FamilyHTML.Table())
	assert.Equal(t, models.TableType(""), FamilyNone.Table())
	for _, tt := range []models.TableType{models.TableLinks, models.TableOleDocs, models.TableOOXMLDocs, models.TablePDFs, models.TableImages} {
		f, ok := FamilyForTable(tt)
		assert.True(t, ok, tt)
		assert.Equal(t, tt, f.Table())
	}
	_, ok := FamilyForTable(models.TableRecords)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	res := Classify("https://example.org/docs/Report.PDF", strPtr("application/pdf"))
	assert.Equal(t, "report.pdf", res.Filename)
	assert.Equal(t, "pdf", res.Ext)
	assert.Equal(t, FamilyPDF, res.Family)
	assert.Equal(t, "application/pdf", *res.ContentTypeRaw)
}

func TestSuggestedExt(t *testing.T) {
	assert.Equal(t, "docx", SuggestedExt(strPtr("application/vnd.openxmlformats-officedocument.wordprocessingml.document"), "", FamilyOfficeXML))
	assert.Equal(t, "jpg", SuggestedExt(strPtr("image/jpeg"), "jpeg", FamilyImage))
	assert.Equal(t, "gif", SuggestedExt(strPtr("image/gif"), "gif", FamilyImage))
	assert.Equal(t, "bin", SuggestedExt(nil, "", FamilyOfficeLegacy))
}

func TestDumpExt(t *testing.T) {
	assert.Equal(t, "pdf", DumpExt(strPtr("application/pdf")))
	assert.Equal(t, "html", DumpExt(strPtr("Text/HTML; charset=utf-8")))
	assert.Equal(t, UnknownExt, DumpExt(strPtr("application/x-made-up")))
	assert.Equal(t, UnknownExt, DumpExt(nil))
}

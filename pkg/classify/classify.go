// Package classify derives content type, charset, filename, extension and
// document family from a record's URL and Content-Type header.
package classify

import (
	"strings"

	"github.com/dtnitsch/metawarc/models"
)

// Family is the document bucket that decides which extractor runs.
type Family int

const (
	FamilyNone Family = iota
	FamilyHTML
	FamilyOfficeLegacy
	FamilyOfficeXML
	FamilyPDF
	FamilyImage
)

var familyNames = map[Family]string{
	FamilyNone:         "none",
	FamilyHTML:         "html",
	FamilyOfficeLegacy: "office-legacy",
	FamilyOfficeXML:    "office-xml",
	FamilyPDF:          "pdf",
	FamilyImage:        "image",
}

func (f Family) String() string { return familyNames[f] }

var familyTables = map[Family]models.TableType{
	FamilyHTML:         models.TableLinks,
	FamilyOfficeLegacy: models.TableOleDocs,
	FamilyOfficeXML:    models.TableOOXMLDocs,
	FamilyPDF:          models.TablePDFs,
	FamilyImage:        models.TableImages,
}

// Table returns the catalog table fed by the family, or "" for FamilyNone.
func (f Family) Table() models.TableType { return familyTables[f] }

// FamilyForTable returns the family whose rows land in t.
func FamilyForTable(t models.TableType) (Family, bool) {
	for f, table := range familyTables {
		if table == t {
			return f, true
		}
	}
	return FamilyNone, false
}

// mimeFamilies is consulted before the extension table.
var mimeFamilies = map[string]Family{
	"text/html":             FamilyHTML,
	"application/xhtml+xml": FamilyHTML,

	"application/msword":            FamilyOfficeLegacy,
	"application/vnd.ms-excel":      FamilyOfficeLegacy,
	"application/vnd.ms-powerpoint": FamilyOfficeLegacy,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   FamilyOfficeXML,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         FamilyOfficeXML,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": FamilyOfficeXML,

	"application/pdf":   FamilyPDF,
	"application/x-pdf": FamilyPDF,

	"image/png":  FamilyImage,
	"image/jpeg": FamilyImage,
	"image/gif":  FamilyImage,
	"image/tiff": FamilyImage,
	"image/bmp":  FamilyImage,
	"image/webp": FamilyImage,
	"image/jp2":  FamilyImage,
}

var extFamilies = map[string]Family{
	"html": FamilyHTML,
	"htm":  FamilyHTML,

	"doc": FamilyOfficeLegacy,
	"xls": FamilyOfficeLegacy,
	"ppt": FamilyOfficeLegacy,

	"docx": FamilyOfficeXML,
	"xlsx": FamilyOfficeXML,
	"pptx": FamilyOfficeXML,

	"pdf": FamilyPDF,

	"jpg":  FamilyImage,
	"jpeg": FamilyImage,
	"png":  FamilyImage,
	"jp2":  FamilyImage,
	"tiff": FamilyImage,
	"gif":  FamilyImage,
	"bmp":  FamilyImage,
	"webp": FamilyImage,
}

// suggestedExt names temp files and document rows for the document mimes.
var suggestedExt = map[string]string{
	"application/msword":            "doc",
	"application/vnd.ms-excel":      "xls",
	"application/vnd.ms-powerpoint": "ppt",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/pdf":   "pdf",
	"application/x-pdf": "pdf",
	"image/png":         "png",
	"image/jpeg":        "jpg",
	"text/html":         "html",
}

var defaultFamilyExt = map[Family]string{
	FamilyHTML:         "html",
	FamilyOfficeLegacy: "bin",
	FamilyOfficeXML:    "zip",
	FamilyPDF:          "pdf",
	FamilyImage:        "img",
}

// Result is the classification of one record.
type Result struct {
	ContentTypeRaw *string
	ContentType    *string
	Charset        *string
	Filename       string
	Ext            string
	Family         Family
}

// Classify classifies a record from its target URL and raw Content-Type.
func Classify(rawURL string, contentType *string) Result {
	normalized, charset := ContentType(contentType)
	ext := Extension(rawURL)
	return Result{
		ContentTypeRaw: contentType,
		ContentType:    normalized,
		Charset:        charset,
		Filename:       Filename(rawURL),
		Ext:            ext,
		Family:         FamilyOf(normalized, ext),
	}
}

// Filename returns the lowercased last path segment of rawURL without its
// query string.
func Filename(rawURL string) string {
	path, _, _ := strings.Cut(rawURL, "?")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return strings.ToLower(path)
}

// Extension returns the text after the last "." of Filename(rawURL), or "".
func Extension(rawURL string) string {
	name := Filename(rawURL)
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// ContentType normalizes a raw Content-Type header. A nil header yields nil
// for both results.
func ContentType(raw *string) (normalized, charset *string) {
	if raw == nil {
		return nil, nil
	}
	mediaType, params, _ := strings.Cut(*raw, ";")
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	normalized = &mt
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(param, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "charset") {
			continue
		}
		charset = models.StringPtr(strings.ToLower(strings.Trim(strings.TrimSpace(value), `"'`)))
		break
	}
	return normalized, charset
}

// FamilyOf resolves the family, preferring the content type over the
// extension. Extensions only count when they are 3 or 4 characters long.
func FamilyOf(contentType *string, ext string) Family {
	if contentType != nil {
		if f, ok := mimeFamilies[*contentType]; ok {
			return f
		}
	}
	if len(ext) == 3 || len(ext) == 4 {
		if f, ok := extFamilies[ext]; ok {
			return f
		}
	}
	return FamilyNone
}

// SuggestedExt picks the file extension used for a routed document: the
// mime's usual extension, else the URL's, else a family default.
func SuggestedExt(contentType *string, urlExt string, family Family) string {
	if contentType != nil {
		if ext, ok := suggestedExt[*contentType]; ok {
			return ext
		}
	}
	if urlExt != "" {
		return urlExt
	}
	return defaultFamilyExt[family]
}

package classify

import "strings"

// UnknownExt names dumped payloads whose content type has no mapping.
const UnknownExt = "unknown"

// dumpExts maps common content types to file extensions.
var dumpExts = map[string]string{
	"application/atom+xml":                    "xml",
	"application/epub+zip":                    "epub",
	"application/gzip":                        "gz",
	"application/java-archive":                "jar",
	"application/javascript":                  "js",
	"application/json":                        "json",
	"application/ld+json":                     "jsonld",
	"application/msword":                      "doc",
	"application/octet-stream":                "bin",
	"application/pdf":                         "pdf",
	"application/rar":                         "rar",
	"application/rss+xml":                     "xml",
	"application/rtf":                         "rtf",
	"application/vnd.android.package-archive": "apk",
	"application/vnd.ms-excel":                "xls",
	"application/vnd.ms-fontobject":           "eot",
	"application/vnd.ms-powerpoint":           "ppt",
	"application/vnd.oasis.opendocument.presentation":                           "odp",
	"application/vnd.oasis.opendocument.spreadsheet":                            "ods",
	"application/vnd.oasis.opendocument.text":                                   "odt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.rar":          "rar",
	"application/vnd.visio":        "vsd",
	"application/x-font-woff":      "woff",
	"application/x-7z-compressed":  "7z",
	"application/x-bzip":           "bz",
	"application/x-bzip2":          "bz2",
	"application/x-font-ttf":       "ttf",
	"application/x-javascript":     "js",
	"application/x-pdf":            "pdf",
	"application/x-tar":            "tar",
	"application/x-x509-ca-cert":   "crt",
	"application/x-zip-compressed": "zip",
	"application/xhtml+xml":        "html",
	"application/xml":              "xml",
	"application/zip":              "zip",

	"audio/mp3":   "mp3",
	"audio/mpeg":  "mp3",
	"audio/ogg":   "ogg",
	"audio/x-wav": "wav",
	"audio/wav":   "wav",
	"audio/webm":  "weba",

	"font/otf":   "otf",
	"font/ttf":   "ttf",
	"font/woff":  "woff",
	"font/woff2": "woff2",

	"image/bmp":     "bmp",
	"image/gif":     "gif",
	"image/jpeg":    "jpg",
	"image/png":     "png",
	"image/svg+xml": "svg",
	"image/tiff":    "tif",
	"image/webp":    "webp",
	"image/x-icon":  "ico",

	"text/calendar":   "ics",
	"text/css":        "css",
	"text/csv":        "csv",
	"text/html":       "html",
	"text/javascript": "js",
	"text/plain":      "txt",
	"text/xml":        "xml",

	"video/mp2t":      "ts",
	"video/mp4":       "mp4",
	"video/ogg":       "ogv",
	"video/quicktime": "mov",
	"video/webm":      "webm",
	"video/x-ms-wmv":  "wmv",
	"video/x-msvideo": "avi",
}

// DumpExt returns the file extension for a payload of the given content
// type. Parameters after ";" are ignored; unmapped or missing types give
// UnknownExt.
func DumpExt(contentType *string) string {
	if contentType == nil {
		return UnknownExt
	}
	mt, _, _ := strings.Cut(*contentType, ";")
	if ext, ok := dumpExts[strings.ToLower(strings.TrimSpace(mt))]; ok {
		return ext
	}
	return UnknownExt
}

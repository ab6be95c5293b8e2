package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/classify"
	"github.com/dtnitsch/metawarc/pkg/query"
)

const (
	defaultLimit = 1000
	maxLimit     = 10000
)

func (s *Server) health(c *gin.Context) {
	if err := s.store.DB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listFiles(c *gin.Context) {
	files, err := s.store.Files(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if files == nil {
		files = []models.SourceFile{}
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

func (s *Server) listTables(c *gin.Context) {
	var t models.TableType
	if raw := c.Query("table"); raw != "" {
		parsed, err := models.ParseTableType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t = parsed
	}
	tables, err := s.store.Tables(c.Request.Context(), t)
	if err != nil {
		s.fail(c, err)
		return
	}
	if tables == nil {
		tables = []models.TableEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables, "count": len(tables)})
}

func (s *Server) stats(c *gin.Context) {
	by, err := query.ParseStatsBy(c.Query("by"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.query.Stats(c.Request.Context(), c.QueryArray("file"), by)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// listRecords pages through a table. Only the parameterized filter language
// is accepted; raw SQL never comes from the network.
func (s *Server) listRecords(c *gin.Context) {
	t := models.TableRecords
	if raw := c.Query("table"); raw != "" {
		parsed, err := models.ParseTableType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t = parsed
	}

	offset, err := intParam(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := intParam(c, "limit", defaultLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	sel := query.Selection{
		Mimes:  query.SplitList(c.Query("mime")),
		Exts:   query.SplitList(c.Query("ext")),
		Filter: c.Query("filter"),
		Offset: offset,
		Limit:  limit,
	}
	rs, err := s.query.List(c.Request.Context(), c.QueryArray("file"), t, sel)
	if err != nil {
		s.fail(c, err)
		return
	}
	if rs.Rows == nil {
		rs.Rows = [][]any{}
	}
	c.JSON(http.StatusOK, gin.H{
		"table":   rs.Table,
		"columns": rs.Columns,
		"rows":    rs.Rows,
		"count":   len(rs.Rows),
		"offset":  offset,
		"limit":   limit,
		"skipped": rs.Skipped,
	})
}

// payload streams the decoded payload of one record, found by warc id or URL.
func (s *Server) payload(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		id = c.Query("url")
	}
	row, err := s.query.Find(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	contentType := "application/octet-stream"
	if row.ContentTypeRaw != nil {
		contentType = *row.ContentTypeRaw
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", row.WarcID+"."+classify.DumpExt(row.ContentTypeRaw)))
	c.Status(http.StatusOK)
	if _, err := s.query.CopyPayload(*row, c.Writer); err != nil {
		// Headers are already sent; the error only reaches the log.
		_ = c.Error(err)
	}
}

// fail maps query and catalog errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, query.ErrSelectionConflict), errors.Is(err, query.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, query.ErrNotFound):
		status = http.StatusNotFound
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

// Package httpapi serves read-only inspection of a directory of
// container files over HTTP.
package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/iyesgames/iyesmesh/internal/logger"
	"github.com/iyesgames/iyesmesh/pkg/ima"
)

type Server struct {
	store    *Store
	settings ima.ReaderSettings
	log      logger.Logger
}

func NewServer(store *Store, settings ima.ReaderSettings, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{store: store, settings: settings, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/files", s.handleListFiles)
	e.POST("/v1/files/rescan", s.handleRescan)
	e.GET("/v1/files/:id", s.handleFileInfo)
	e.GET("/v1/files/:id/user-data", s.handleUserData)
	e.GET("/v1/files/:id/verify", s.handleVerify)
}

func (s *Server) handleListFiles(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"files": s.store.List(),
	})
}

func (s *Server) handleRescan(c *echo.Context) error {
	if err := s.store.Scan(); err != nil {
		s.log.Error("rescan failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "scan_error", err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"files": s.store.List(),
	})
}

func (s *Server) handleFileInfo(c *echo.Context) error {
	entry, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "no such file")
	}
	f, err := ima.OpenFile(s.store.Path(entry))
	if err != nil {
		return writeUnreadable(c, err.Error())
	}
	defer f.Close()

	rd, err := ima.OpenWithSettings(s.settings, f.Reader())
	if err != nil {
		return writeUnreadable(c, err.Error())
	}
	return c.JSON(http.StatusOK, Describe(rd.Header(), rd.Descriptor()))
}

func (s *Server) handleUserData(c *echo.Context) error {
	entry, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "no such file")
	}
	f, err := ima.OpenFile(s.store.Path(entry))
	if err != nil {
		return writeUnreadable(c, err.Error())
	}
	defer f.Close()

	rd, err := ima.OpenWithSettings(s.settings, f.Reader())
	if err != nil {
		return writeUnreadable(c, err.Error())
	}
	data, err := rd.ReadUserData()
	if err != nil {
		return writeUnreadable(c, err.Error())
	}
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

// handleVerify runs the full decode pipeline and reports the result.
func (s *Server) handleVerify(c *echo.Context) error {
	entry, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "no such file")
	}
	if err := s.verifyFile(s.store.Path(entry)); err != nil {
		return c.JSON(http.StatusOK, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) verifyFile(path string) error {
	f, err := ima.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rd, err := ima.OpenWithSettings(s.settings, f.Reader())
	if err != nil {
		return err
	}
	withData, err := rd.ReadAllData()
	if err != nil {
		return err
	}
	flat, err := withData.IntoFlatBuffers()
	if err != nil {
		return err
	}
	_, err = withData.IntoSplitMeshes(flat)
	return err
}

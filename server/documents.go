package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/remote"
)

type queryRequest struct {
	Collection string          `json:"collection"`
	Filters    []remote.Filter `json:"filters"`
}

type createRequest struct {
	Collection string      `json:"collection"`
	Data       remote.Data `json:"data"`
}

func (s *Server) handleGetDoc(c echo.Context) error {
	path := c.QueryParam("path")
	if err := remote.ValidateDocPath(path); err != nil {
		return s.storeError(c, err)
	}
	if err := authorize(currentUser(c), path, false); err != nil {
		return s.storeError(c, err)
	}

	doc, err := s.store.Get(c.Request().Context(), path)
	if err != nil {
		return s.storeError(c, err)
	}
	if err := authorizeRead(currentUser(c), path, doc.Data); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleSetDoc(c echo.Context) error {
	path := c.QueryParam("path")
	data, err := decodeData(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid document"})
	}
	if err := s.checkWrite(c, remote.Op{Kind: remote.OpSet, Path: path, Data: data}, remote.ValidateDocPath); err != nil {
		return s.storeError(c, err)
	}
	if err := s.store.Set(c.Request().Context(), path, data); err != nil {
		return s.storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUpdateDoc(c echo.Context) error {
	path := c.QueryParam("path")
	data, err := decodeData(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid document"})
	}
	if err := s.checkWrite(c, remote.Op{Kind: remote.OpUpdate, Path: path, Data: data}, remote.ValidateDocPath); err != nil {
		return s.storeError(c, err)
	}
	if err := s.store.Update(c.Request().Context(), path, data); err != nil {
		return s.storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteDoc(c echo.Context) error {
	path := c.QueryParam("path")
	if err := s.checkWrite(c, remote.Op{Kind: remote.OpDelete, Path: path}, remote.ValidateDocPath); err != nil {
		return s.storeError(c, err)
	}

	if err := s.store.Delete(c.Request().Context(), path); err != nil {
		return s.storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCreateDoc(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := s.checkWrite(c, remote.Op{Kind: remote.OpSet, Path: req.Collection, Data: req.Data}, remote.ValidateCollectionPath); err != nil {
		return s.storeError(c, err)
	}

	id, err := s.store.Create(c.Request().Context(), req.Collection, req.Data)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := remote.ValidateCollectionPath(req.Collection); err != nil {
		return s.storeError(c, err)
	}
	if err := authorizeQuery(currentUser(c), req.Collection, req.Filters); err != nil {
		return s.storeError(c, err)
	}

	docs, err := s.store.List(c.Request().Context(), req.Collection, req.Filters...)
	if err != nil {
		return s.storeError(c, err)
	}
	if docs == nil {
		docs = []remote.Document{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) handleBatch(c echo.Context) error {
	var b remote.Batch
	if err := c.Bind(&b); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := b.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	for _, op := range b.Ops {
		if err := s.authorizeWrite(c.Request().Context(), currentUser(c), op); err != nil {
			return s.storeError(c, err)
		}
	}

	if err := s.store.Commit(c.Request().Context(), &b); err != nil {
		return s.storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// checkWrite validates the path shape and the caller's right to apply op
func (s *Server) checkWrite(c echo.Context, op remote.Op, validate func(string) error) error {
	if err := validate(op.Path); err != nil {
		return err
	}
	return s.authorizeWrite(c.Request().Context(), currentUser(c), op)
}

// storeError maps store failures onto HTTP statuses
func (s *Server) storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, remote.ErrInvalidPath):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, remote.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	}

	logger.Error("Store operation failed",
		logger.F("method", c.Request().Method),
		logger.F("user", currentUser(c)),
		logger.Err(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// decodeData reads a raw document body. echo's binder does not fill
// untyped maps from query parameters, so the body is decoded directly.
func decodeData(c echo.Context) (remote.Data, error) {
	data := remote.Data{}
	if err := json.NewDecoder(c.Request().Body).Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/diskvfs/diskvfs/internal/filesystem"
	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
)

// session builds the per-request session. The optional cwd parameter sets its working
// directory before any path of the request is resolved.
func (s *Server) session(r *http.Request) (*filesystem.Session, error) {
	session := s.fsys.NewSession()
	if cwd := r.URL.Query().Get("cwd"); cwd != "" {
		if err := session.SetWorkingDirectory(r.Context(), cwd); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func requiredParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", errors.Newf(errors.ErrCodeInvalidArgument, "missing query parameter %q", name).
			WithComponent("api")
	}
	return v, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Newf(errors.ErrCodeInvalidArgument, "invalid boolean %s=%q", name, v).
			WithComponent("api")
	}
	return b, nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeInvalidArgument, "invalid integer %s=%q", name, v).
			WithComponent("api")
	}
	return n, nil
}

// pathRequest resolves the session and the path parameter shared by most handlers.
func (s *Server) pathRequest(w http.ResponseWriter, r *http.Request, method string) (*filesystem.Session, string, bool) {
	if !s.allowMethod(w, r, method) {
		return nil, "", false
	}
	path, err := requiredParam(r, "path")
	if err != nil {
		s.respondFSError(w, r, err)
		return nil, "", false
	}
	session, err := s.session(r)
	if err != nil {
		s.respondFSError(w, r, err)
		return nil, "", false
	}
	return session, path, true
}

func (s *Server) respondResult(w http.ResponseWriter, ok bool) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": ok})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodGet)
	if !ok {
		return
	}
	withOwner, err := boolParam(r, "owner")
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}

	var st types.FileStatus
	if withOwner {
		st, err = session.StatResolved(r.Context(), path)
	} else {
		st, err = session.Stat(r.Context(), path)
	}
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodGet)
	if !ok {
		return
	}
	list, err := session.ListStatus(r.Context(), path)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleMkdirs(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodPost)
	if !ok {
		return
	}
	created, err := session.Mkdirs(r.Context(), path)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	s.respondResult(w, created)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodDelete)
	if !ok {
		return
	}
	recursive, err := boolParam(r, "recursive")
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	deleted, err := session.Delete(r.Context(), path, recursive)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	s.respondResult(w, deleted)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	src, err := requiredParam(r, "src")
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	dst, err := requiredParam(r, "dst")
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	session, err := s.session(r)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	renamed, err := session.Rename(r.Context(), src, dst)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	s.respondResult(w, renamed)
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodPost)
	if !ok {
		return
	}
	q := r.URL.Query()
	if err := session.SetOwner(r.Context(), path, q.Get("user"), q.Get("group")); err != nil {
		s.respondFSError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodGet)
	if !ok {
		return
	}
	offset, err := int64Param(r, "offset")
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	length, err := int64Param(r, "length")
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}

	rs, err := session.Open(r.Context(), path, 0)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	defer rs.Close()

	if err := rs.SeekTo(offset); err != nil {
		s.respondFSError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if length > 0 {
		_, err = io.CopyN(w, rs, length)
		if err == io.EOF {
			err = nil
		}
	} else {
		_, err = io.Copy(w, rs)
	}
	if err != nil {
		// headers are sent; the client sees a short body
		s.logger.WithError(err).Warn("read stream failed", map[string]interface{}{
			"path":       path,
			"request_id": RequestID(r.Context()),
		})
	}
}

// writeBody copies the request body into ws and closes it.
func writeBody(ws *filesystem.WriteStream, body io.Reader) (int64, error) {
	n, err := io.Copy(ws, body)
	if closeErr := ws.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodPut)
	if !ok {
		return
	}
	overwrite, err := boolParam(r, "overwrite")
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	opts := filesystem.CreateOptions{Overwrite: overwrite}
	if raw := r.URL.Query().Get("permission"); raw != "" {
		perm, err := types.ParsePermission(raw)
		if err != nil {
			s.respondFSError(w, r, errors.NewError(errors.ErrCodeInvalidArgument, err.Error()).WithComponent("api"))
			return
		}
		opts.Permission = &perm
	}

	ws, err := session.Create(r.Context(), path, opts)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	n, err := writeBody(ws, r.Body)
	if err != nil {
		s.respondFSError(w, r, errors.FromOS("create", path, err))
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"bytes": n})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	session, path, ok := s.pathRequest(w, r, http.MethodPost)
	if !ok {
		return
	}
	ws, err := session.Append(r.Context(), path, 0)
	if err != nil {
		s.respondFSError(w, r, err)
		return
	}
	n, err := writeBody(ws, r.Body)
	if err != nil {
		s.respondFSError(w, r, errors.FromOS("append", path, err))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"bytes": n})
}

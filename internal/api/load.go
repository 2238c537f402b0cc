package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/controller"
	"github.com/kamkard/gltfview/internal/events"
	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/protocol"
)

// filesField is the multipart field carrying dropped files. The part's
// filename is the file's path relative to the dropped folder.
const filesField = "files"

// handleLoadFiles handles POST /api/v1/load with a multipart drop.
func (s *Server) handleLoadFiles(w http.ResponseWriter, r *http.Request) {
	s.broadcaster.Publish(events.Event{Type: events.EventDropStart})

	if s.maxUploadSize > 0 {
		if r.ContentLength > s.maxUploadSize {
			s.dropError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload too large: max %d bytes", s.maxUploadSize))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	}

	set, err := readDrop(r)
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		s.dropError(w, code, err)
		return
	}

	logging.WithContext(r.Context()).Info("drop received",
		zap.Int("files", len(set)),
		zap.Strings("keys", set.Keys()))
	s.load(w, r, controller.FromFiles(set))
}

// handleLoadURL handles POST /api/v1/load/url.
func (s *Server) handleLoadURL(w http.ResponseWriter, r *http.Request) {
	var req protocol.LoadURLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		s.sendError(w, http.StatusBadRequest, "url must be absolute")
		return
	}
	switch u.Scheme {
	case "http", "https", "s3":
	default:
		s.sendError(w, http.StatusBadRequest, "url scheme must be http, https or s3")
		return
	}
	s.load(w, r, controller.FromAddress(u.String()))
}

// load runs a load and reports its outcome. Classified failures are 422,
// superseded attempts 409. The attempt outlives the client connection; only
// a newer load or the load timeout ends it.
func (s *Server) load(w http.ResponseWriter, r *http.Request, src controller.Source) {
	out, err := s.ctrl.Load(context.WithoutCancel(r.Context()), src)
	resp := protocol.LoadResponse{
		Seq:       out.Seq,
		Root:      out.Root,
		Validated: out.Validated,
		Session:   s.ctrl.Session().Snapshot(),
	}
	resp.State = resp.Session.State
	if out.Scene != nil {
		resp.SceneID = out.Scene.ID
	}

	code := http.StatusOK
	var ce *classify.Error
	switch {
	case errors.Is(err, controller.ErrSuperseded):
		code = http.StatusConflict
		resp.Error = &protocol.ErrorResponse{Error: err.Error(), Code: code}
	case errors.As(err, &ce):
		code = http.StatusUnprocessableEntity
		resp.Error = &protocol.ErrorResponse{Error: ce.Message, Code: code, Kind: string(ce.Kind)}
	case err != nil:
		code = http.StatusInternalServerError
		resp.Error = &protocol.ErrorResponse{Error: err.Error(), Code: code}
	}
	s.sendJSON(w, code, resp)
}

func (s *Server) dropError(w http.ResponseWriter, code int, err error) {
	s.broadcaster.Publish(events.Event{Type: events.EventDropError, Message: err.Error()})
	s.sendErrorDetails(w, code, "failed to read dropped files", err.Error())
}

// readDrop streams the multipart body into an in-memory file set.
func readDrop(r *http.Request) (fileset.Set, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	set := make(fileset.Set)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != filesField {
			part.Close()
			continue
		}

		key, err := partPath(part)
		if err != nil {
			part.Close()
			return nil, err
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		set[key] = fileset.NewBytes(path.Base(key), part.Header.Get("Content-Type"), data)
	}
	return set, nil
}

// partPath returns the relative path sent as the part's filename. The raw
// header is parsed because multipart.Part.FileName drops directories.
func partPath(part *multipart.Part) (string, error) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", fmt.Errorf("bad content disposition: %w", err)
	}
	return cleanKey(params["filename"])
}

// cleanKey normalizes a client-supplied relative path.
func cleanKey(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", errors.New("file name required")
	}
	key := path.Clean(name)
	if key == "." || key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("invalid file path %q", name)
	}
	return key, nil
}

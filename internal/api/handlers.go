package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/burrowfs/burrow/internal/events"
	"github.com/burrowfs/burrow/internal/logging"
	"github.com/burrowfs/burrow/internal/metrics"
	"github.com/burrowfs/burrow/internal/session"
	"github.com/burrowfs/burrow/internal/storage"
	"github.com/burrowfs/burrow/pkg/protocol"
)

// metadataPartLimit caps the JSON metadata part of an upload.
const metadataPartLimit = 64 << 10

var rangeRegex = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// handleGet serves a directory listing as JSON or streams file
// content, depending on what the path names.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, ok := s.parseTarget(w, r)
	if !ok {
		return
	}

	d, err := s.gateway.Stat(r.Context(), t.tenant, t.path)
	if err != nil {
		sendStorageError(w, r, err)
		return
	}

	if d.Kind == storage.KindDirectory {
		listing, err := s.gateway.List(r.Context(), t.tenant, t.path)
		if err != nil {
			sendStorageError(w, r, err)
			return
		}
		out := make([]protocol.Descriptor, 0, len(listing))
		for _, entry := range listing {
			out = append(out, toWire(entry))
		}
		sendJSON(w, http.StatusOK, out)
		return
	}

	s.serveContent(w, r, t)
}

// serveContent streams a file, honoring a single bytes range.
func (s *Server) serveContent(w http.ResponseWriter, r *http.Request, t target) {
	f, d, err := s.gateway.Open(r.Context(), t.tenant, t.path)
	if err != nil {
		sendStorageError(w, r, err)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(d.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	offset, length := int64(0), d.Size
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		m := rangeRegex.FindStringSubmatch(rangeHeader)
		if m == nil {
			sendError(w, http.StatusRequestedRangeNotSatisfiable, "unsupported range")
			return
		}
		start, end := m[1], m[2]
		switch {
		case start != "" && end != "":
			offset, _ = strconv.ParseInt(start, 10, 64)
			e, _ := strconv.ParseInt(end, 10, 64)
			length = e - offset + 1
		case start != "":
			offset, _ = strconv.ParseInt(start, 10, 64)
			length = d.Size - offset
		case end != "":
			// Suffix range: last N bytes.
			n, _ := strconv.ParseInt(end, 10, 64)
			if n > d.Size {
				n = d.Size
			}
			offset, length = d.Size-n, n
		default:
			sendError(w, http.StatusRequestedRangeNotSatisfiable, "unsupported range")
			return
		}
		if offset < 0 || length <= 0 || offset+length > d.Size {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", d.Size))
			sendError(w, http.StatusRequestedRangeNotSatisfiable, "range out of bounds")
			return
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			sendError(w, http.StatusInternalServerError, "storage failure")
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, d.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}

	written, err := io.CopyN(w, f, length)
	metrics.AddDownloadBytes(written)
	if err != nil && !errors.Is(err, io.EOF) {
		// Headers are gone; all we can do is log.
		logging.Debug("download aborted",
			zap.String("tenant", string(t.tenant)),
			zap.String("path", t.path.String()),
			zap.Error(err))
	}
}

// handlePost creates a folder or uploads a file into the directory the
// path names. The body is multipart: a "metadata" JSON part, then a
// "payload" part when the metadata says File.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	t, ok := s.parseTarget(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	mr, err := r.MultipartReader()
	if err != nil {
		sendError(w, http.StatusBadRequest, "multipart body required")
		return
	}

	part, err := mr.NextPart()
	if err != nil || part.FormName() != "metadata" {
		sendError(w, http.StatusBadRequest, "metadata part required")
		return
	}
	var meta protocol.UploadMetadata
	if err := json.NewDecoder(io.LimitReader(part, metadataPartLimit)).Decode(&meta); err != nil {
		sendError(w, http.StatusBadRequest, "malformed metadata")
		return
	}
	part.Close()

	switch meta.Kind {
	case protocol.UploadKindFolder:
		d, err := s.gateway.CreateFolder(r.Context(), t.tenant, t.path, meta.Name)
		if err != nil {
			sendStorageError(w, r, err)
			return
		}
		s.publish(events.EventCreated, t.tenant, t.path.Join(meta.Name), 0)
		w.Header().Set("Location", storageLocation(t.tenant, t.path.Join(meta.Name)))
		sendJSON(w, http.StatusCreated, toWire(d))

	case protocol.UploadKindFile:
		payload, err := mr.NextPart()
		if err != nil || payload.FormName() != "payload" {
			sendError(w, http.StatusBadRequest, "payload part required")
			return
		}
		defer payload.Close()

		// The gateway sanitizes its errors, so the body-limit error is
		// captured on the reader side where the handler can still see it.
		src := &readErrCapture{r: payload}
		d, err := s.gateway.Upload(r.Context(), t.tenant, t.path, meta.Name, src, storage.UploadTimes{
			LastAccess:   meta.LastAccess,
			LastModified: meta.LastModified,
		})
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(src.err, &tooLarge) {
				sendError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			sendStorageError(w, r, err)
			return
		}
		s.publish(events.EventUploaded, t.tenant, t.path.Join(meta.Name), d.Size)
		w.Header().Set("Location", storageLocation(t.tenant, t.path.Join(meta.Name)))
		sendJSON(w, http.StatusCreated, toWire(d))

	default:
		sendError(w, http.StatusBadRequest, "unknown kind")
	}
}

// handleDelete removes an entry recursively. The tenant root itself is
// not deletable.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	t, ok := s.parseTarget(w, r)
	if !ok {
		return
	}
	if err := s.gateway.Delete(r.Context(), t.tenant, t.path); err != nil {
		sendStorageError(w, r, err)
		return
	}
	s.publish(events.EventDeleted, t.tenant, t.path, 0)
	sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleEvents streams storage change events over SSE for every
// tenant the caller can reach.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	identity := session.FromContext(r.Context())
	if identity == nil {
		sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	tenants := []storage.Tenant{identity.Tenant}
	if identity.CanAccess(storage.Public) {
		tenants = append(tenants, storage.Public)
	}
	sub := s.broadcaster.Subscribe(tenants...)
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := protocol.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) publish(eventType string, tenant storage.Tenant, vp storage.VirtualPath, size int64) {
	s.broadcaster.Publish(events.Event{
		Type:   eventType,
		Tenant: string(tenant),
		Path:   vp.String(),
		Size:   size,
	})
}

// readErrCapture remembers the first read error it sees.
type readErrCapture struct {
	r   io.Reader
	err error
}

func (c *readErrCapture) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF && c.err == nil {
		c.err = err
	}
	return n, err
}

func storageLocation(tenant storage.Tenant, vp storage.VirtualPath) string {
	if vp.IsRoot() {
		return "/api/v1/storage/" + string(tenant)
	}
	return "/api/v1/storage/" + string(tenant) + "/" + vp.String()
}

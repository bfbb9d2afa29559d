package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/core/log"
)

// Uploads larger than this are staged in a temp file
const stagingMemoryLimit = 8 << 20

// MetadataRequest is the body of PATCH /v1/files
type MetadataRequest struct {
	Mode  string `json:"mode,omitempty"` // octal, e.g. "0644"
	Touch bool   `json:"touch,omitempty"`
}

// V1GetFile handles GET /v1/files/{scheme}/{path} by streaming the file content
func V1GetFile(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, err := streamURI(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if _, ok := authorize(w, r, authorizer, uri, auth.ReadPerm, logger); !ok {
			return
		}

		ctx, cancel := opContext(r, cfg.FileOpTimeout)
		defer cancel()

		rec, err := bridge.URLStat(ctx, uri, core.StatQuiet)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		if rec.IsDir() {
			SendErrorResponse(w, logger, core.ErrIsADirectory, http.StatusConflict)
			return
		}

		stream, err := bridge.Open(ctx, uri, "r", core.OpenReportErrors)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer stream.Close()

		w.Header().Set("Content-Type", backends.ContentType(uri))
		w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
		w.Header().Set("Last-Modified", rec.ModTime().UTC().Format(http.TimeFormat))
		w.Header().Set("X-Flystream-Mode", fmt.Sprintf("%04o", rec.Perm()))
		w.WriteHeader(http.StatusOK)

		if r.Method == http.MethodHead {
			return
		}

		written, err := io.Copy(w, stream)
		if err != nil {
			// Headers are already sent
			logger.Error("Failed to stream file", log.Path("uri", uri), zap.Int64("written", written), zap.Error(err))
		}
	}
}

// V1PutFile handles PUT /v1/files/{scheme}/{path}. The body replaces the file, or is
// appended to it with ?append=true. ?mode sets the permissions afterwards.
func V1PutFile(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, err := streamURI(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if _, ok := authorize(w, r, authorizer, uri, auth.WritePerm, logger); !ok {
			return
		}

		modeParam := r.URL.Query().Get("mode")
		perm, err := parsePerm(modeParam, 0)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		appendMode := queryBool(r, "append")

		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}

		// The body is staged first so a short or oversized body never reaches the operator
		staged := core.NewBuffer(stagingMemoryLimit, "")
		defer staged.Close()
		written, err := io.Copy(staged, r.Body)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if _, err := staged.Seek(0, io.SeekStart); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		ctx, cancel := opContext(r, cfg.FileOpTimeout)
		defer cancel()

		start := time.Now()
		mode := "w"
		if appendMode {
			mode = "a"
		}
		stream, err := bridge.Open(ctx, uri, mode, core.OpenReportErrors)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		// Every failure below leaves the operator untouched; Abort after Close is a no-op
		defer stream.Abort() //nolint:errcheck

		locked, err := stream.Lock(core.LockExclusive | core.LockNonBlocking)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		if !locked {
			SendErrorResponse(w, logger, fmt.Errorf("%w: %s", errLocked, uri), http.StatusLocked)
			return
		}

		if appendMode {
			// The copy taken at open may predate the previous holder's last flush
			if err := stream.Reload(); err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
		}
		if _, err := io.Copy(stream, staged); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		if err := stream.Close(); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		if modeParam != "" {
			if err := bridge.Chmod(ctx, uri, perm); err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
		}

		logger.Info("File written",
			log.Path("uri", uri),
			zap.String("mode", mode),
			zap.Int64("bytes", written),
			zap.Duration("duration", time.Since(start)))

		rec, err := bridge.URLStat(ctx, uri, core.StatQuiet)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		SendJSONResponse(w, http.StatusCreated, newStatResponse(uri, rec))
	}
}

// V1DeleteFile handles DELETE /v1/files/{scheme}/{path}
func V1DeleteFile(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, err := streamURI(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if _, ok := authorize(w, r, authorizer, uri, auth.DeletePerm, logger); !ok {
			return
		}

		ctx, cancel := opContext(r, cfg.FileOpTimeout)
		defer cancel()

		if err := bridge.Unlink(ctx, uri); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// V1PatchFile handles PATCH /v1/files/{scheme}/{path}: touch and chmod
func V1PatchFile(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, err := streamURI(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if _, ok := authorize(w, r, authorizer, uri, auth.WritePerm, logger); !ok {
			return
		}

		var req MetadataRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			SendErrorResponse(w, logger, fmt.Errorf("%w: %v", errInvalidRequest, err), http.StatusBadRequest)
			return
		}
		if req.Mode == "" && !req.Touch {
			SendErrorResponse(w, logger, fmt.Errorf("%w: nothing to change", errInvalidRequest), http.StatusBadRequest)
			return
		}

		perm, err := parsePerm(req.Mode, 0)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := opContext(r, cfg.FileOpTimeout)
		defer cancel()

		if req.Touch {
			if err := bridge.Touch(ctx, uri); err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
		}
		if req.Mode != "" {
			if err := bridge.Chmod(ctx, uri, perm); err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
		}

		rec, err := bridge.URLStat(ctx, uri, core.StatQuiet)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		SendJSONResponse(w, http.StatusOK, newStatResponse(uri, rec))
	}
}

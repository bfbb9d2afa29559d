package handlers

import (
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/core/log"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// DirectoryListing is the body of GET /v1/dirs
type DirectoryListing struct {
	URI     string         `json:"uri"`
	Entries []StatResponse `json:"entries"`
}

// V1ListDirectory handles GET /v1/dirs/{scheme}/{path}
func V1ListDirectory(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
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

		dir, err := bridge.OpenDir(ctx, uri)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer dir.Close()

		names, err := dir.ReadAll()
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		sort.Strings(names)

		scheme, path, _ := core.SplitURI(uri)
		listing := DirectoryListing{URI: uri, Entries: make([]StatResponse, 0, len(names))}
		for _, name := range names {
			entryURI := scheme + "://" + pathutil.Join(path, name)
			rec, err := bridge.URLStat(ctx, entryURI, core.StatQuiet)
			if err != nil {
				// Removed since the listing was taken
				logger.Debug("Skipping entry that could not be stat'ed", log.Path("uri", entryURI), zap.Error(err))
				continue
			}
			listing.Entries = append(listing.Entries, newStatResponse(entryURI, rec))
		}

		SendJSONResponse(w, http.StatusOK, listing)
	}
}

// V1CreateDirectory handles POST /v1/dirs/{scheme}/{path}?recursive=true&mode=0755
func V1CreateDirectory(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, err := streamURI(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if _, ok := authorize(w, r, authorizer, uri, auth.WritePerm, logger); !ok {
			return
		}

		perm, err := parsePerm(r.URL.Query().Get("mode"), 0o755)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		var flags core.DirFlag
		if queryBool(r, "recursive") {
			flags |= core.DirRecursive
		}

		ctx, cancel := opContext(r, cfg.FileOpTimeout)
		defer cancel()

		if err := bridge.Mkdir(ctx, uri, perm, flags); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		rec, err := bridge.URLStat(ctx, uri, core.StatQuiet)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		SendJSONResponse(w, http.StatusCreated, newStatResponse(uri, rec))
	}
}

// V1RemoveDirectory handles DELETE /v1/dirs/{scheme}/{path}?recursive=true
func V1RemoveDirectory(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, err := streamURI(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if _, ok := authorize(w, r, authorizer, uri, auth.DeletePerm, logger); !ok {
			return
		}

		var flags core.DirFlag
		if queryBool(r, "recursive") {
			flags |= core.DirRecursive
		}

		ctx, cancel := opContext(r, cfg.FileOpTimeout)
		defer cancel()

		if err := bridge.Rmdir(ctx, uri, flags); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// StatResponse is the JSON form of a synthesized stat record
type StatResponse struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	Mode  string `json:"mode"`
	UID   int    `json:"uid"`
	GID   int    `json:"gid"`
	MTime string `json:"mtime"`
}

func newStatResponse(uri string, rec *core.StatRecord) StatResponse {
	_, path, _ := core.SplitURI(uri)

	entryType := "file"
	if rec.IsDir() {
		entryType = "directory"
	}

	return StatResponse{
		Name:  pathutil.Base(path),
		URI:   uri,
		Type:  entryType,
		Size:  rec.Size,
		Mode:  fmt.Sprintf("%04o", rec.Perm()),
		UID:   rec.UID,
		GID:   rec.GID,
		MTime: rec.ModTime().UTC().Format(time.RFC3339),
	}
}

// V1Stat handles GET /v1/stat/{scheme}/{path}
func V1Stat(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
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

		flags := core.StatQuiet
		if queryBool(r, "ignore_size") {
			flags |= core.StatIgnoreSize
		}

		rec, err := bridge.URLStat(ctx, uri, flags)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, newStatResponse(uri, rec))
	}
}

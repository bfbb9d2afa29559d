package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core"
)

// RenameRequest is the body of POST /v1/rename. Both sides are full stream uris
// and may use different schemes.
type RenameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// V1Rename handles POST /v1/rename
func V1Rename(bridge Bridge, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			SendErrorResponse(w, logger, fmt.Errorf("%w: %v", errInvalidRequest, err), http.StatusBadRequest)
			return
		}

		for _, uri := range []string{req.From, req.To} {
			if _, _, err := core.SplitURI(uri); err != nil {
				SendErrorResponse(w, logger, err, http.StatusBadRequest)
				return
			}
		}

		if _, ok := authorize(w, r, authorizer, req.From, auth.DeletePerm, logger); !ok {
			return
		}
		if _, ok := authorize(w, r, authorizer, req.To, auth.WritePerm, logger); !ok {
			return
		}

		ctx, cancel := opContext(r, cfg.FileOpTimeout)
		defer cancel()

		if err := bridge.Rename(ctx, req.From, req.To); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		rec, err := bridge.URLStat(ctx, req.To, core.StatQuiet)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		SendJSONResponse(w, http.StatusOK, newStatResponse(req.To, rec))
	}
}

package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/sync"
	"github.com/partvault/partvault/internal/client/vaultmgr"
	"github.com/partvault/partvault/internal/client/workspace"
	"github.com/partvault/partvault/internal/utils"
)

// ConflictsHandler lists conflict marker files and applies resolution
// policies to them.
type ConflictsHandler struct {
	mgr *vaultmgr.VaultManager
}

func NewConflictsHandler(mgr *vaultmgr.VaultManager) *ConflictsHandler {
	return &ConflictsHandler{mgr: mgr}
}

func (h *ConflictsHandler) vault(c *gin.Context) *vaultmgr.Vault {
	v := h.mgr.GetVault()
	if v == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeVaultNotReady, errors.New("no active vault"))
		return nil
	}
	return v
}

// resolveOptionsFor maps an explicit policy to resolver options, falling
// back to the vault's configured conflict policies when none was given. An
// empty policy with nothing configured is refused, not guessed.
func resolveOptionsFor(policy string, settings *sync.VaultSettings) (*sync.ResolveOptions, error) {
	if policy != "" {
		p, err := sync.ParseConflictPolicy(policy)
		if err != nil {
			return nil, err
		}
		return &sync.ResolveOptions{ApplyToAll: true, FilePolicy: p}, nil
	}

	opts, err := settings.ResolveOptions()
	if err != nil {
		return nil, err
	}
	if opts.FilePolicy == sync.PolicyUnset {
		return nil, errors.New("no policy given and none configured in vault settings")
	}
	opts.ApplyToAll = true
	return opts, nil
}

// List godoc
//
//	@Summary		List conflicts
//	@Description	Returns every conflict and rejected marker file in the vault
//	@Tags			conflicts
//	@Produce		json
//	@Success		200	{object}	ConflictListResponse
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/conflicts [get]
//	@Security		APIToken
func (h *ConflictsHandler) List(c *gin.Context) {
	v := h.vault(c)
	if v == nil {
		return
	}
	ws := v.Workspace()

	conflicts := make([]ConflictInfo, 0)

	err := filepath.WalkDir(ws.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == workspace.MetadataDirName {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := ws.RelPath(path)
		if err != nil || !sync.IsMarkedPath(relPath) {
			return nil
		}

		marker := "conflict"
		if sync.IsRejectedPath(relPath) {
			marker = "rejected"
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		conflicts = append(conflicts, ConflictInfo{
			Path:         relPath,
			OriginalPath: sync.UnmarkedPath(relPath),
			Marker:       marker,
			Size:         info.Size(),
			ModTime:      info.ModTime().UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, ConflictListResponse{Conflicts: conflicts})
}

// Resolve godoc
//
//	@Summary		Resolve a conflict
//	@Description	Applies a resolution policy to one marker file
//	@Tags			conflicts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ResolveConflictRequest	true	"Resolution request"
//	@Success		200		{object}	ResolveConflictResponse
//	@Failure		400		{object}	ControlPlaneError
//	@Router			/v1/conflicts/resolve [post]
//	@Security		APIToken
func (h *ConflictsHandler) Resolve(c *gin.Context) {
	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	v := h.vault(c)
	if v == nil {
		return
	}
	ws := v.Workspace()

	opts, err := resolveOptionsFor(req.Policy, v.Sync().Settings())
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	relPath := workspace.NormPath(req.Path)
	markedAbs := ws.AbsPath(relPath)
	if !sync.IsMarkedPath(relPath) {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("path is not a marker file"))
		return
	}
	if !utils.FileExists(markedAbs) {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, errors.New("marker file not found"))
		return
	}

	proposed := []sync.ProposedItem{{
		SourcePath: relPath,
		DestPath:   sync.UnmarkedPath(relPath),
	}}

	dest := func(rel string) (bool, bool) {
		info, err := os.Stat(ws.AbsPath(rel))
		if err != nil {
			return false, false
		}
		return true, info.IsDir()
	}

	plan, err := sync.ResolveBatch(proposed, dest, opts)
	if err != nil {
		if errors.Is(err, sync.ErrConflictUnresolved) || errors.Is(err, sync.ErrBatchCancelled) {
			AbortWithError(c, http.StatusBadRequest, ErrCodeConflictUnresolved, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	if len(plan.Skipped) > 0 {
		if err := os.Remove(markedAbs); err != nil {
			AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
			return
		}
		c.JSON(http.StatusOK, ResolveConflictResponse{Code: CodeOk, Discarded: true})
		return
	}

	item := plan.Items[0]
	if err := utils.MoveFile(markedAbs, ws.AbsPath(item.DestPath)); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, ResolveConflictResponse{Code: CodeOk, ResolvedPath: item.DestPath})
}

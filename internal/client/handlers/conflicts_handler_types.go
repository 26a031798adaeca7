package handlers

// ConflictInfo is one conflict or rejected marker file in the vault.
type ConflictInfo struct {
	Path         string `json:"path"`         // the marker file, vault-relative.
	OriginalPath string `json:"originalPath"` // the path the marker shadows.
	Marker       string `json:"marker"`       // "conflict" or "rejected".
	Size         int64  `json:"size"`
	ModTime      string `json:"modTime"`
}

type ConflictListResponse struct {
	Conflicts []ConflictInfo `json:"conflicts"`
}

// ResolveConflictRequest applies one policy to one marker file. Overwrite
// promotes the marker copy over the working copy, rename keeps both under a
// collision-free name, skip discards the marker copy. An empty policy falls
// back to the conflict policies configured in vault.yaml.
type ResolveConflictRequest struct {
	Path   string `json:"path" binding:"required"`
	Policy string `json:"policy"`
}

type ResolveConflictResponse struct {
	Code         string `json:"code"`
	ResolvedPath string `json:"resolvedPath,omitempty"`
	Discarded    bool   `json:"discarded,omitempty"`
}

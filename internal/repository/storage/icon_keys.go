package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/google/uuid"
)

// Icons live under icons/{workspaceID}/{uuid}.png
const (
	iconKeyRoot   = "icons"
	iconKeySuffix = ".png"
)

// ErrIconNotOwned is returned for keys outside the caller's workspace. It
// reads as not found so other workspaces' keys are not confirmed to exist.
var ErrIconNotOwned = fmt.Errorf("%w: icon not found", domain.ErrNotFound)

// workspacePrefix is the key prefix every icon of a workspace shares
func workspacePrefix(workspaceID int32) string {
	return iconKeyRoot + "/" + strconv.FormatInt(int64(workspaceID), 10) + "/"
}

// NewIconKey allocates a fresh object key inside a workspace
func NewIconKey(workspaceID int32) string {
	return workspacePrefix(workspaceID) + uuid.NewString() + iconKeySuffix
}

// OwnsIconKey reports whether key is a well-formed icon key of workspaceID
func OwnsIconKey(workspaceID int32, key string) bool {
	name, ok := strings.CutPrefix(key, workspacePrefix(workspaceID))
	if !ok || !strings.HasSuffix(name, iconKeySuffix) {
		return false
	}
	return !strings.ContainsAny(name, "/\\") && name != iconKeySuffix
}

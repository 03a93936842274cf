package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lochel/genealogy/logging"
)

const assetCacheDuration = 24 * time.Hour

// AssetServer serves files below baseDir. routePrefix is the URL prefix that
// is stripped before resolving the file, e.g. "/api/images/".
//
//	r.Get("/api/images/*", AssetServer(cfg.ImagesDir, "/api/images/"))
func AssetServer(baseDir, routePrefix string) http.HandlerFunc {
	base := filepath.Clean(baseDir)
	logging.L().Infof("assets: serving '%s*' from directory: %s", routePrefix, base)

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)
		if relativePath == "" || strings.Contains(relativePath, "..") {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid asset path")
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(base, relativePath))
		if !strings.HasPrefix(cleanedAssetPath, base+string(os.PathSeparator)) {
			logging.L().Warnf("assets: attempted access outside %s: request='%s', resolved='%s'", base, r.URL.Path, cleanedAssetPath)
			WriteAPIError(w, http.StatusForbidden, CodeForbidden, "Forbidden")
			return
		}

		info, err := os.Stat(cleanedAssetPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			logging.L().Errorf("assets: error stating %s: %v", cleanedAssetPath, err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Internal Server Error")
			return
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(assetCacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(assetCacheDuration).Format(http.TimeFormat))
		http.ServeFile(w, r, cleanedAssetPath)
	}
}

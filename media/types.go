package media

type AssetType string

const (
	AssetTypePortrait AssetType = "portrait"
	AssetTypeFamily   AssetType = "family"
)

// DefaultSubDirs maps asset types to their directory below the images root.
// Portraits sit at the root, next to the shared default image.
var DefaultSubDirs = map[AssetType]string{
	AssetTypePortrait: "",
	AssetTypeFamily:   "family",
}

// PortraitOptions controls how uploaded portraits are normalized.
type PortraitOptions struct {
	MaxSize int // longest side in pixels
	Quality int // JPEG quality
}

// DiagramOptions controls how rendered family diagrams are post-processed.
type DiagramOptions struct {
	MaxWidth int // 0 keeps the rasterized width
}

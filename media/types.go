package media

type AssetType string

const (
	AssetTypeOriginal  AssetType = "original"
	AssetTypeThumbnail AssetType = "thumbnail"
)

// Metadata holds what is read from an uploaded image before it is stored
type Metadata struct {
	Format  string `json:"format"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	TakenAt *int64 `json:"taken_at,omitempty"`
}

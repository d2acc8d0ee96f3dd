package database

const (
	SortFilenameNat  = "filename_nat"
	SortUploadedAsc  = "uploaded_asc"
	SortUploadedDesc = "uploaded_desc"
)

const DefaultSortOrder = SortUploadedAsc

// IsValidSortOrder checks if a string is a valid image sort order
func IsValidSortOrder(order string) bool {
	switch order {
	case SortFilenameNat, SortUploadedAsc, SortUploadedDesc:
		return true
	default:
		return false
	}
}

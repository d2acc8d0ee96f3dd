package database

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
)

// Builder renders statements with '?' placeholders; gorm rebinds them for
// the active dialect when the SQL is executed through Raw.
var Builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// ScanRaw builds the query and scans all rows into dest.
func ScanRaw(ctx context.Context, db *gorm.DB, query sq.Sqlizer, dest interface{}) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query: %w", err)
	}
	if err := db.WithContext(ctx).Raw(sqlStr, args...).Scan(dest).Error; err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	return nil
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// IsNotFound reports whether err is gorm's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

package snapshot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"playersync/pkg/model"
)

// DefaultMaxNameLength bounds snapshot names unless configured otherwise
const DefaultMaxNameLength = 50

// TimestampLayout is the suffix format of backup and auto-save names
const TimestampLayout = "2006-01-02_15-04-05"

// ValidateName rejects blank names, names with spaces or path separators and
// names longer than max runes.
func ValidateName(name string, max int) error {
	if max <= 0 {
		max = DefaultMaxNameLength
	}
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is blank", model.ErrInvalidName)
	case strings.ContainsAny(name, ` /\`):
		return fmt.Errorf("%w: %q contains a space or path separator", model.ErrInvalidName, name)
	case utf8.RuneCountInString(name) > max:
		return fmt.Errorf("%w: %q is longer than %d characters", model.ErrInvalidName, name, max)
	}
	return nil
}

// ValidateBackupBase checks a name that will be expanded into a backup name.
// The base must leave room for the backup_ prefix and timestamp within max.
func ValidateBackupBase(name string, max int) error {
	if max <= 0 {
		max = DefaultMaxNameLength
	}
	if err := ValidateName(name, max); err != nil {
		return err
	}
	limit := max - len(BackupPrefix("")) - len(TimestampLayout)
	if utf8.RuneCountInString(name) > limit {
		return fmt.Errorf("%w: %q is too long to back up, at most %d characters", model.ErrInvalidName, name, limit)
	}
	return nil
}

// BackupPrefix is the prefix shared by every backup of name
func BackupPrefix(name string) string {
	return "backup_" + name + "_"
}

// BackupName is backup_<name>_<YYYY-MM-DD_HH-MM-SS>
func BackupName(name string, t time.Time) string {
	return BackupPrefix(name) + t.Format(TimestampLayout)
}

// AutoSaveName is auto_<YYYY-MM-DD_HH-MM-SS>
func AutoSaveName(t time.Time) string {
	return "auto_" + t.Format(TimestampLayout)
}

package vbt

import (
	"strings"
	"time"
)

// archiveStampLayout renders UTC times with millisecond precision, like
// 2024-01-02T03:04:05.678Z.
const archiveStampLayout = "2006-01-02T15:04:05.000Z"

var stampCleaner = strings.NewReplacer(":", "-", ".", "-")

// BackupFileName returns the archive file name for a backup started at t,
// for example obsidian-backup-2024-01-02T03-04-05-678Z.zip. Colons and dots
// in the timestamp are replaced with hyphens so the name stays portable
// across filesystems and object keys.
func BackupFileName(t time.Time, suffix string) string {
	stamp := stampCleaner.Replace(t.UTC().Format(archiveStampLayout))
	return "obsidian-backup-" + stamp + suffix
}

// ObjectKey joins an optional folder prefix and a file name into an object
// key with single slashes. Redundant separators in the prefix are collapsed
// and leading or trailing slashes dropped. An empty prefix yields the bare
// file name.
func ObjectKey(prefix, name string) string {
	parts := make([]string, 0, 4)
	for _, p := range strings.Split(prefix, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, name)
	return strings.Join(parts, "/")
}

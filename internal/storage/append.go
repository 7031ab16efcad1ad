package storage

import (
	"log/slog"
	"slices"
)

// diagnosticPrefix is how many bytes of each side are logged on an anomaly.
const diagnosticPrefix = 20

// Combine appends addition to existing for stores that only support
// whole-object replacement. The existing content's kind decides the kind of
// the result: text existing content decodes the addition as UTF-8, binary
// existing content takes the addition's encoded bytes.
//
// When existing has no recognised kind the anomaly is logged and addition is
// returned unmodified. That keeps writes moving but is not a true append.
func Combine(existing, addition Content, logger *slog.Logger, path string) Content {
	if !existing.Valid() || !addition.Valid() {
		if logger != nil {
			logger.Warn("append: unexpected content kinds, writing new content only",
				"path", path,
				"existing_kind", existing.kind.String(),
				"new_kind", addition.kind.String(),
				"existing_prefix", existing.Prefix(diagnosticPrefix),
				"new_prefix", addition.Prefix(diagnosticPrefix))
		}
		return addition
	}
	data := slices.Concat(existing.data, addition.data)
	return Content{data: data, kind: existing.kind}
}

// Missing is the existing content used when the object does not exist yet:
// empty, of the kind implied by the new data.
func Missing(addition Content) Content {
	if !addition.Valid() {
		return Empty(KindBinary)
	}
	return Empty(addition.kind)
}

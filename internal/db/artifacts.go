// CLAUDE:SUMMARY Artifact DB operations — file pointers with SHA-256 checksums, null checksum for missing files
package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// RecordArtifact stores a file pointer tied to a run and/or variant. The
// checksum is computed here; a missing file yields a NULL checksum rather
// than an error, so pointers to not-yet-materialized outputs are recordable.
func (db *DB) RecordArtifact(runID, variantID *int64, artifactType, path string, notes *string) (int64, error) {
	checksum, err := FileChecksum(path)
	if err != nil {
		return 0, fmt.Errorf("checksumming artifact: %w", err)
	}
	res, err := db.Exec(`
		INSERT INTO artifacts (run_id, variant_id, artifact_type, path, checksum, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, variantID, artifactType, path, checksum, notes)
	if err != nil {
		return 0, fmt.Errorf("inserting artifact: %w", err)
	}
	return res.LastInsertId()
}

// FileChecksum returns the hex SHA-256 digest of the file at path, or nil if
// the file does not exist.
func FileChecksum(path string) (*string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return &sum, nil
}

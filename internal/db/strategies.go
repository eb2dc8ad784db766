// CLAUDE:SUMMARY Strategy and variant DB operations — idempotent strategy upsert, append-only variant lineage
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Strategy is a named strategy family member; identity (name) is immutable,
// template and notes may be refreshed on upsert.
type Strategy struct {
	StrategyID     int64     `json:"strategy_id"`
	Family         string    `json:"family"`
	Name           string    `json:"name"`
	TemplateSource *string   `json:"template_source,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Variant is one immutable config snapshot in a strategy's lineage tree.
type Variant struct {
	VariantID       int64     `json:"variant_id"`
	StrategyID      int64     `json:"strategy_id"`
	ParentVariantID *int64    `json:"parent_variant_id,omitempty"`
	VersionTag      *string   `json:"version_tag,omitempty"`
	ConfigJSON      string    `json:"config_json"`
	CodePath        *string   `json:"code_path,omitempty"`
	Provenance      *string   `json:"provenance,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// UpsertStrategy inserts a strategy or refreshes family/template/notes on an
// existing row. The returned strategy_id is stable across calls with the same
// name. nil template/notes leave existing values untouched.
func (db *DB) UpsertStrategy(family, name string, templateSource, notes *string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`SELECT strategy_id FROM strategies WHERE name = ?`, name).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(`
			INSERT INTO strategies (family, name, template_source, notes)
			VALUES (?, ?, ?, ?)`, family, name, templateSource, notes)
		if err != nil {
			return 0, fmt.Errorf("inserting strategy: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		_, err = tx.Exec(`
			UPDATE strategies
			   SET family = ?,
			       template_source = COALESCE(?, template_source),
			       notes = COALESCE(?, notes)
			 WHERE strategy_id = ?`, family, templateSource, notes, id)
		if err != nil {
			return 0, fmt.Errorf("updating strategy: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetStrategy returns a strategy by id.
func (db *DB) GetStrategy(id int64) (*Strategy, error) {
	s := &Strategy{}
	var template, notes sql.NullString
	err := db.QueryRow(`
		SELECT strategy_id, family, name, template_source, notes, created_at
		FROM strategies WHERE strategy_id = ?`, id).Scan(
		&s.StrategyID, &s.Family, &s.Name, &template, &notes, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if template.Valid {
		s.TemplateSource = &template.String
	}
	if notes.Valid {
		s.Notes = &notes.String
	}
	return s, nil
}

// CreateVariantInput carries the fields for a new lineage row. The parent,
// if set, must already be persisted; the config snapshot is immutable after
// insert.
type CreateVariantInput struct {
	StrategyID      int64
	ParentVariantID *int64
	VersionTag      string
	ConfigJSON      string
	CodePath        *string
	Provenance      *string
}

// CreateVariant appends a variant row and returns its id. Variants are never
// updated; remediation iterations create children instead.
func (db *DB) CreateVariant(input CreateVariantInput) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO strategy_variants (strategy_id, parent_variant_id, version_tag, config_json, code_path, provenance)
		VALUES (?, ?, ?, ?, ?, ?)`,
		input.StrategyID, input.ParentVariantID, input.VersionTag,
		input.ConfigJSON, input.CodePath, input.Provenance)
	if err != nil {
		return 0, fmt.Errorf("inserting variant: %w", err)
	}
	return res.LastInsertId()
}

// GetVariant returns a variant by id.
func (db *DB) GetVariant(id int64) (*Variant, error) {
	return scanVariant(db.QueryRow(`
		SELECT variant_id, strategy_id, parent_variant_id, version_tag, config_json, code_path, provenance, created_at
		FROM strategy_variants WHERE variant_id = ?`, id))
}

// VariantLineage walks parent links from the given variant up to its root,
// returning root-first order.
func (db *DB) VariantLineage(id int64) ([]*Variant, error) {
	var chain []*Variant
	next := &id
	for next != nil {
		v, err := db.GetVariant(*next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
		next = v.ParentVariantID
	}
	// Reverse to root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// VariantsForStrategy returns all variants of a strategy in insertion order.
func (db *DB) VariantsForStrategy(strategyID int64) ([]*Variant, error) {
	rows, err := db.Query(`
		SELECT variant_id, strategy_id, parent_variant_id, version_tag, config_json, code_path, provenance, created_at
		FROM strategy_variants WHERE strategy_id = ?
		ORDER BY variant_id ASC`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

func scanVariant(s interface{ Scan(...any) error }) (*Variant, error) {
	v := &Variant{}
	var parent sql.NullInt64
	var tag, codePath, provenance sql.NullString
	err := s.Scan(&v.VariantID, &v.StrategyID, &parent, &tag, &v.ConfigJSON, &codePath, &provenance, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		v.ParentVariantID = &parent.Int64
	}
	if tag.Valid {
		v.VersionTag = &tag.String
	}
	if codePath.Valid {
		v.CodePath = &codePath.String
	}
	if provenance.Valid {
		v.Provenance = &provenance.String
	}
	return v, nil
}

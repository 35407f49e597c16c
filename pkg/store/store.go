// Package store persists the regulatory watch system's entities
// (Regulation, Rule, Document, DocumentRuleMapping, ComplianceAlert, Source,
// RegulationSourceLog) over database/sql. It supports both Postgres and
// SQLite via standard drivers: $1-style placeholders are accepted by lib/pq
// positionally and by modernc.org/sqlite as ordered named parameters, so one
// query set serves both backends; only the DDL differs per driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/annex4parser/annex4parser/pkg/models"
)

// ErrNotFound is returned when a lookup by key finds no row.
var ErrNotFound = errors.New("store: not found")

// canonicalExtra serializes a Source's extra map into RFC 8785 canonical
// JSON, so two config reloads carrying the same extra keys in a different
// map-iteration order persist byte-identical rows instead of spuriously
// looking changed to anything that hashes or diffs the stored column.
func canonicalExtra(extra map[string]string) ([]byte, error) {
	raw, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// Store is the versioned rule store. All methods accept a context.Context
// and propagate it to every database call.
type Store struct {
	db     *sql.DB
	driver string
}

// New builds a Store over an already-opened *sql.DB. driver is the
// database/sql driver name ("postgres" or "sqlite") and selects which DDL
// Init runs.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS regulations (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	celex_id TEXT NOT NULL,
	version TEXT NOT NULL,
	expression_version TEXT,
	work_date TIMESTAMP,
	effective_date TIMESTAMP,
	source_url TEXT,
	last_updated TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	UNIQUE (celex_id, version)
);
CREATE INDEX IF NOT EXISTS idx_regulations_celex ON regulations (celex_id);

CREATE TABLE IF NOT EXISTS rules (
	id SERIAL PRIMARY KEY,
	regulation_id INTEGER NOT NULL REFERENCES regulations (id),
	section_code TEXT NOT NULL,
	title TEXT,
	content TEXT NOT NULL,
	risk_level TEXT NOT NULL,
	version TEXT NOT NULL,
	parent_rule_id INTEGER REFERENCES rules (id),
	effective_date TIMESTAMP,
	last_modified TIMESTAMP NOT NULL,
	order_index TEXT NOT NULL,
	ingested_at TIMESTAMP NOT NULL,
	UNIQUE (regulation_id, section_code)
);
CREATE INDEX IF NOT EXISTS idx_rules_regulation ON rules (regulation_id);
CREATE INDEX IF NOT EXISTS idx_rules_parent ON rules (parent_rule_id);

CREATE TABLE IF NOT EXISTS documents (
	id SERIAL PRIMARY KEY,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	extracted_text TEXT,
	ai_system_name TEXT,
	document_type TEXT NOT NULL,
	compliance_status TEXT NOT NULL,
	storage_tier TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	last_modified TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS document_rule_mappings (
	id SERIAL PRIMARY KEY,
	document_id INTEGER NOT NULL REFERENCES documents (id),
	rule_id INTEGER NOT NULL REFERENCES rules (id),
	confidence_score REAL NOT NULL,
	mapped_by TEXT NOT NULL,
	mapped_at TIMESTAMP NOT NULL,
	last_verified TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_mappings_document ON document_rule_mappings (document_id);
CREATE INDEX IF NOT EXISTS idx_mappings_rule ON document_rule_mappings (rule_id);

CREATE TABLE IF NOT EXISTS compliance_alerts (
	id SERIAL PRIMARY KEY,
	alert_type TEXT NOT NULL,
	priority TEXT NOT NULL,
	message TEXT NOT NULL,
	document_id INTEGER,
	rule_id INTEGER,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	freq TEXT NOT NULL,
	active BOOLEAN NOT NULL,
	last_fetched TIMESTAMP,
	extra TEXT
);

CREATE TABLE IF NOT EXISTS regulation_source_logs (
	id SERIAL PRIMARY KEY,
	source_id TEXT NOT NULL,
	status TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	content_hash TEXT,
	response_time REAL,
	error_message TEXT,
	bytes_downloaded INTEGER,
	fetch_mode TEXT
);
CREATE INDEX IF NOT EXISTS idx_source_logs_source ON regulation_source_logs (source_id, fetched_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS regulations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	celex_id TEXT NOT NULL,
	version TEXT NOT NULL,
	expression_version TEXT,
	work_date TIMESTAMP,
	effective_date TIMESTAMP,
	source_url TEXT,
	last_updated TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	UNIQUE (celex_id, version)
);
CREATE INDEX IF NOT EXISTS idx_regulations_celex ON regulations (celex_id);

CREATE TABLE IF NOT EXISTS rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	regulation_id INTEGER NOT NULL REFERENCES regulations (id),
	section_code TEXT NOT NULL,
	title TEXT,
	content TEXT NOT NULL,
	risk_level TEXT NOT NULL,
	version TEXT NOT NULL,
	parent_rule_id INTEGER REFERENCES rules (id),
	effective_date TIMESTAMP,
	last_modified TIMESTAMP NOT NULL,
	order_index TEXT NOT NULL,
	ingested_at TIMESTAMP NOT NULL,
	UNIQUE (regulation_id, section_code)
);
CREATE INDEX IF NOT EXISTS idx_rules_regulation ON rules (regulation_id);
CREATE INDEX IF NOT EXISTS idx_rules_parent ON rules (parent_rule_id);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	extracted_text TEXT,
	ai_system_name TEXT,
	document_type TEXT NOT NULL,
	compliance_status TEXT NOT NULL,
	storage_tier TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	last_modified TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS document_rule_mappings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL REFERENCES documents (id),
	rule_id INTEGER NOT NULL REFERENCES rules (id),
	confidence_score REAL NOT NULL,
	mapped_by TEXT NOT NULL,
	mapped_at TIMESTAMP NOT NULL,
	last_verified TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_mappings_document ON document_rule_mappings (document_id);
CREATE INDEX IF NOT EXISTS idx_mappings_rule ON document_rule_mappings (rule_id);

CREATE TABLE IF NOT EXISTS compliance_alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_type TEXT NOT NULL,
	priority TEXT NOT NULL,
	message TEXT NOT NULL,
	document_id INTEGER,
	rule_id INTEGER,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	freq TEXT NOT NULL,
	active BOOLEAN NOT NULL,
	last_fetched TIMESTAMP,
	extra TEXT
);

CREATE TABLE IF NOT EXISTS regulation_source_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL,
	status TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	content_hash TEXT,
	response_time REAL,
	error_message TEXT,
	bytes_downloaded INTEGER,
	fetch_mode TEXT
);
CREATE INDEX IF NOT EXISTS idx_source_logs_source ON regulation_source_logs (source_id, fetched_at);
`

// Init creates every table (idempotent) for the configured driver.
func (s *Store) Init(ctx context.Context) error {
	schema := postgresSchema
	if s.driver == "sqlite" {
		schema = sqliteSchema
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetRegulationByCelexAndHash finds the row invariant-required to be reused
// when an ingest produces byte-identical normalized text for a known act.
func (s *Store) GetRegulationByCelexAndHash(ctx context.Context, celexID, contentHash string) (*models.Regulation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, celex_id, version, expression_version, work_date, effective_date,
		       source_url, last_updated, status, content_hash
		FROM regulations WHERE celex_id = $1 AND content_hash = $2`,
		celexID, contentHash)
	return scanRegulation(row)
}

// GetRegulationByCelexAndVersion looks up the exact (celex_id, version) row,
// the unique key spec.md §3 requires for Regulation.
func (s *Store) GetRegulationByCelexAndVersion(ctx context.Context, celexID, version string) (*models.Regulation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, celex_id, version, expression_version, work_date, effective_date,
		       source_url, last_updated, status, content_hash
		FROM regulations WHERE celex_id = $1 AND version = $2`,
		celexID, version)
	return scanRegulation(row)
}

// GetRegulationByCelex returns the most recently updated Regulation row for
// celexID, regardless of version.
func (s *Store) GetRegulationByCelex(ctx context.Context, celexID string) (*models.Regulation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, celex_id, version, expression_version, work_date, effective_date,
		       source_url, last_updated, status, content_hash
		FROM regulations WHERE celex_id = $1 ORDER BY last_updated DESC LIMIT 1`,
		celexID)
	return scanRegulation(row)
}

func scanRegulation(row *sql.Row) (*models.Regulation, error) {
	var reg models.Regulation
	var workDate sql.NullTime
	err := row.Scan(&reg.ID, &reg.Name, &reg.CelexID, &reg.Version, &reg.ExpressionVersion, &workDate,
		&reg.EffectiveDate, &reg.SourceURL, &reg.LastUpdated, &reg.Status, &reg.ContentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if workDate.Valid {
		reg.WorkDate = &workDate.Time
	}
	return &reg, nil
}

// UpsertRegulation inserts reg and returns its id. When reg.ID is set, it
// instead updates that row's version/expression_version/work_date/
// last_updated in place; otherwise an existing (celex_id, version) row has
// its remaining columns overwritten. Callers enforce the content_hash reuse
// invariant by calling GetRegulationByCelexAndHash first.
func (s *Store) UpsertRegulation(ctx context.Context, reg *models.Regulation) (int64, error) {
	if reg.ID != 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE regulations SET version = $1, expression_version = $2, work_date = $3, last_updated = $4
			WHERE id = $5`,
			reg.Version, reg.ExpressionVersion, reg.WorkDate, reg.LastUpdated, reg.ID)
		if err != nil {
			return 0, fmt.Errorf("store: update regulation %s: %w", reg.CelexID, err)
		}
		return reg.ID, nil
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO regulations (name, celex_id, version, expression_version, work_date,
		                          effective_date, source_url, last_updated, status, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (celex_id, version) DO UPDATE SET
			name = EXCLUDED.name,
			expression_version = EXCLUDED.expression_version,
			work_date = EXCLUDED.work_date,
			effective_date = EXCLUDED.effective_date,
			source_url = EXCLUDED.source_url,
			last_updated = EXCLUDED.last_updated,
			status = EXCLUDED.status,
			content_hash = EXCLUDED.content_hash
		RETURNING id`,
		reg.Name, reg.CelexID, reg.Version, reg.ExpressionVersion, reg.WorkDate,
		reg.EffectiveDate, reg.SourceURL, reg.LastUpdated, reg.Status, reg.ContentHash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert regulation %s: %w", reg.CelexID, err)
	}
	return id, nil
}

// MarkRegulationSuperseded flips a Regulation's status once a newer version
// of the same act has been ingested.
func (s *Store) MarkRegulationSuperseded(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE regulations SET status = $1 WHERE id = $2`,
		models.RegulationSuperseded, id)
	return err
}

// GetRuleBySectionCode looks up a Rule by its (regulation_id, section_code)
// key, both of which are canonical in the store.
func (s *Store) GetRuleBySectionCode(ctx context.Context, regulationID int64, sectionCode string) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, regulation_id, section_code, title, content, risk_level, version,
		       parent_rule_id, effective_date, last_modified, order_index, ingested_at
		FROM rules WHERE regulation_id = $1 AND section_code = $2`,
		regulationID, sectionCode)
	return scanRule(row)
}

// GetRuleByID looks up a Rule by primary key.
func (s *Store) GetRuleByID(ctx context.Context, id int64) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, regulation_id, section_code, title, content, risk_level, version,
		       parent_rule_id, effective_date, last_modified, order_index, ingested_at
		FROM rules WHERE id = $1`, id)
	return scanRule(row)
}

func scanRule(row *sql.Row) (*models.Rule, error) {
	var r models.Rule
	var title sql.NullString
	var parentID sql.NullInt64
	err := row.Scan(&r.ID, &r.RegulationID, &r.SectionCode, &title, &r.Content, &r.RiskLevel, &r.Version,
		&parentID, &r.EffectiveDate, &r.LastModified, &r.OrderIndex, &r.IngestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if title.Valid {
		r.Title = &title.String
	}
	if parentID.Valid {
		r.ParentRuleID = &parentID.Int64
	}
	return &r, nil
}

// UpsertRule inserts a new Rule, or mutates the existing row in place when
// rule.SectionCode already exists within rule.RegulationID, per the Rule
// lifecycle invariant. Returns the row's id.
func (s *Store) UpsertRule(ctx context.Context, rule *models.Rule) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rules (regulation_id, section_code, title, content, risk_level, version,
		                    parent_rule_id, effective_date, last_modified, order_index, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (regulation_id, section_code) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			risk_level = EXCLUDED.risk_level,
			version = EXCLUDED.version,
			parent_rule_id = COALESCE(EXCLUDED.parent_rule_id, rules.parent_rule_id),
			effective_date = EXCLUDED.effective_date,
			last_modified = EXCLUDED.last_modified,
			order_index = EXCLUDED.order_index
		RETURNING id`,
		rule.RegulationID, rule.SectionCode, rule.Title, rule.Content, rule.RiskLevel, rule.Version,
		rule.ParentRuleID, rule.EffectiveDate, rule.LastModified, rule.OrderIndex, rule.IngestedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert rule %s: %w", rule.SectionCode, err)
	}
	return id, nil
}

// SetRuleParent rewires ruleID's parent, used by the ingestion engine's
// orphan-relink pass once the real parent section_code has been ingested.
func (s *Store) SetRuleParent(ctx context.Context, ruleID, parentRuleID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rules SET parent_rule_id = $1 WHERE id = $2`, parentRuleID, ruleID)
	return err
}

// ListRulesByRegulation returns every Rule belonging to regulationID, ordered
// by section_code, then order_index.
func (s *Store) ListRulesByRegulation(ctx context.Context, regulationID int64) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, regulation_id, section_code, title, content, risk_level, version,
		       parent_rule_id, effective_date, last_modified, order_index, ingested_at
		FROM rules WHERE regulation_id = $1 ORDER BY section_code, order_index`, regulationID)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

// ListChildRules returns every Rule whose parent_rule_id is parentID.
func (s *Store) ListChildRules(ctx context.Context, parentID int64) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, regulation_id, section_code, title, content, risk_level, version,
		       parent_rule_id, effective_date, last_modified, order_index, ingested_at
		FROM rules WHERE parent_rule_id = $1`, parentID)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

// UpdateRuleSectionCode rewrites ruleID's section_code, used when a rename
// at an ancestor cascades down to its descendants.
func (s *Store) UpdateRuleSectionCode(ctx context.Context, ruleID int64, sectionCode string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rules SET section_code = $1 WHERE id = $2`, sectionCode, ruleID)
	return err
}

// AllRules returns every Rule in the store. It satisfies the
// pkg/mapper/semantic RuleSource interface, letting the semantic mapper
// build its TF-IDF corpus directly from the store.
func (s *Store) AllRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, regulation_id, section_code, title, content, risk_level, version,
		       parent_rule_id, effective_date, last_modified, order_index, ingested_at
		FROM rules`)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func scanRules(rows *sql.Rows) ([]models.Rule, error) {
	defer func() { _ = rows.Close() }()

	result := make([]models.Rule, 0)
	for rows.Next() {
		var r models.Rule
		var title sql.NullString
		var parentID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.RegulationID, &r.SectionCode, &title, &r.Content, &r.RiskLevel, &r.Version,
			&parentID, &r.EffectiveDate, &r.LastModified, &r.OrderIndex, &r.IngestedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			r.Title = &title.String
		}
		if parentID.Valid {
			r.ParentRuleID = &parentID.Int64
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateDocument inserts a new Document and returns its id.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (filename, file_path, extracted_text, ai_system_name, document_type,
		                        compliance_status, storage_tier, created_at, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		doc.Filename, doc.FilePath, doc.ExtractedText, doc.AISystemName, doc.DocumentType,
		doc.ComplianceStatus, doc.StorageTier, doc.CreatedAt, doc.LastModified,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create document %s: %w", doc.Filename, err)
	}
	return id, nil
}

// GetDocument looks up a Document by primary key.
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, file_path, extracted_text, ai_system_name, document_type,
		       compliance_status, storage_tier, created_at, last_modified
		FROM documents WHERE id = $1`, id)

	var d models.Document
	err := row.Scan(&d.ID, &d.Filename, &d.FilePath, &d.ExtractedText, &d.AISystemName, &d.DocumentType,
		&d.ComplianceStatus, &d.StorageTier, &d.CreatedAt, &d.LastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// UpdateDocumentStatus flips a Document's compliance_status (e.g. to
// "outdated" when an upstream rule change cascades) and stamps last_modified.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status models.ComplianceStatus, lastModified time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET compliance_status = $1, last_modified = $2 WHERE id = $3`,
		status, lastModified, id)
	return err
}

// CreateMapping inserts a new DocumentRuleMapping and returns its id. Old
// mappings are never deleted; a new Regulation version supersedes one by
// writing a fresh row pointing at the new Rule id.
func (s *Store) CreateMapping(ctx context.Context, m *models.DocumentRuleMapping) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_rule_mappings (document_id, rule_id, confidence_score, mapped_by, mapped_at, last_verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		m.DocumentID, m.RuleID, m.ConfidenceScore, m.MappedBy, m.MappedAt, m.LastVerified,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create mapping document=%d rule=%d: %w", m.DocumentID, m.RuleID, err)
	}
	return id, nil
}

// ListMappingsByRule returns every mapping (current and superseded) pointing
// at ruleID, used to find documents to outdate when a rule changes.
func (s *Store) ListMappingsByRule(ctx context.Context, ruleID int64) ([]models.DocumentRuleMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, rule_id, confidence_score, mapped_by, mapped_at, last_verified
		FROM document_rule_mappings WHERE rule_id = $1`, ruleID)
	if err != nil {
		return nil, err
	}
	return scanMappings(rows)
}

// ListMappingsByDocument returns every mapping for documentID.
func (s *Store) ListMappingsByDocument(ctx context.Context, documentID int64) ([]models.DocumentRuleMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, rule_id, confidence_score, mapped_by, mapped_at, last_verified
		FROM document_rule_mappings WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, err
	}
	return scanMappings(rows)
}

func scanMappings(rows *sql.Rows) ([]models.DocumentRuleMapping, error) {
	defer func() { _ = rows.Close() }()

	result := make([]models.DocumentRuleMapping, 0)
	for rows.Next() {
		var m models.DocumentRuleMapping
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.RuleID, &m.ConfidenceScore, &m.MappedBy, &m.MappedAt, &m.LastVerified); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateAlert inserts a new ComplianceAlert and returns its id.
func (s *Store) CreateAlert(ctx context.Context, a *models.ComplianceAlert) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO compliance_alerts (alert_type, priority, message, document_id, rule_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		a.AlertType, a.Priority, a.Message, a.DocumentID, a.RuleID, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create alert %s: %w", a.AlertType, err)
	}
	return id, nil
}

// UpsertSource inserts or replaces a poll target's configuration.
func (s *Store) UpsertSource(ctx context.Context, src *models.Source) error {
	extra, err := canonicalExtra(src.Extra)
	if err != nil {
		return fmt.Errorf("store: marshal source extra %s: %w", src.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (id, url, type, freq, active, last_fetched, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			type = EXCLUDED.type,
			freq = EXCLUDED.freq,
			active = EXCLUDED.active,
			last_fetched = EXCLUDED.last_fetched,
			extra = EXCLUDED.extra`,
		src.ID, src.URL, src.Type, src.Freq, src.Active, src.LastFetched, string(extra))
	return err
}

// GetSource looks up a Source by id.
func (s *Store) GetSource(ctx context.Context, id string) (*models.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, type, freq, active, last_fetched, extra FROM sources WHERE id = $1`, id)
	return scanSource(row)
}

// ListActiveSources returns every Source with active = true, the set the
// monitor's UpdateAll() iterates over.
func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, type, freq, active, last_fetched, extra FROM sources WHERE active = $1`, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]models.Source, 0)
	for rows.Next() {
		src, err := scanSourceRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *src)
	}
	return result, rows.Err()
}

func scanSource(row *sql.Row) (*models.Source, error) {
	var src models.Source
	var lastFetched sql.NullTime
	var extra sql.NullString
	err := row.Scan(&src.ID, &src.URL, &src.Type, &src.Freq, &src.Active, &lastFetched, &extra)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastFetched.Valid {
		src.LastFetched = &lastFetched.Time
	}
	if extra.Valid && extra.String != "" {
		_ = json.Unmarshal([]byte(extra.String), &src.Extra)
	}
	return &src, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSourceRow(row rowScanner) (*models.Source, error) {
	var src models.Source
	var lastFetched sql.NullTime
	var extra sql.NullString
	if err := row.Scan(&src.ID, &src.URL, &src.Type, &src.Freq, &src.Active, &lastFetched, &extra); err != nil {
		return nil, err
	}
	if lastFetched.Valid {
		src.LastFetched = &lastFetched.Time
	}
	if extra.Valid && extra.String != "" {
		_ = json.Unmarshal([]byte(extra.String), &src.Extra)
	}
	return &src, nil
}

// UpdateSourceLastFetched stamps last_fetched after a poll attempt.
func (s *Store) UpdateSourceLastFetched(ctx context.Context, id string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sources SET last_fetched = $1 WHERE id = $2`, t, id)
	return err
}

// LogFetch appends one RegulationSourceLog row. The log is append-only: no
// update or delete method exists for it.
func (s *Store) LogFetch(ctx context.Context, log *models.RegulationSourceLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO regulation_source_logs (source_id, status, fetched_at, content_hash, response_time,
		                                     error_message, bytes_downloaded, fetch_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.SourceID, log.Status, log.FetchedAt, log.ContentHash, log.ResponseTime,
		log.ErrorMessage, log.BytesDownloaded, log.FetchMode)
	return err
}

// HasContentHash reports whether a successful fetch with this content_hash
// was ever logged for sourceID, used by RSS processing to dedupe entries
// across the source's whole log history rather than just the latest row.
func (s *Store) HasContentHash(ctx context.Context, sourceID, contentHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM regulation_source_logs
			WHERE source_id = $1 AND content_hash = $2 AND status = $3
		)`, sourceID, contentHash, models.FetchSuccess).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetLastSuccessfulHash returns the content_hash of the most recent
// successful fetch for sourceID, used to skip re-ingesting unchanged
// content. Returns ErrNotFound if the source has never succeeded.
func (s *Store) GetLastSuccessfulHash(ctx context.Context, sourceID string) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash FROM regulation_source_logs
		WHERE source_id = $1 AND status = $2
		ORDER BY fetched_at DESC LIMIT 1`,
		sourceID, models.FetchSuccess).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return hash.String, nil
}

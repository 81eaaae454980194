package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dealflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqldb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	name_key           TEXT NOT NULL DEFAULT '',
	legal_name         TEXT NOT NULL DEFAULT '',
	website            TEXT NOT NULL DEFAULT '',
	domain             TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	country            TEXT NOT NULL DEFAULT '',
	founded_year       INTEGER,
	funding_total_usd  INTEGER,
	last_funding_stage TEXT NOT NULL DEFAULT '',
	ipo_status         TEXT NOT NULL DEFAULT '',
	employee_count_min INTEGER,
	employee_count_max INTEGER,
	revenue_usd_min    INTEGER,
	revenue_usd_max    INTEGER,
	women_founded      BOOLEAN,
	minority_founded   BOOLEAN,
	industries         TEXT NOT NULL DEFAULT '[]',
	technology_types   TEXT NOT NULL DEFAULT '[]',
	crunchbase_id      TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_companies_website ON companies(website);
CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key);
CREATE INDEX IF NOT EXISTS idx_companies_crunchbase_id ON companies(crunchbase_id);

CREATE TABLE IF NOT EXISTS deals (
	id                TEXT PRIMARY KEY,
	company_id        TEXT REFERENCES companies(id),
	draft             BOOLEAN NOT NULL DEFAULT 0,
	name              TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'NEW',
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	stage             TEXT NOT NULL DEFAULT '',
	funding_type      TEXT NOT NULL DEFAULT '',
	raise_amount_usd  INTEGER,
	summary           TEXT NOT NULL DEFAULT '',
	industries        TEXT NOT NULL DEFAULT '[]',
	dual_use_signals  TEXT NOT NULL DEFAULT '[]',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	CHECK (draft OR company_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_deals_company_id ON deals(company_id);
CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status);
CREATE INDEX IF NOT EXISTS idx_deals_processing_status ON deals(processing_status);

CREATE TABLE IF NOT EXISTS assessments (
	id                      TEXT PRIMARY KEY,
	deal_id                 TEXT NOT NULL REFERENCES deals(id),
	auto_pros               TEXT NOT NULL DEFAULT '[]',
	auto_cons               TEXT NOT NULL DEFAULT '[]',
	auto_quality_percentile TEXT NOT NULL DEFAULT '',
	auto_score              REAL,
	auto_confidence         REAL,
	auto_recommendation     TEXT NOT NULL DEFAULT '',
	pros                    TEXT NOT NULL DEFAULT '[]',
	cons                    TEXT NOT NULL DEFAULT '[]',
	quality_percentile      TEXT NOT NULL DEFAULT '',
	score                   REAL,
	confidence              REAL,
	recommendation          TEXT NOT NULL DEFAULT '',
	created_at              DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_deal_id ON assessments(deal_id);

CREATE TABLE IF NOT EXISTS files (
	id                TEXT PRIMARY KEY,
	deal_id           TEXT NOT NULL REFERENCES deals(id),
	kind              TEXT NOT NULL DEFAULT 'file',
	name              TEXT NOT NULL DEFAULT '',
	blob_path         TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL DEFAULT '',
	mime_type         TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	raw_text          TEXT NOT NULL DEFAULT '',
	clean_text        TEXT NOT NULL DEFAULT '',
	paper             TEXT,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_deal_id ON files(deal_id);
CREATE INDEX IF NOT EXISTS idx_files_processing_status ON files(processing_status);

CREATE TABLE IF NOT EXISTS deck_pages (
	id              TEXT PRIMARY KEY,
	file_id         TEXT NOT NULL REFERENCES files(id),
	number          INTEGER NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	screenshot_path TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	UNIQUE (file_id, number)
);

CREATE TABLE IF NOT EXISTS founders (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	headline        TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	linkedin_url    TEXT NOT NULL DEFAULT '',
	coresignal_id   TEXT NOT NULL DEFAULT '',
	experience_json TEXT NOT NULL DEFAULT '',
	education_json  TEXT NOT NULL DEFAULT '',
	graduation_year INTEGER,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS foundings (
	id                   TEXT PRIMARY KEY,
	founder_id           TEXT NOT NULL REFERENCES founders(id),
	company_id           TEXT NOT NULL REFERENCES companies(id),
	title                TEXT NOT NULL DEFAULT '',
	prior_founding_count INTEGER,
	est_age_at_founding  INTEGER,
	created_at           DATETIME NOT NULL,
	UNIQUE (founder_id, company_id)
);

CREATE INDEX IF NOT EXISTS idx_foundings_company_id ON foundings(company_id);

CREATE TABLE IF NOT EXISTS grants (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id),
	agency     TEXT NOT NULL DEFAULT '',
	program    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT '',
	amount_usd INTEGER NOT NULL DEFAULT 0,
	award_year INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_grants_company_id ON grants(company_id);

CREATE TABLE IF NOT EXISTS patent_applications (
	id                 TEXT PRIMARY KEY,
	company_id         TEXT NOT NULL REFERENCES companies(id),
	application_number TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT '',
	filed_at           DATETIME
);

CREATE INDEX IF NOT EXISTS idx_patent_applications_company_id ON patent_applications(company_id);

CREATE TABLE IF NOT EXISTS clinical_studies (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id),
	nct_id     TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	conditions TEXT NOT NULL DEFAULT '[]',
	started_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_clinical_studies_company_id ON clinical_studies(company_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// buildUpdateQ mirrors buildUpdate with ? placeholders.
func buildUpdateQ(table string, allowed map[string]bool, fields map[string]any) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, eris.Errorf("store: empty field update for %s", table)
	}
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !allowed[col] {
			return "", nil, eris.Errorf("store: column %q not updatable on %s", col, table)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	query := "UPDATE " + table + " SET "
	args := make([]any, 0, len(cols)+2)
	for i, col := range cols {
		if i > 0 {
			query += ", "
		}
		arg, err := fieldArg(fields[col])
		if err != nil {
			return "", nil, err
		}
		if b, ok := arg.([]byte); ok {
			arg = string(b)
		}
		query += fmt.Sprintf("%s = ?", col)
		args = append(args, arg)
	}
	query += ", updated_at = ? WHERE id = ?"
	args = append(args, time.Now().UTC())
	return query, args, nil
}

func uuidArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// --- Companies ---

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, name_key, legal_name, website, domain,
			description, city, state, country, founded_year, funding_total_usd,
			last_funding_stage, ipo_status, employee_count_min, employee_count_max,
			revenue_usd_min, revenue_usd_max, women_founded, minority_founded,
			industries, technology_types, crunchbase_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, model.NameKey(c.Name), c.LegalName, c.Website,
		c.Domain, c.Description,
		c.City, c.State, c.Country, c.FoundedYear, c.FundingTotalUSD,
		c.LastFundingStage, c.IPOStatus, c.EmployeeCountMin, c.EmployeeCountMax,
		c.RevenueUSDMin, c.RevenueUSDMax, c.WomenFounded, c.MinorityFounded,
		string(marshalStrings(c.Industries)), string(marshalStrings(c.TechnologyTypes)),
		c.CrunchbaseID, now, now,
	)
	return eris.Wrap(err, "sqlite: insert company")
}

const sqliteCompanySelect = `SELECT id, name, legal_name, website, domain,
	description, city, state, country, founded_year, funding_total_usd,
	last_funding_stage, ipo_status, employee_count_min, employee_count_max,
	revenue_usd_min, revenue_usd_max, women_founded, minority_founded,
	industries, technology_types, crunchbase_id, created_at, updated_at
	FROM companies`

func scanSQLiteCompany(row rowScanner) (*model.Company, error) {
	var c model.Company
	var industries, techTypes string
	err := row.Scan(&c.ID, &c.Name, &c.LegalName, &c.Website, &c.Domain,
		&c.Description, &c.City, &c.State, &c.Country, &c.FoundedYear,
		&c.FundingTotalUSD, &c.LastFundingStage, &c.IPOStatus,
		&c.EmployeeCountMin, &c.EmployeeCountMax, &c.RevenueUSDMin,
		&c.RevenueUSDMax, &c.WomenFounded, &c.MinorityFounded,
		&industries, &techTypes, &c.CrunchbaseID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Industries = unmarshalStrings([]byte(industries))
	c.TechnologyTypes = unmarshalStrings([]byte(techTypes))
	return &c, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	c, err := scanSQLiteCompany(s.db.QueryRowContext(ctx,
		sqliteCompanySelect+` WHERE id = ?`, id.String()))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get company %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) FindCompanies(ctx context.Context, lookup CompanyLookup) ([]model.Company, error) {
	if lookup.Empty() {
		return nil, nil
	}
	query := sqliteCompanySelect + ` WHERE 1=0`
	var args []any
	if lookup.Website != "" {
		query += ` OR lower(website) = lower(?)`
		args = append(args, lookup.Website)
	}
	if lookup.Name != "" {
		query += ` OR name_key = ?`
		args = append(args, model.NameKey(lookup.Name))
	}
	if lookup.CrunchbaseID != "" {
		query += ` OR crunchbase_id = ?`
		args = append(args, lookup.CrunchbaseID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: find companies rows")
}

func (s *SQLiteStore) UpdateCompanyFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	query, args, err := buildUpdateQ("companies", companyColumns, withNameKey(fields))
	if err != nil {
		return err
	}
	args = append(args, id.String())
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

// --- Deals ---

const sqliteDealSelect = `SELECT id, company_id, draft, name, status,
	processing_status, stage, funding_type, raise_amount_usd, summary,
	industries, dual_use_signals, created_at, updated_at FROM deals`

func scanSQLiteDeal(row rowScanner) (*model.Deal, error) {
	var d model.Deal
	var industries, signals string
	err := row.Scan(&d.ID, &d.CompanyID, &d.Draft, &d.Name, &d.Status,
		&d.ProcessingStatus, &d.Stage, &d.FundingType, &d.RaiseAmountUSD,
		&d.Summary, &industries, &signals, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Industries = unmarshalStrings([]byte(industries))
	d.DualUseSignals = unmarshalStrings([]byte(signals))
	return &d, nil
}

func (s *SQLiteStore) CreateDeal(ctx context.Context, d *model.Deal) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = model.DealNew
	}
	if d.ProcessingStatus == "" {
		d.ProcessingStatus = model.StatusPending
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (id, company_id, draft, name, status, processing_status,
			stage, funding_type, raise_amount_usd, summary, industries,
			dual_use_signals, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), uuidArg(d.CompanyID), d.Draft, d.Name, string(d.Status),
		string(d.ProcessingStatus), d.Stage, d.FundingType, d.RaiseAmountUSD,
		d.Summary, string(marshalStrings(d.Industries)),
		string(marshalStrings(d.DualUseSignals)), now, now,
	)
	return eris.Wrap(err, "sqlite: insert deal")
}

func (s *SQLiteStore) GetDeal(ctx context.Context, id uuid.UUID) (*model.Deal, error) {
	d, err := scanSQLiteDeal(s.db.QueryRowContext(ctx,
		sqliteDealSelect+` WHERE id = ?`, id.String()))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get deal %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	query := sqliteDealSelect + ` WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ProcessingStatus != "" {
		query += ` AND processing_status = ?`
		args = append(args, string(filter.ProcessingStatus))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deals")
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		d, err := scanSQLiteDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list deals rows")
}

func (s *SQLiteStore) UpdateDealFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	query, args, err := buildUpdateQ("deals", dealColumns, fields)
	if err != nil {
		return err
	}
	args = append(args, id.String())
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update deal %s", id)
	}
	return checkRowsAffected(res, "deal", id)
}

func (s *SQLiteStore) LinkDealCompany(ctx context.Context, dealID, companyID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET company_id = ?, draft = 0, updated_at = ? WHERE id = ?`,
		companyID.String(), time.Now().UTC(), dealID.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link deal %s", dealID)
	}
	return checkRowsAffected(res, "deal", dealID)
}

func (s *SQLiteStore) SetDealProcessingStatus(ctx context.Context, id uuid.UUID, status model.ProcessingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET processing_status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set deal status %s", id)
	}
	return checkRowsAffected(res, "deal", id)
}

func (s *SQLiteStore) SetDealTags(ctx context.Context, id uuid.UUID, industries, dualUseSignals []string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET industries = ?, dual_use_signals = ?, updated_at = ? WHERE id = ?`,
		string(marshalStrings(industries)), string(marshalStrings(dualUseSignals)),
		time.Now().UTC(), id.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set deal tags %s", id)
	}
	return checkRowsAffected(res, "deal", id)
}

// --- Assessments ---

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, deal_id, auto_pros, auto_cons,
			auto_quality_percentile, auto_score, auto_confidence,
			auto_recommendation, pros, cons, quality_percentile, score,
			confidence, recommendation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.DealID.String(), string(marshalStrings(a.AutoPros)),
		string(marshalStrings(a.AutoCons)), a.AutoQualityPercentile,
		a.AutoScore, a.AutoConfidence, a.AutoRecommendation,
		string(marshalStrings(a.Pros)), string(marshalStrings(a.Cons)),
		a.QualityPercentile, a.Score, a.Confidence, a.Recommendation, a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert assessment")
}

func (s *SQLiteStore) LatestAssessment(ctx context.Context, dealID uuid.UUID) (*model.Assessment, error) {
	var a model.Assessment
	var autoPros, autoCons, pros, cons string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, deal_id, auto_pros, auto_cons, auto_quality_percentile,
			auto_score, auto_confidence, auto_recommendation, pros, cons,
			quality_percentile, score, confidence, recommendation, created_at
		FROM assessments WHERE deal_id = ? ORDER BY created_at DESC LIMIT 1`,
		dealID.String(),
	).Scan(&a.ID, &a.DealID, &autoPros, &autoCons, &a.AutoQualityPercentile,
		&a.AutoScore, &a.AutoConfidence, &a.AutoRecommendation, &pros, &cons,
		&a.QualityPercentile, &a.Score, &a.Confidence, &a.Recommendation,
		&a.CreatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: latest assessment %s", dealID)
	}
	a.AutoPros = unmarshalStrings([]byte(autoPros))
	a.AutoCons = unmarshalStrings([]byte(autoCons))
	a.Pros = unmarshalStrings([]byte(pros))
	a.Cons = unmarshalStrings([]byte(cons))
	return &a, nil
}

// --- Files ---

const sqliteFileSelect = `SELECT id, deal_id, kind, name, blob_path, source_url,
	mime_type, processing_status, raw_text, clean_text, paper, created_at,
	updated_at FROM files`

func scanSQLiteFile(row rowScanner) (*model.File, error) {
	var f model.File
	var paper sql.NullString
	err := row.Scan(&f.ID, &f.DealID, &f.Kind, &f.Name, &f.BlobPath,
		&f.SourceURL, &f.MimeType, &f.ProcessingStatus, &f.RawText,
		&f.CleanText, &paper, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if paper.Valid && paper.String != "" {
		f.Paper = &model.PaperMeta{}
		if err := json.Unmarshal([]byte(paper.String), f.Paper); err != nil {
			return nil, eris.Wrap(err, "unmarshal paper meta")
		}
	}
	return &f, nil
}

func (s *SQLiteStore) CreateFile(ctx context.Context, f *model.File) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Kind == "" {
		f.Kind = model.KindFile
	}
	if f.ProcessingStatus == "" {
		f.ProcessingStatus = model.StatusPending
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	var paper any
	if f.Paper != nil {
		b, err := json.Marshal(f.Paper)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal paper meta")
		}
		paper = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, deal_id, kind, name, blob_path, source_url,
			mime_type, processing_status, raw_text, clean_text, paper,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID.String(), f.DealID.String(), string(f.Kind), f.Name, f.BlobPath,
		f.SourceURL, f.MimeType, string(f.ProcessingStatus), f.RawText,
		f.CleanText, paper, now, now,
	)
	return eris.Wrap(err, "sqlite: insert file")
}

func (s *SQLiteStore) GetFile(ctx context.Context, id uuid.UUID) (*model.File, error) {
	f, err := scanSQLiteFile(s.db.QueryRowContext(ctx,
		sqliteFileSelect+` WHERE id = ?`, id.String()))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get file %s", id)
	}
	return f, nil
}

func (s *SQLiteStore) ListDealFiles(ctx context.Context, dealID uuid.UUID) ([]model.File, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteFileSelect+` WHERE deal_id = ? ORDER BY created_at`, dealID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deal files")
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		f, err := scanSQLiteFile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan file")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list deal files rows")
}

func (s *SQLiteStore) SetFileProcessingStatus(ctx context.Context, id uuid.UUID, status model.ProcessingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET processing_status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set file status %s", id)
	}
	return checkRowsAffected(res, "file", id)
}

func (s *SQLiteStore) SetFileBlobPath(ctx context.Context, id uuid.UUID, blobPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET blob_path = ?, updated_at = ? WHERE id = ?`,
		blobPath, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set file blob path %s", id)
	}
	return checkRowsAffected(res, "file", id)
}

func (s *SQLiteStore) SetFileText(ctx context.Context, id uuid.UUID, rawText, cleanText string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET raw_text = ?, clean_text = ?, updated_at = ? WHERE id = ?`,
		rawText, cleanText, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set file text %s", id)
	}
	return checkRowsAffected(res, "file", id)
}

func (s *SQLiteStore) SetPaperMeta(ctx context.Context, id uuid.UUID, meta *model.PaperMeta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal paper meta")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET paper = ?, updated_at = ? WHERE id = ?`,
		string(b), time.Now().UTC(), id.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set paper meta %s", id)
	}
	return checkRowsAffected(res, "file", id)
}

func (s *SQLiteStore) SetPaperEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}
	meta := f.Paper
	if meta == nil {
		meta = &model.PaperMeta{}
	}
	meta.Embedding = embedding
	return s.SetPaperMeta(ctx, id, meta)
}

func (s *SQLiteStore) ReplaceDeckPages(ctx context.Context, fileID uuid.UUID, pages []model.DeckPage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace deck pages")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deck_pages WHERE file_id = ?`, fileID.String()); err != nil {
		return eris.Wrapf(err, "sqlite: delete deck pages %s", fileID)
	}

	now := time.Now().UTC()
	for i := range pages {
		p := &pages[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.FileID = fileID
		p.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deck_pages (id, file_id, number, text, screenshot_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID.String(), p.FileID.String(), p.Number, p.Text, p.ScreenshotPath, p.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert deck page %d", p.Number)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace deck pages")
}

func (s *SQLiteStore) ListDeckPages(ctx context.Context, fileID uuid.UUID) ([]model.DeckPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, number, text, screenshot_path, created_at
		FROM deck_pages WHERE file_id = ? ORDER BY number`, fileID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deck pages")
	}
	defer rows.Close()

	var out []model.DeckPage
	for rows.Next() {
		var p model.DeckPage
		if err := rows.Scan(&p.ID, &p.FileID, &p.Number, &p.Text, &p.ScreenshotPath, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deck page")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list deck pages rows")
}

// --- Founders ---

const sqliteFounderSelect = `SELECT id, name, headline, location, linkedin_url,
	coresignal_id, experience_json, education_json, graduation_year,
	created_at, updated_at FROM founders`

func (s *SQLiteStore) CreateFounder(ctx context.Context, f *model.Founder) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO founders (id, name, headline, location, linkedin_url,
			coresignal_id, experience_json, education_json, graduation_year,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID.String(), f.Name, f.Headline, f.Location, f.LinkedInURL,
		f.CoresignalID, f.ExperienceJSON, f.EducationJSON, f.GraduationYear,
		now, now,
	)
	return eris.Wrap(err, "sqlite: insert founder")
}

func (s *SQLiteStore) GetFounder(ctx context.Context, id uuid.UUID) (*model.Founder, error) {
	f, err := scanFounder(s.db.QueryRowContext(ctx,
		sqliteFounderSelect+` WHERE id = ?`, id.String()))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get founder %s", id)
	}
	return f, nil
}

func (s *SQLiteStore) UpdateFounderFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	query, args, err := buildUpdateQ("founders", founderColumns, fields)
	if err != nil {
		return err
	}
	args = append(args, id.String())
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update founder %s", id)
	}
	return checkRowsAffected(res, "founder", id)
}

func (s *SQLiteStore) UpsertFounding(ctx context.Context, f *model.Founding) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO foundings (id, founder_id, company_id, title,
			prior_founding_count, est_age_at_founding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (founder_id, company_id) DO UPDATE SET
			title = COALESCE(NULLIF(foundings.title, ''), excluded.title),
			prior_founding_count = COALESCE(foundings.prior_founding_count, excluded.prior_founding_count),
			est_age_at_founding = COALESCE(foundings.est_age_at_founding, excluded.est_age_at_founding)`,
		f.ID.String(), f.FounderID.String(), f.CompanyID.String(), f.Title,
		f.PriorFoundingCount, f.EstAgeAtFounding, f.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert founding")
}

func (s *SQLiteStore) GetFounding(ctx context.Context, founderID, companyID uuid.UUID) (*model.Founding, error) {
	var f model.Founding
	err := s.db.QueryRowContext(ctx,
		`SELECT id, founder_id, company_id, title, prior_founding_count,
			est_age_at_founding, created_at
		FROM foundings WHERE founder_id = ? AND company_id = ?`,
		founderID.String(), companyID.String(),
	).Scan(&f.ID, &f.FounderID, &f.CompanyID, &f.Title, &f.PriorFoundingCount,
		&f.EstAgeAtFounding, &f.CreatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get founding")
	}
	return &f, nil
}

func (s *SQLiteStore) ListCompanyFounders(ctx context.Context, companyID uuid.UUID) ([]model.Founder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.headline, f.location, f.linkedin_url,
			f.coresignal_id, f.experience_json, f.education_json,
			f.graduation_year, f.created_at, f.updated_at
		FROM founders f JOIN foundings fo ON fo.founder_id = f.id
		WHERE fo.company_id = ? ORDER BY f.created_at`, companyID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list company founders")
	}
	defer rows.Close()

	var out []model.Founder
	for rows.Next() {
		f, err := scanFounder(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan founder")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list company founders rows")
}

// --- Enrichment children ---

func (s *SQLiteStore) replaceChildren(ctx context.Context, companyID uuid.UUID, table, insert string, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin replace %s", table)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE company_id = ?`, companyID.String()); err != nil {
		return eris.Wrapf(err, "sqlite: delete %s for %s", table, companyID)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, insert, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert into %s", table)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit replace %s", table)
}

func (s *SQLiteStore) ReplaceGrants(ctx context.Context, companyID uuid.UUID, grants []model.Grant) error {
	rows := make([][]any, 0, len(grants))
	for i := range grants {
		g := &grants[i]
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		g.CompanyID = companyID
		rows = append(rows, []any{g.ID.String(), g.CompanyID.String(), g.Agency, g.Program, g.Title, g.Phase, g.AmountUSD, g.AwardYear})
	}
	return s.replaceChildren(ctx, companyID, "grants",
		`INSERT INTO grants (id, company_id, agency, program, title, phase, amount_usd, award_year)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, rows)
}

func (s *SQLiteStore) ReplacePatentApplications(ctx context.Context, companyID uuid.UUID, apps []model.PatentApplication) error {
	rows := make([][]any, 0, len(apps))
	for i := range apps {
		a := &apps[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.CompanyID = companyID
		rows = append(rows, []any{a.ID.String(), a.CompanyID.String(), a.ApplicationNumber, a.Title, a.Status, a.FiledAt})
	}
	return s.replaceChildren(ctx, companyID, "patent_applications",
		`INSERT INTO patent_applications (id, company_id, application_number, title, status, filed_at)
		VALUES (?, ?, ?, ?, ?, ?)`, rows)
}

func (s *SQLiteStore) ReplaceClinicalStudies(ctx context.Context, companyID uuid.UUID, studies []model.ClinicalStudy) error {
	rows := make([][]any, 0, len(studies))
	for i := range studies {
		cs := &studies[i]
		if cs.ID == uuid.Nil {
			cs.ID = uuid.New()
		}
		cs.CompanyID = companyID
		rows = append(rows, []any{cs.ID.String(), cs.CompanyID.String(), cs.NCTID, cs.Title, cs.Phase, cs.Status, string(marshalStrings(cs.Conditions)), cs.StartedAt})
	}
	return s.replaceChildren(ctx, companyID, "clinical_studies",
		`INSERT INTO clinical_studies (id, company_id, nct_id, title, phase, status, conditions, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, rows)
}

func (s *SQLiteStore) ListGrants(ctx context.Context, companyID uuid.UUID) ([]model.Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, agency, program, title, phase, amount_usd, award_year
		FROM grants WHERE company_id = ? ORDER BY award_year DESC, title`, companyID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list grants")
	}
	defer rows.Close()

	var out []model.Grant
	for rows.Next() {
		var g model.Grant
		if err := rows.Scan(&g.ID, &g.CompanyID, &g.Agency, &g.Program, &g.Title, &g.Phase, &g.AmountUSD, &g.AwardYear); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan grant")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list grants rows")
}

func (s *SQLiteStore) ListPatentApplications(ctx context.Context, companyID uuid.UUID) ([]model.PatentApplication, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, application_number, title, status, filed_at
		FROM patent_applications WHERE company_id = ? ORDER BY filed_at DESC, title`, companyID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patent applications")
	}
	defer rows.Close()

	var out []model.PatentApplication
	for rows.Next() {
		var a model.PatentApplication
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.ApplicationNumber, &a.Title, &a.Status, &a.FiledAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan patent application")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list patent applications rows")
}

func (s *SQLiteStore) ListClinicalStudies(ctx context.Context, companyID uuid.UUID) ([]model.ClinicalStudy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, nct_id, title, phase, status, conditions, started_at
		FROM clinical_studies WHERE company_id = ? ORDER BY started_at DESC, title`, companyID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clinical studies")
	}
	defer rows.Close()

	var out []model.ClinicalStudy
	for rows.Next() {
		var cs model.ClinicalStudy
		var conditions string
		if err := rows.Scan(&cs.ID, &cs.CompanyID, &cs.NCTID, &cs.Title, &cs.Phase, &cs.Status, &conditions, &cs.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan clinical study")
		}
		cs.Conditions = unmarshalStrings([]byte(conditions))
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list clinical studies rows")
}

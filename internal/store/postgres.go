package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dealflow/internal/db"
	"github.com/sells-group/dealflow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                 UUID PRIMARY KEY,
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
	funding_total_usd  BIGINT,
	last_funding_stage TEXT NOT NULL DEFAULT '',
	ipo_status         TEXT NOT NULL DEFAULT '',
	employee_count_min INTEGER,
	employee_count_max INTEGER,
	revenue_usd_min    BIGINT,
	revenue_usd_max    BIGINT,
	women_founded      BOOLEAN,
	minority_founded   BOOLEAN,
	industries         JSONB NOT NULL DEFAULT '[]',
	technology_types   JSONB NOT NULL DEFAULT '[]',
	crunchbase_id      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_website ON companies(website);
CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key);
CREATE INDEX IF NOT EXISTS idx_companies_crunchbase_id ON companies(crunchbase_id);

CREATE TABLE IF NOT EXISTS deals (
	id                UUID PRIMARY KEY,
	company_id        UUID REFERENCES companies(id),
	draft             BOOLEAN NOT NULL DEFAULT false,
	name              TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'NEW',
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	stage             TEXT NOT NULL DEFAULT '',
	funding_type      TEXT NOT NULL DEFAULT '',
	raise_amount_usd  BIGINT,
	summary           TEXT NOT NULL DEFAULT '',
	industries        JSONB NOT NULL DEFAULT '[]',
	dual_use_signals  JSONB NOT NULL DEFAULT '[]',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (draft OR company_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_deals_company_id ON deals(company_id);
CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status);
CREATE INDEX IF NOT EXISTS idx_deals_processing_status ON deals(processing_status);

CREATE TABLE IF NOT EXISTS assessments (
	id                      UUID PRIMARY KEY,
	deal_id                 UUID NOT NULL REFERENCES deals(id),
	auto_pros               JSONB NOT NULL DEFAULT '[]',
	auto_cons               JSONB NOT NULL DEFAULT '[]',
	auto_quality_percentile TEXT NOT NULL DEFAULT '',
	auto_score              DOUBLE PRECISION,
	auto_confidence         DOUBLE PRECISION,
	auto_recommendation     TEXT NOT NULL DEFAULT '',
	pros                    JSONB NOT NULL DEFAULT '[]',
	cons                    JSONB NOT NULL DEFAULT '[]',
	quality_percentile      TEXT NOT NULL DEFAULT '',
	score                   DOUBLE PRECISION,
	confidence              DOUBLE PRECISION,
	recommendation          TEXT NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_assessments_deal_id ON assessments(deal_id);

CREATE TABLE IF NOT EXISTS files (
	id                UUID PRIMARY KEY,
	deal_id           UUID NOT NULL REFERENCES deals(id),
	kind              TEXT NOT NULL DEFAULT 'file',
	name              TEXT NOT NULL DEFAULT '',
	blob_path         TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL DEFAULT '',
	mime_type         TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	raw_text          TEXT NOT NULL DEFAULT '',
	clean_text        TEXT NOT NULL DEFAULT '',
	paper             JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_files_deal_id ON files(deal_id);
CREATE INDEX IF NOT EXISTS idx_files_processing_status ON files(processing_status);

CREATE TABLE IF NOT EXISTS deck_pages (
	id              UUID PRIMARY KEY,
	file_id         UUID NOT NULL REFERENCES files(id),
	number          INTEGER NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	screenshot_path TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (file_id, number)
);

CREATE TABLE IF NOT EXISTS founders (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	headline        TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	linkedin_url    TEXT NOT NULL DEFAULT '',
	coresignal_id   TEXT NOT NULL DEFAULT '',
	experience_json TEXT NOT NULL DEFAULT '',
	education_json  TEXT NOT NULL DEFAULT '',
	graduation_year INTEGER,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS foundings (
	id                  UUID PRIMARY KEY,
	founder_id          UUID NOT NULL REFERENCES founders(id),
	company_id          UUID NOT NULL REFERENCES companies(id),
	title               TEXT NOT NULL DEFAULT '',
	prior_founding_count INTEGER,
	est_age_at_founding INTEGER,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (founder_id, company_id)
);

CREATE INDEX IF NOT EXISTS idx_foundings_company_id ON foundings(company_id);

CREATE TABLE IF NOT EXISTS grants (
	id         UUID PRIMARY KEY,
	company_id UUID NOT NULL REFERENCES companies(id),
	agency     TEXT NOT NULL DEFAULT '',
	program    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT '',
	amount_usd BIGINT NOT NULL DEFAULT 0,
	award_year INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_grants_company_id ON grants(company_id);

CREATE TABLE IF NOT EXISTS patent_applications (
	id                 UUID PRIMARY KEY,
	company_id         UUID NOT NULL REFERENCES companies(id),
	application_number TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT '',
	filed_at           TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_patent_applications_company_id ON patent_applications(company_id);

CREATE TABLE IF NOT EXISTS clinical_studies (
	id         UUID PRIMARY KEY,
	company_id UUID NOT NULL REFERENCES companies(id),
	nct_id     TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	conditions JSONB NOT NULL DEFAULT '[]',
	started_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_clinical_studies_company_id ON clinical_studies(company_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// marshalStrings normalizes a nil slice to an empty JSON array so the
// NOT NULL json columns never see SQL NULL.
func marshalStrings(ss []string) []byte {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return b
}

func unmarshalStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil
	}
	if len(ss) == 0 {
		return nil
	}
	return ss
}

// fieldArg converts a partial-update value into its SQL representation.
// String slices land in json columns.
func fieldArg(v any) (any, error) {
	switch vv := v.(type) {
	case []string:
		return marshalStrings(vv), nil
	case []any:
		ss := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, eris.Errorf("store: non-string element %T in list value", e)
			}
			ss = append(ss, s)
		}
		return marshalStrings(ss), nil
	default:
		return v, nil
	}
}

// buildUpdate renders a deterministic SET clause for the whitelisted subset
// of fields. Unknown columns are an error, not a silent skip: the merge
// layer already scopes the map to tagged columns.
func buildUpdate(table string, allowed map[string]bool, fields map[string]any) (string, []any, error) {
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
		query += fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, arg)
	}
	query += fmt.Sprintf(", updated_at = $%d WHERE id = $%d", len(cols)+1, len(cols)+2)
	args = append(args, time.Now().UTC())
	return query, args, nil
}

// --- Companies ---

const companySelect = `SELECT id, name, legal_name, website, domain, description,
	city, state, country, founded_year, funding_total_usd, last_funding_stage,
	ipo_status, employee_count_min, employee_count_max, revenue_usd_min,
	revenue_usd_max, women_founded, minority_founded, industries,
	technology_types, crunchbase_id, created_at, updated_at FROM companies`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (*model.Company, error) {
	var c model.Company
	var industries, techTypes []byte
	err := row.Scan(&c.ID, &c.Name, &c.LegalName, &c.Website, &c.Domain,
		&c.Description, &c.City, &c.State, &c.Country, &c.FoundedYear,
		&c.FundingTotalUSD, &c.LastFundingStage, &c.IPOStatus,
		&c.EmployeeCountMin, &c.EmployeeCountMax, &c.RevenueUSDMin,
		&c.RevenueUSDMax, &c.WomenFounded, &c.MinorityFounded,
		&industries, &techTypes, &c.CrunchbaseID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Industries = unmarshalStrings(industries)
	c.TechnologyTypes = unmarshalStrings(techTypes)
	return &c, nil
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, name, name_key, legal_name, website, domain,
			description, city, state, country, founded_year, funding_total_usd,
			last_funding_stage, ipo_status, employee_count_min, employee_count_max,
			revenue_usd_min, revenue_usd_max, women_founded, minority_founded,
			industries, technology_types, crunchbase_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		c.ID, c.Name, model.NameKey(c.Name), c.LegalName, c.Website, c.Domain,
		c.Description, c.City, c.State, c.Country, c.FoundedYear, c.FundingTotalUSD,
		c.LastFundingStage, c.IPOStatus, c.EmployeeCountMin, c.EmployeeCountMax,
		c.RevenueUSDMin, c.RevenueUSDMax, c.WomenFounded, c.MinorityFounded,
		marshalStrings(c.Industries), marshalStrings(c.TechnologyTypes),
		c.CrunchbaseID, now, now,
	)
	return eris.Wrap(err, "postgres: insert company")
}

func (s *PostgresStore) GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, companySelect+` WHERE id = $1`, id))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}
	return c, nil
}

func (s *PostgresStore) FindCompanies(ctx context.Context, lookup CompanyLookup) ([]model.Company, error) {
	if lookup.Empty() {
		return nil, nil
	}
	query := companySelect + ` WHERE false`
	args := []any{}
	argIdx := 1
	if lookup.Website != "" {
		query += fmt.Sprintf(` OR lower(website) = lower($%d)`, argIdx)
		args = append(args, lookup.Website)
		argIdx++
	}
	if lookup.Name != "" {
		query += fmt.Sprintf(` OR name_key = $%d`, argIdx)
		args = append(args, model.NameKey(lookup.Name))
		argIdx++
	}
	if lookup.CrunchbaseID != "" {
		query += fmt.Sprintf(` OR crunchbase_id = $%d`, argIdx)
		args = append(args, lookup.CrunchbaseID)
		argIdx++
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: find companies rows")
}

func (s *PostgresStore) UpdateCompanyFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	query, args, err := buildUpdate("companies", companyColumns, withNameKey(fields))
	if err != nil {
		return err
	}
	args = append(args, id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Deals ---

const dealSelect = `SELECT id, company_id, draft, name, status, processing_status,
	stage, funding_type, raise_amount_usd, summary, industries, dual_use_signals,
	created_at, updated_at FROM deals`

func scanDeal(row rowScanner) (*model.Deal, error) {
	var d model.Deal
	var industries, signals []byte
	err := row.Scan(&d.ID, &d.CompanyID, &d.Draft, &d.Name, &d.Status,
		&d.ProcessingStatus, &d.Stage, &d.FundingType, &d.RaiseAmountUSD,
		&d.Summary, &industries, &signals, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Industries = unmarshalStrings(industries)
	d.DualUseSignals = unmarshalStrings(signals)
	return &d, nil
}

func (s *PostgresStore) CreateDeal(ctx context.Context, d *model.Deal) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, company_id, draft, name, status, processing_status,
			stage, funding_type, raise_amount_usd, summary, industries,
			dual_use_signals, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.CompanyID, d.Draft, d.Name, string(d.Status),
		string(d.ProcessingStatus), d.Stage, d.FundingType, d.RaiseAmountUSD,
		d.Summary, marshalStrings(d.Industries), marshalStrings(d.DualUseSignals),
		now, now,
	)
	return eris.Wrap(err, "postgres: insert deal")
}

func (s *PostgresStore) GetDeal(ctx context.Context, id uuid.UUID) (*model.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx, dealSelect+` WHERE id = $1`, id))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get deal %s", id)
	}
	return d, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	query := dealSelect + ` WHERE true`
	args := []any{}
	argIdx := 1
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ProcessingStatus != "" {
		query += fmt.Sprintf(` AND processing_status = $%d`, argIdx)
		args = append(args, string(filter.ProcessingStatus))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list deals rows")
}

func (s *PostgresStore) UpdateDealFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	query, args, err := buildUpdate("deals", dealColumns, fields)
	if err != nil {
		return err
	}
	args = append(args, id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update deal %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LinkDealCompany(ctx context.Context, dealID, companyID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET company_id = $1, draft = false, updated_at = $2 WHERE id = $3`,
		companyID, time.Now().UTC(), dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: link deal %s", dealID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetDealProcessingStatus(ctx context.Context, id uuid.UUID, status model.ProcessingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET processing_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set deal status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetDealTags(ctx context.Context, id uuid.UUID, industries, dualUseSignals []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET industries = $1, dual_use_signals = $2, updated_at = $3 WHERE id = $4`,
		marshalStrings(industries), marshalStrings(dualUseSignals), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set deal tags %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Assessments ---

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessments (id, deal_id, auto_pros, auto_cons,
			auto_quality_percentile, auto_score, auto_confidence,
			auto_recommendation, pros, cons, quality_percentile, score,
			confidence, recommendation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.DealID, marshalStrings(a.AutoPros), marshalStrings(a.AutoCons),
		a.AutoQualityPercentile, a.AutoScore, a.AutoConfidence,
		a.AutoRecommendation, marshalStrings(a.Pros), marshalStrings(a.Cons),
		a.QualityPercentile, a.Score, a.Confidence, a.Recommendation, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert assessment")
}

func (s *PostgresStore) LatestAssessment(ctx context.Context, dealID uuid.UUID) (*model.Assessment, error) {
	var a model.Assessment
	var autoPros, autoCons, pros, cons []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, deal_id, auto_pros, auto_cons, auto_quality_percentile,
			auto_score, auto_confidence, auto_recommendation, pros, cons,
			quality_percentile, score, confidence, recommendation, created_at
		FROM assessments WHERE deal_id = $1 ORDER BY created_at DESC LIMIT 1`,
		dealID,
	).Scan(&a.ID, &a.DealID, &autoPros, &autoCons, &a.AutoQualityPercentile,
		&a.AutoScore, &a.AutoConfidence, &a.AutoRecommendation, &pros, &cons,
		&a.QualityPercentile, &a.Score, &a.Confidence, &a.Recommendation,
		&a.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: latest assessment %s", dealID)
	}
	a.AutoPros = unmarshalStrings(autoPros)
	a.AutoCons = unmarshalStrings(autoCons)
	a.Pros = unmarshalStrings(pros)
	a.Cons = unmarshalStrings(cons)
	return &a, nil
}

// --- Files ---

const fileSelect = `SELECT id, deal_id, kind, name, blob_path, source_url,
	mime_type, processing_status, raw_text, clean_text, paper, created_at,
	updated_at FROM files`

func scanFile(row rowScanner) (*model.File, error) {
	var f model.File
	var paper []byte
	err := row.Scan(&f.ID, &f.DealID, &f.Kind, &f.Name, &f.BlobPath,
		&f.SourceURL, &f.MimeType, &f.ProcessingStatus, &f.RawText,
		&f.CleanText, &paper, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(paper) > 0 {
		f.Paper = &model.PaperMeta{}
		if err := json.Unmarshal(paper, f.Paper); err != nil {
			return nil, eris.Wrap(err, "unmarshal paper meta")
		}
	}
	return &f, nil
}

func (s *PostgresStore) CreateFile(ctx context.Context, f *model.File) error {
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
			return eris.Wrap(err, "postgres: marshal paper meta")
		}
		paper = b
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO files (id, deal_id, kind, name, blob_path, source_url,
			mime_type, processing_status, raw_text, clean_text, paper,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		f.ID, f.DealID, string(f.Kind), f.Name, f.BlobPath, f.SourceURL,
		f.MimeType, string(f.ProcessingStatus), f.RawText, f.CleanText,
		paper, now, now,
	)
	return eris.Wrap(err, "postgres: insert file")
}

func (s *PostgresStore) GetFile(ctx context.Context, id uuid.UUID) (*model.File, error) {
	f, err := scanFile(s.pool.QueryRow(ctx, fileSelect+` WHERE id = $1`, id))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get file %s", id)
	}
	return f, nil
}

func (s *PostgresStore) ListDealFiles(ctx context.Context, dealID uuid.UUID) ([]model.File, error) {
	rows, err := s.pool.Query(ctx, fileSelect+` WHERE deal_id = $1 ORDER BY created_at`, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deal files")
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan file")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list deal files rows")
}

func (s *PostgresStore) SetFileProcessingStatus(ctx context.Context, id uuid.UUID, status model.ProcessingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET processing_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set file status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetFileBlobPath(ctx context.Context, id uuid.UUID, blobPath string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET blob_path = $1, updated_at = $2 WHERE id = $3`,
		blobPath, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set file blob path %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetFileText(ctx context.Context, id uuid.UUID, rawText, cleanText string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET raw_text = $1, clean_text = $2, updated_at = $3 WHERE id = $4`,
		rawText, cleanText, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set file text %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetPaperMeta(ctx context.Context, id uuid.UUID, meta *model.PaperMeta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal paper meta")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET paper = $1, updated_at = $2 WHERE id = $3`,
		b, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set paper meta %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetPaperEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	// The embedding lives inside the paper json payload; read-modify-write
	// keeps the column shape stable.
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

func (s *PostgresStore) ReplaceDeckPages(ctx context.Context, fileID uuid.UUID, pages []model.DeckPage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace deck pages")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM deck_pages WHERE file_id = $1`, fileID); err != nil {
		return eris.Wrapf(err, "postgres: delete deck pages %s", fileID)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(pages))
	for i := range pages {
		p := &pages[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.FileID = fileID
		p.CreatedAt = now
		rows = append(rows, []any{p.ID, p.FileID, p.Number, p.Text, p.ScreenshotPath, p.CreatedAt})
	}
	if _, err := db.CopyFrom(ctx, tx, "deck_pages",
		[]string{"id", "file_id", "number", "text", "screenshot_path", "created_at"}, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy deck pages %s", fileID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace deck pages")
}

func (s *PostgresStore) ListDeckPages(ctx context.Context, fileID uuid.UUID) ([]model.DeckPage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, file_id, number, text, screenshot_path, created_at
		FROM deck_pages WHERE file_id = $1 ORDER BY number`, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deck pages")
	}
	defer rows.Close()

	var out []model.DeckPage
	for rows.Next() {
		var p model.DeckPage
		if err := rows.Scan(&p.ID, &p.FileID, &p.Number, &p.Text, &p.ScreenshotPath, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deck page")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list deck pages rows")
}

// --- Founders ---

const founderSelect = `SELECT id, name, headline, location, linkedin_url,
	coresignal_id, experience_json, education_json, graduation_year,
	created_at, updated_at FROM founders`

func scanFounder(row rowScanner) (*model.Founder, error) {
	var f model.Founder
	err := row.Scan(&f.ID, &f.Name, &f.Headline, &f.Location, &f.LinkedInURL,
		&f.CoresignalID, &f.ExperienceJSON, &f.EducationJSON, &f.GraduationYear,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) CreateFounder(ctx context.Context, f *model.Founder) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO founders (id, name, headline, location, linkedin_url,
			coresignal_id, experience_json, education_json, graduation_year,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.Name, f.Headline, f.Location, f.LinkedInURL, f.CoresignalID,
		f.ExperienceJSON, f.EducationJSON, f.GraduationYear, now, now,
	)
	return eris.Wrap(err, "postgres: insert founder")
}

func (s *PostgresStore) GetFounder(ctx context.Context, id uuid.UUID) (*model.Founder, error) {
	f, err := scanFounder(s.pool.QueryRow(ctx, founderSelect+` WHERE id = $1`, id))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get founder %s", id)
	}
	return f, nil
}

func (s *PostgresStore) UpdateFounderFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	query, args, err := buildUpdate("founders", founderColumns, fields)
	if err != nil {
		return err
	}
	args = append(args, id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update founder %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertFounding(ctx context.Context, f *model.Founding) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO foundings (id, founder_id, company_id, title,
			prior_founding_count, est_age_at_founding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (founder_id, company_id) DO UPDATE SET
			title = COALESCE(NULLIF(foundings.title, ''), EXCLUDED.title),
			prior_founding_count = COALESCE(foundings.prior_founding_count, EXCLUDED.prior_founding_count),
			est_age_at_founding = COALESCE(foundings.est_age_at_founding, EXCLUDED.est_age_at_founding)`,
		f.ID, f.FounderID, f.CompanyID, f.Title, f.PriorFoundingCount,
		f.EstAgeAtFounding, f.CreatedAt,
	)
	return eris.Wrap(err, "postgres: upsert founding")
}

func (s *PostgresStore) GetFounding(ctx context.Context, founderID, companyID uuid.UUID) (*model.Founding, error) {
	var f model.Founding
	err := s.pool.QueryRow(ctx,
		`SELECT id, founder_id, company_id, title, prior_founding_count,
			est_age_at_founding, created_at
		FROM foundings WHERE founder_id = $1 AND company_id = $2`,
		founderID, companyID,
	).Scan(&f.ID, &f.FounderID, &f.CompanyID, &f.Title, &f.PriorFoundingCount,
		&f.EstAgeAtFounding, &f.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get founding")
	}
	return &f, nil
}

func (s *PostgresStore) ListCompanyFounders(ctx context.Context, companyID uuid.UUID) ([]model.Founder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.name, f.headline, f.location, f.linkedin_url,
			f.coresignal_id, f.experience_json, f.education_json,
			f.graduation_year, f.created_at, f.updated_at
		FROM founders f JOIN foundings fo ON fo.founder_id = f.id
		WHERE fo.company_id = $1 ORDER BY f.created_at`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list company founders")
	}
	defer rows.Close()

	var out []model.Founder
	for rows.Next() {
		f, err := scanFounder(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan founder")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list company founders rows")
}

// --- Enrichment children ---

// replaceChildren swaps the full child set for a company in one transaction.
func (s *PostgresStore) replaceChildren(ctx context.Context, companyID uuid.UUID, table string, columns []string, rows [][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin replace %s", table)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE company_id = $1`, companyID); err != nil {
		return eris.Wrapf(err, "postgres: delete %s for %s", table, companyID)
	}
	if _, err := db.CopyFrom(ctx, tx, table, columns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy %s for %s", table, companyID)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit replace %s", table)
}

func (s *PostgresStore) ReplaceGrants(ctx context.Context, companyID uuid.UUID, grants []model.Grant) error {
	rows := make([][]any, 0, len(grants))
	for i := range grants {
		g := &grants[i]
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		g.CompanyID = companyID
		rows = append(rows, []any{g.ID, g.CompanyID, g.Agency, g.Program, g.Title, g.Phase, g.AmountUSD, g.AwardYear})
	}
	return s.replaceChildren(ctx, companyID, "grants",
		[]string{"id", "company_id", "agency", "program", "title", "phase", "amount_usd", "award_year"}, rows)
}

func (s *PostgresStore) ReplacePatentApplications(ctx context.Context, companyID uuid.UUID, apps []model.PatentApplication) error {
	rows := make([][]any, 0, len(apps))
	for i := range apps {
		a := &apps[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.CompanyID = companyID
		rows = append(rows, []any{a.ID, a.CompanyID, a.ApplicationNumber, a.Title, a.Status, a.FiledAt})
	}
	return s.replaceChildren(ctx, companyID, "patent_applications",
		[]string{"id", "company_id", "application_number", "title", "status", "filed_at"}, rows)
}

func (s *PostgresStore) ReplaceClinicalStudies(ctx context.Context, companyID uuid.UUID, studies []model.ClinicalStudy) error {
	rows := make([][]any, 0, len(studies))
	for i := range studies {
		cs := &studies[i]
		if cs.ID == uuid.Nil {
			cs.ID = uuid.New()
		}
		cs.CompanyID = companyID
		rows = append(rows, []any{cs.ID, cs.CompanyID, cs.NCTID, cs.Title, cs.Phase, cs.Status, marshalStrings(cs.Conditions), cs.StartedAt})
	}
	return s.replaceChildren(ctx, companyID, "clinical_studies",
		[]string{"id", "company_id", "nct_id", "title", "phase", "status", "conditions", "started_at"}, rows)
}

func (s *PostgresStore) ListGrants(ctx context.Context, companyID uuid.UUID) ([]model.Grant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, agency, program, title, phase, amount_usd, award_year
		FROM grants WHERE company_id = $1 ORDER BY award_year DESC, title`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list grants")
	}
	defer rows.Close()

	var out []model.Grant
	for rows.Next() {
		var g model.Grant
		if err := rows.Scan(&g.ID, &g.CompanyID, &g.Agency, &g.Program, &g.Title, &g.Phase, &g.AmountUSD, &g.AwardYear); err != nil {
			return nil, eris.Wrap(err, "postgres: scan grant")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list grants rows")
}

func (s *PostgresStore) ListPatentApplications(ctx context.Context, companyID uuid.UUID) ([]model.PatentApplication, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, application_number, title, status, filed_at
		FROM patent_applications WHERE company_id = $1 ORDER BY filed_at DESC NULLS LAST, title`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patent applications")
	}
	defer rows.Close()

	var out []model.PatentApplication
	for rows.Next() {
		var a model.PatentApplication
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.ApplicationNumber, &a.Title, &a.Status, &a.FiledAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan patent application")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list patent applications rows")
}

func (s *PostgresStore) ListClinicalStudies(ctx context.Context, companyID uuid.UUID) ([]model.ClinicalStudy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, nct_id, title, phase, status, conditions, started_at
		FROM clinical_studies WHERE company_id = $1 ORDER BY started_at DESC NULLS LAST, title`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clinical studies")
	}
	defer rows.Close()

	var out []model.ClinicalStudy
	for rows.Next() {
		var cs model.ClinicalStudy
		var conditions []byte
		if err := rows.Scan(&cs.ID, &cs.CompanyID, &cs.NCTID, &cs.Title, &cs.Phase, &cs.Status, &conditions, &cs.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan clinical study")
		}
		cs.Conditions = unmarshalStrings(conditions)
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list clinical studies rows")
}

package enrich

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/merge"
	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/coresignal"
)

// Profile wraps the professional-history source. Profiles are addressed by
// LinkedIn URL, which serves as both the search key and the fetch identifier.
type Profile struct {
	client coresignal.Client
}

// NewProfile creates the profile connector.
func NewProfile(client coresignal.Client) *Profile {
	return &Profile{client: client}
}

func (p *Profile) Name() string { return "coresignal" }

func (p *Profile) Search(ctx context.Context, criteria Criteria) (*Match, error) {
	if criteria.LinkedInURL == "" {
		return nil, nil
	}
	member, err := p.client.CollectMember(ctx, criteria.LinkedInURL)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: profile search")
	}
	if member == nil {
		return nil, nil
	}
	return &Match{ID: criteria.LinkedInURL, Name: member.Name}, nil
}

func (p *Profile) Fetch(ctx context.Context, linkedinURL string) (map[string]any, error) {
	member, err := p.client.CollectMember(ctx, linkedinURL)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: profile fetch")
	}
	if member == nil {
		return nil, nil
	}

	expJSON, err := json.Marshal(member.Experience)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: profile fetch: marshal experience")
	}
	eduJSON, err := json.Marshal(member.Education)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: profile fetch: marshal education")
	}

	attrs := map[string]any{
		"name":            member.Name,
		"headline":        member.Headline,
		"location":        member.Location,
		"linkedin_url":    member.URL,
		"coresignal_id":   strconv.FormatInt(member.ID, 10),
		"experience_json": string(expJSON),
		"education_json":  string(eduJSON),
	}
	if y := graduationYear(member.Education); y != nil {
		attrs["graduation_year"] = y
	}
	return attrs, nil
}

// graduationYear picks the earliest education end year, approximating the
// undergraduate graduation.
func graduationYear(education []coresignal.Education) *int {
	var best *int
	for _, e := range education {
		if len(e.DateTo) < 4 {
			continue
		}
		y, err := strconv.Atoi(e.DateTo[:4])
		if err != nil || y < 1900 {
			continue
		}
		if best == nil || y < *best {
			v := y
			best = &v
		}
	}
	return best
}

type founderStore interface {
	GetFounder(ctx context.Context, id uuid.UUID) (*model.Founder, error)
	UpdateFounderFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

// FounderProfiler lands professional-history attributes on a founder record.
type FounderProfiler struct {
	conn  Connector
	store founderStore
}

// NewFounderProfiler creates the writer.
func NewFounderProfiler(conn Connector, store founderStore) *FounderProfiler {
	return &FounderProfiler{conn: conn, store: store}
}

// Refresh pulls the founder's profile and merges it under the non-overwrite
// policy. A founder without a LinkedIn URL, or a profile no-match, leaves the
// record untouched.
func (r *FounderProfiler) Refresh(ctx context.Context, founderID uuid.UUID) error {
	founder, err := r.store.GetFounder(ctx, founderID)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh founder %s", founderID)
	}
	log := zap.L().With(zap.String("founder_id", founderID.String()))

	if founder.LinkedInURL == "" {
		log.Info("founder has no profile key")
		return nil
	}

	attrs, err := r.conn.Fetch(ctx, founder.LinkedInURL)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh founder %s", founderID)
	}
	if attrs == nil {
		log.Info("no profile match", zap.String("linkedin_url", founder.LinkedInURL))
		return nil
	}

	changed, err := merge.Apply(founder, attrs, false)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh founder %s", founderID)
	}
	if len(changed) == 0 {
		return nil
	}

	fields, err := merge.Select(founder, changed)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh founder %s", founderID)
	}
	if err := r.store.UpdateFounderFields(ctx, founderID, fields); err != nil {
		return eris.Wrapf(err, "enrich: refresh founder %s", founderID)
	}

	log.Info("founder profile refreshed", zap.Strings("columns", changed))
	return nil
}

package enrichment

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/ratelimit"
)

// certificateValidity is the statutory lifetime of a domestic EPC.
const certificateValidity = 10 * 365 * 24 * time.Hour

// EPCAdapter pulls the current energy certificate from the domestic EPC
// register: rating, floor area, and the headroom between current and
// potential rating.
type EPCAdapter struct {
	baseURL   string
	authToken string
	client    *http.Client
	limiter   *ratelimit.ProviderLimiter
	log       *zap.Logger

	warnOnce sync.Once
}

func NewEPCAdapter(cfg config.Config, limiter *ratelimit.ProviderLimiter, log *zap.Logger) *EPCAdapter {
	return &EPCAdapter{
		baseURL:   cfg.Providers.EPCBaseURL,
		authToken: cfg.Providers.EPCAuthToken,
		client:    &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		limiter:   limiter,
		log:       log.Named("enrichment.epc"),
	}
}

func (e *EPCAdapter) Name() string { return "epc-register" }

type epcSearchResponse struct {
	Rows []epcRow `json:"rows"`
}

type epcRow struct {
	CurrentRating   string `json:"current-energy-rating"`
	PotentialRating string `json:"potential-energy-rating"`
	TotalFloorArea  string `json:"total-floor-area"`
	LMKKey          string `json:"lmk-key"`
	LodgementDate   string `json:"lodgement-date"`
}

func (e *EPCAdapter) Enrich(ctx context.Context, l domain.Listing) (Patch, error) {
	if l.EPC.Rating != nil {
		return Patch{}, nil
	}
	if e.baseURL == "" || e.authToken == "" {
		e.warnOnce.Do(func() {
			e.log.Warn("EPC register credentials not set, certificates will not be fetched")
		})
		return Patch{}, nil
	}

	if err := e.limiter.Acquire(ctx, e.Name()); err != nil {
		return Patch{}, err
	}

	params := url.Values{}
	params.Set("postcode", l.Postcode)
	if l.Address != "" {
		params.Set("address", l.Address)
	}
	params.Set("size", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.baseURL+"/domestic/search?"+params.Encode(), nil)
	if err != nil {
		return Patch{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+e.authToken)

	var payload epcSearchResponse
	found, err := doJSON(e.client, req, &payload)
	if err != nil {
		if ctx.Err() != nil {
			return Patch{}, ctx.Err()
		}
		e.log.Warn("EPC lookup failed", zap.String("postcode", l.Postcode), zap.Error(err))
		return Patch{}, nil
	}
	if !found || len(payload.Rows) == 0 {
		return Patch{}, nil
	}

	row := payload.Rows[0]
	rating := strings.ToUpper(strings.TrimSpace(row.CurrentRating))
	if rating == "" {
		return Patch{}, nil
	}

	patch := Patch{}
	patch.EPC.Rating = &rating
	improvement := improvementPotential(rating, strings.ToUpper(strings.TrimSpace(row.PotentialRating)))
	patch.EPC.ImprovementPotential = &improvement
	if row.LMKKey != "" {
		ref := row.LMKKey
		patch.EPC.CertificateRef = &ref
	}
	if lodged, err := time.Parse("2006-01-02", row.LodgementDate); err == nil {
		expires := lodged.Add(certificateValidity)
		patch.EPC.ExpiresAt = &expires
	}
	if area, err := strconv.ParseFloat(strings.TrimSpace(row.TotalFloorArea), 64); err == nil && area > 0 {
		patch.GrossInternalAreaSqm = &area
	}
	return patch, nil
}

// improvementPotential grades the gap between the current and potential
// rating. A poor certificate whose potential is still F or G is treated as
// not improvable.
func improvementPotential(current, potential string) domain.ImprovementPotential {
	cur, okCur := epcBandRank(current)
	pot, okPot := epcBandRank(potential)
	if !okCur || !okPot {
		return domain.ImprovementNone
	}
	if cur >= epcRankF && pot >= epcRankF {
		return domain.ImprovementNotFeasible
	}
	switch {
	case cur-pot >= 2:
		return domain.ImprovementHigh
	case cur-pot == 1:
		return domain.ImprovementMedium
	default:
		return domain.ImprovementNone
	}
}

const epcRankF = 5

// epcBandRank maps A..G to 0..6.
func epcBandRank(band string) (int, bool) {
	if len(band) != 1 || band[0] < 'A' || band[0] > 'G' {
		return 0, false
	}
	return int(band[0] - 'A'), true
}

// Package intelligence turns an enriched property into human-actionable
// advice: compliance risks, acquisition opportunities, and the enrichment
// steps still worth running. Everything here is advisory; nothing executes.
package intelligence

import (
	"fmt"
	"time"

	"github.com/hmoscout/hmoscout/internal/analyzer"
	"github.com/hmoscout/hmoscout/internal/clock"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Risk struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type Opportunity struct {
	Code     string   `json:"code"`
	Priority Severity `json:"priority"`
	Message  string   `json:"message"`
}

// Step names a pending enrichment action the orchestrator could run next.
type Step string

const (
	StepGeocodeToUPRN       Step = "geocode-to-uprn"
	StepFetchEPC            Step = "fetch-epc"
	StepFetchOwnership      Step = "fetch-ownership"
	StepCheckPlanning       Step = "check-planning"
	StepFetchCompanyDetails Step = "fetch-company-details"
)

const (
	licenceRiskWindow       = 6 * 30 * 24 * time.Hour
	acquisitionWindowPeriod = 3 * 30 * 24 * time.Hour
)

type Service struct {
	clock    clock.Clock
	analyzer *analyzer.Analyzer
}

func New(clk clock.Clock, a *analyzer.Analyzer) *Service {
	return &Service{clock: clk, analyzer: a}
}

// Risks lists compliance and condition concerns for one property.
func (s *Service) Risks(p *propertydomain.Property) []Risk {
	now := s.clock.Now()
	var risks []Risk

	if p.LicenceExpiresAt != nil && p.LicenceExpiresAt.Before(now.Add(licenceRiskWindow)) {
		if p.LicenceExpiresAt.Before(now) {
			risks = append(risks, Risk{
				Code:     "licence_expired",
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("HMO licence expired on %s", p.LicenceExpiresAt.Format("2006-01-02")),
			})
		} else {
			risks = append(risks, Risk{
				Code:     "licence_expiring",
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("HMO licence expires on %s, renewal due within 6 months", p.LicenceExpiresAt.Format("2006-01-02")),
			})
		}
	}

	if p.EPCRating != nil && (*p.EPCRating == "F" || *p.EPCRating == "G") {
		risks = append(risks, Risk{
			Code:     "epc_below_minimum",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("EPC rating %s is below the lettable minimum of E", *p.EPCRating),
		})
	}

	if p.Article4 != nil && *p.Article4 {
		risks = append(risks, Risk{
			Code:     "article4_area",
			Severity: SeverityMedium,
			Message:  "Article 4 direction in force, HMO conversion needs planning permission",
		})
	}

	if p.Bedrooms >= 5 && p.LicenceID == nil {
		risks = append(risks, Risk{
			Code:     "unlicensed_mandatory_scope",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("%d bedrooms puts the property in mandatory licensing scope but no licence is on record", p.Bedrooms),
		})
	}

	return risks
}

// Opportunities lists acquisition angles for one property.
func (s *Service) Opportunities(p *propertydomain.Property) []Opportunity {
	now := s.clock.Now()
	var opps []Opportunity

	if p.LicenceExpiresAt != nil &&
		p.LicenceExpiresAt.After(now) &&
		p.LicenceExpiresAt.Before(now.Add(acquisitionWindowPeriod)) {
		opps = append(opps, Opportunity{
			Code:     "acquisition_window",
			Priority: SeverityHigh,
			Message:  fmt.Sprintf("Licence expires %s, owner may be motivated to sell before renewal", p.LicenceExpiresAt.Format("2006-01-02")),
		})
	}

	readyToGo := p.Classification != nil && *p.Classification == propertydomain.ClassificationReadyToGo
	conversionFlag := p.HMOCandidate != nil && *p.HMOCandidate
	if readyToGo || conversionFlag {
		opps = append(opps, Opportunity{
			Code:     "conversion_ready",
			Priority: SeverityHigh,
			Message:  "Property is advertised or assessed as ready for HMO use",
		})
	}

	result := s.analyzer.Analyze(p)
	if result.YieldBand == propertydomain.YieldBandHigh || result.YieldPercent > 8 {
		opps = append(opps, Opportunity{
			Code:     "high_yield",
			Priority: SeverityHigh,
			Message:  fmt.Sprintf("Estimated gross yield %.1f%% is in the top band", result.YieldPercent),
		})
	}

	return opps
}

// PlanEnrichment returns the ordered list of enrichment steps still worth
// running, judged purely from which identifier fields are known.
func (s *Service) PlanEnrichment(p *propertydomain.Property) []Step {
	var steps []Step

	if p.UPRN == nil && p.Postcode != "" {
		steps = append(steps, StepGeocodeToUPRN)
	}
	locatable := p.UPRN != nil || p.Postcode != ""
	if locatable && p.EPCRating == nil {
		steps = append(steps, StepFetchEPC)
	}
	if locatable && !p.HasOwnerIdentity() {
		steps = append(steps, StepFetchOwnership)
	}
	if locatable && !p.ComplianceVerified {
		steps = append(steps, StepCheckPlanning)
	}
	if p.OwnerCompanyNumber != nil && len(p.OwnerDirectors) == 0 {
		steps = append(steps, StepFetchCompanyDetails)
	}

	return steps
}

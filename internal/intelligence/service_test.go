package intelligence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hmoscout/hmoscout/internal/analyzer"
	"github.com/hmoscout/hmoscout/internal/clock"
	"github.com/hmoscout/hmoscout/internal/config"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
)

func newTestService(t *testing.T, now time.Time) *Service {
	t.Helper()
	holder, err := config.NewScoringConfigHolder()
	assert.NoError(t, err)
	return New(clock.NewFakeClock(now), analyzer.New(holder))
}

func riskCodes(risks []Risk) []string {
	codes := make([]string, 0, len(risks))
	for _, r := range risks {
		codes = append(codes, r.Code)
	}
	return codes
}

func oppCodes(opps []Opportunity) []string {
	codes := make([]string, 0, len(opps))
	for _, o := range opps {
		codes = append(codes, o.Code)
	}
	return codes
}

func TestRisks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, now)

	t.Run("expired licence", func(t *testing.T) {
		expired := now.Add(-24 * time.Hour)
		p := &propertydomain.Property{LicenceExpiresAt: &expired}
		risks := svc.Risks(p)
		assert.Contains(t, riskCodes(risks), "licence_expired")
		for _, r := range risks {
			if r.Code == "licence_expired" {
				assert.Equal(t, SeverityHigh, r.Severity)
			}
		}
	})

	t.Run("licence expiring within six months", func(t *testing.T) {
		expiring := now.Add(60 * 24 * time.Hour)
		p := &propertydomain.Property{LicenceExpiresAt: &expiring}
		risks := svc.Risks(p)
		codes := riskCodes(risks)
		assert.Contains(t, codes, "licence_expiring")
		assert.NotContains(t, codes, "licence_expired")
	})

	t.Run("licence far in the future is quiet", func(t *testing.T) {
		future := now.Add(365 * 24 * time.Hour)
		p := &propertydomain.Property{LicenceExpiresAt: &future}
		assert.Empty(t, svc.Risks(p))
	})

	t.Run("epc below lettable minimum", func(t *testing.T) {
		rating := "F"
		p := &propertydomain.Property{EPCRating: &rating}
		assert.Contains(t, riskCodes(svc.Risks(p)), "epc_below_minimum")
	})

	t.Run("article4", func(t *testing.T) {
		flag := true
		p := &propertydomain.Property{Article4: &flag}
		assert.Contains(t, riskCodes(svc.Risks(p)), "article4_area")
	})

	t.Run("mandatory scope without licence", func(t *testing.T) {
		p := &propertydomain.Property{Bedrooms: 5}
		assert.Contains(t, riskCodes(svc.Risks(p)), "unlicensed_mandatory_scope")

		licence := "HMO-123"
		p.LicenceID = &licence
		assert.NotContains(t, riskCodes(svc.Risks(p)), "unlicensed_mandatory_scope")
	})
}

func TestOpportunities(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, now)

	t.Run("acquisition window before renewal", func(t *testing.T) {
		expiring := now.Add(30 * 24 * time.Hour)
		p := &propertydomain.Property{LicenceExpiresAt: &expiring}
		assert.Contains(t, oppCodes(svc.Opportunities(p)), "acquisition_window")
	})

	t.Run("expired licence is not an acquisition window", func(t *testing.T) {
		expired := now.Add(-24 * time.Hour)
		p := &propertydomain.Property{LicenceExpiresAt: &expired}
		assert.NotContains(t, oppCodes(svc.Opportunities(p)), "acquisition_window")
	})

	t.Run("conversion ready from classification", func(t *testing.T) {
		cls := propertydomain.ClassificationReadyToGo
		p := &propertydomain.Property{Classification: &cls}
		assert.Contains(t, oppCodes(svc.Opportunities(p)), "conversion_ready")
	})

	t.Run("conversion ready from listing flag", func(t *testing.T) {
		flag := true
		p := &propertydomain.Property{HMOCandidate: &flag}
		assert.Contains(t, oppCodes(svc.Opportunities(p)), "conversion_ready")
	})

	t.Run("high yield", func(t *testing.T) {
		area := 130.0
		price := 300000.0
		p := &propertydomain.Property{
			City:                 "Manchester",
			Bedrooms:             6,
			Bathrooms:            2,
			GrossInternalAreaSqm: &area,
			PurchasePrice:        &price,
		}
		assert.Contains(t, oppCodes(svc.Opportunities(p)), "high_yield")
	})

	t.Run("thin yield is quiet", func(t *testing.T) {
		price := 900000.0
		p := &propertydomain.Property{
			City:          "Newcastle",
			Bedrooms:      3,
			Bathrooms:     1,
			PurchasePrice: &price,
		}
		assert.NotContains(t, oppCodes(svc.Opportunities(p)), "high_yield")
	})
}

func TestPlanEnrichment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, now)

	t.Run("fresh listing wants the full pipeline", func(t *testing.T) {
		p := &propertydomain.Property{Postcode: "M14 5TQ"}
		assert.Equal(t, []Step{
			StepGeocodeToUPRN,
			StepFetchEPC,
			StepFetchOwnership,
			StepCheckPlanning,
		}, svc.PlanEnrichment(p))
	})

	t.Run("known uprn skips geocoding", func(t *testing.T) {
		uprn := int64(100023336956)
		p := &propertydomain.Property{Postcode: "M14 5TQ", UPRN: &uprn}
		steps := svc.PlanEnrichment(p)
		assert.NotContains(t, steps, StepGeocodeToUPRN)
		assert.Contains(t, steps, StepFetchEPC)
	})

	t.Run("company owner without directors wants companies lookup", func(t *testing.T) {
		uprn := int64(100023336956)
		company := "01234567"
		rating := "C"
		name := "Acme Property Ltd"
		p := &propertydomain.Property{
			Postcode:           "M14 5TQ",
			UPRN:               &uprn,
			OwnerName:          &name,
			OwnerCompanyNumber: &company,
			EPCRating:          &rating,
			ComplianceVerified: true,
		}
		assert.Equal(t, []Step{StepFetchCompanyDetails}, svc.PlanEnrichment(p))
	})

	t.Run("fully resolved property has nothing left", func(t *testing.T) {
		uprn := int64(100023336956)
		rating := "C"
		name := "J Smith"
		p := &propertydomain.Property{
			Postcode:           "M14 5TQ",
			UPRN:               &uprn,
			EPCRating:          &rating,
			OwnerName:          &name,
			ComplianceVerified: true,
		}
		assert.Empty(t, svc.PlanEnrichment(p))
	})
}

package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ListingType string

const (
	ListingTypeRent     ListingType = "rent"
	ListingTypePurchase ListingType = "purchase"
)

// Classification is the suitability tier for HMO conversion. It is recomputed
// from scratch on every scoring pass, never carried forward.
type Classification string

const (
	ClassificationReadyToGo   Classification = "ready_to_go"
	ClassificationValueAdd    Classification = "value_add"
	ClassificationNotSuitable Classification = "not_suitable"
)

// ParseClassification validates a classification supplied by an API caller.
func ParseClassification(value string) (Classification, bool) {
	switch Classification(strings.ToLower(strings.TrimSpace(value))) {
	case ClassificationReadyToGo:
		return ClassificationReadyToGo, true
	case ClassificationValueAdd:
		return ClassificationValueAdd, true
	case ClassificationNotSuitable:
		return ClassificationNotSuitable, true
	default:
		return "", false
	}
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

type YieldBand string

const (
	YieldBandHigh   YieldBand = "high"
	YieldBandMedium YieldBand = "medium"
	YieldBandLow    YieldBand = "low"
)

type AreaBand string

const (
	AreaBandUnder90 AreaBand = "under_90"
	AreaBand90To120 AreaBand = "90_120"
	AreaBand120Plus AreaBand = "120_plus"
)

// ImprovementPotential is the assessed headroom on an EPC certificate.
// "none" means the rating is already optimal; "not_feasible" means an assessor
// concluded the property cannot reasonably be improved.
type ImprovementPotential string

const (
	ImprovementNone        ImprovementPotential = "none"
	ImprovementMedium      ImprovementPotential = "medium"
	ImprovementHigh        ImprovementPotential = "high"
	ImprovementNotFeasible ImprovementPotential = "not_feasible"
)

// OwnerDetails carries title/company ownership identity and direct contact
// channels. All fields optional; nil means unknown, never "absent for sure".
type OwnerDetails struct {
	Name                  *string
	CompanyNumber         *string
	TitleNumber           *string
	Directors             []string
	Email                 *string
	Phone                 *string
	CorrespondenceAddress *string
}

type EPCDetails struct {
	Rating               *string
	ImprovementPotential *ImprovementPotential
	CertificateRef       *string
	ExpiresAt            *time.Time
}

type LicensingDetails struct {
	LicenceID   *string
	Holder      *string
	ExpiresAt   *time.Time
	LicensedHMO *bool
}

// ComplianceDetails carries the outcome of a licensing determination after
// the complexity rules (including the national mandatory-licensing override)
// have been applied.
type ComplianceDetails struct {
	RequiresMandatoryLicensing *bool
	Complexity                 *Complexity
}

type PlanningDetails struct {
	Article4         *bool
	ConservationArea *bool
	ListedGrade      *string
	// Verified reports whether planning/licensing status came back from a
	// registry lookup, as opposed to defaulting after a failed or skipped
	// call. Empty-and-unverified must not be read as "clean".
	Verified bool
}

// Listing is the mutable draft a source or enrichment adapter produces. The
// natural key is (Postcode, ExternalID); everything else is sparse and merged
// with non-nil-wins semantics.
type Listing struct {
	ExternalID string
	Source     string
	Postcode   string
	Address    string
	City       string

	UPRN                 *int64
	Bedrooms             int
	Bathrooms            int
	GrossInternalAreaSqm *float64

	ListingType   ListingType
	PricePCM      *float64
	PurchasePrice *float64
	// HMOCandidate is set by sources that advertise explicit HMO conversion
	// potential in the listing copy.
	HMOCandidate *bool

	Owner      OwnerDetails
	EPC        EPCDetails
	Licensing  LicensingDetails
	Planning   PlanningDetails
	Compliance ComplianceDetails

	Raw map[string]any
}

// NaturalKey returns the canonical dedup key for the listing.
func (l Listing) NaturalKey() string {
	return NaturalKey(l.Postcode, l.ExternalID)
}

func NaturalKey(postcode, externalID string) string {
	return normalizePostcode(postcode) + "|" + strings.TrimSpace(externalID)
}

func normalizePostcode(postcode string) string {
	return strings.ToUpper(strings.Join(strings.Fields(postcode), " "))
}

// Merge copies every known field of patch onto dst without ever clearing a
// field dst already knows. Unknown is nil (or zero for counts), so a set value
// survives any number of sparse patches.
func Merge(dst *Listing, patch Listing) {
	if dst == nil {
		return
	}
	if patch.ExternalID != "" {
		dst.ExternalID = patch.ExternalID
	}
	if patch.Source != "" {
		dst.Source = patch.Source
	}
	if patch.Postcode != "" {
		dst.Postcode = normalizePostcode(patch.Postcode)
	}
	if patch.Address != "" {
		dst.Address = patch.Address
	}
	if patch.City != "" {
		dst.City = patch.City
	}
	if patch.UPRN != nil {
		dst.UPRN = patch.UPRN
	}
	if patch.Bedrooms > 0 {
		dst.Bedrooms = patch.Bedrooms
	}
	if patch.Bathrooms > 0 {
		dst.Bathrooms = patch.Bathrooms
	}
	if patch.GrossInternalAreaSqm != nil {
		dst.GrossInternalAreaSqm = patch.GrossInternalAreaSqm
	}
	if patch.ListingType != "" {
		dst.ListingType = patch.ListingType
	}
	if patch.PricePCM != nil {
		dst.PricePCM = patch.PricePCM
	}
	if patch.PurchasePrice != nil {
		dst.PurchasePrice = patch.PurchasePrice
	}
	if patch.HMOCandidate != nil {
		dst.HMOCandidate = patch.HMOCandidate
	}

	if patch.Owner.Name != nil {
		dst.Owner.Name = patch.Owner.Name
	}
	if patch.Owner.CompanyNumber != nil {
		dst.Owner.CompanyNumber = patch.Owner.CompanyNumber
	}
	if patch.Owner.TitleNumber != nil {
		dst.Owner.TitleNumber = patch.Owner.TitleNumber
	}
	if len(patch.Owner.Directors) > 0 {
		dst.Owner.Directors = patch.Owner.Directors
	}
	if patch.Owner.Email != nil {
		dst.Owner.Email = patch.Owner.Email
	}
	if patch.Owner.Phone != nil {
		dst.Owner.Phone = patch.Owner.Phone
	}
	if patch.Owner.CorrespondenceAddress != nil {
		dst.Owner.CorrespondenceAddress = patch.Owner.CorrespondenceAddress
	}

	if patch.EPC.Rating != nil {
		dst.EPC.Rating = patch.EPC.Rating
	}
	if patch.EPC.ImprovementPotential != nil {
		dst.EPC.ImprovementPotential = patch.EPC.ImprovementPotential
	}
	if patch.EPC.CertificateRef != nil {
		dst.EPC.CertificateRef = patch.EPC.CertificateRef
	}
	if patch.EPC.ExpiresAt != nil {
		dst.EPC.ExpiresAt = patch.EPC.ExpiresAt
	}

	if patch.Licensing.LicenceID != nil {
		dst.Licensing.LicenceID = patch.Licensing.LicenceID
	}
	if patch.Licensing.Holder != nil {
		dst.Licensing.Holder = patch.Licensing.Holder
	}
	if patch.Licensing.ExpiresAt != nil {
		dst.Licensing.ExpiresAt = patch.Licensing.ExpiresAt
	}
	if patch.Licensing.LicensedHMO != nil {
		dst.Licensing.LicensedHMO = patch.Licensing.LicensedHMO
	}

	if patch.Planning.Article4 != nil {
		dst.Planning.Article4 = patch.Planning.Article4
	}
	if patch.Planning.ConservationArea != nil {
		dst.Planning.ConservationArea = patch.Planning.ConservationArea
	}
	if patch.Planning.ListedGrade != nil {
		dst.Planning.ListedGrade = patch.Planning.ListedGrade
	}
	if patch.Planning.Verified {
		dst.Planning.Verified = true
	}

	if patch.Compliance.RequiresMandatoryLicensing != nil {
		dst.Compliance.RequiresMandatoryLicensing = patch.Compliance.RequiresMandatoryLicensing
	}
	if patch.Compliance.Complexity != nil {
		dst.Compliance.Complexity = patch.Compliance.Complexity
	}

	if len(patch.Raw) > 0 {
		if dst.Raw == nil {
			dst.Raw = make(map[string]any, len(patch.Raw))
		}
		for k, v := range patch.Raw {
			dst.Raw[k] = v
		}
	}
}

// Property is the persisted, enriched record. One row per natural key, soft
// staled when unseen for the retention window, never deleted.
type Property struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`

	Postcode   string `gorm:"not null;uniqueIndex:idx_properties_natural_key,priority:1" json:"postcode"`
	ExternalID string `gorm:"not null;uniqueIndex:idx_properties_natural_key,priority:2" json:"external_id"`
	Source     string `gorm:"not null" json:"source"`
	Address    string `json:"address"`
	City       string `gorm:"index" json:"city,omitempty"`

	UPRN                 *int64   `json:"uprn,omitempty"`
	Bedrooms             int      `json:"bedrooms"`
	Bathrooms            int      `json:"bathrooms"`
	GrossInternalAreaSqm *float64 `json:"gross_internal_area_sqm,omitempty"`

	ListingType   ListingType `json:"listing_type"`
	PricePCM      *float64    `json:"price_pcm,omitempty"`
	PurchasePrice *float64    `json:"purchase_price,omitempty"`
	HMOCandidate  *bool       `json:"hmo_candidate,omitempty"`

	OwnerName          *string                     `json:"owner_name,omitempty"`
	OwnerCompanyNumber *string                     `json:"owner_company_number,omitempty"`
	TitleNumber        *string                     `json:"title_number,omitempty"`
	OwnerDirectors     datatypes.JSONSlice[string] `json:"owner_directors,omitempty"`
	OwnerEmail         *string                     `json:"owner_email,omitempty"`
	OwnerPhone         *string                     `json:"owner_phone,omitempty"`
	OwnerAddress       *string                     `json:"owner_address,omitempty"`

	EPCRating         *string               `json:"epc_rating,omitempty"`
	EPCImprovement    *ImprovementPotential `json:"epc_improvement,omitempty"`
	EPCCertificateRef *string               `json:"epc_certificate_ref,omitempty"`
	EPCExpiresAt      *time.Time            `json:"epc_expires_at,omitempty"`

	LicenceID        *string    `json:"licence_id,omitempty"`
	LicenceHolder    *string    `json:"licence_holder,omitempty"`
	LicenceExpiresAt *time.Time `json:"licence_expires_at,omitempty"`
	LicensedHMO      *bool      `json:"licensed_hmo,omitempty"`

	Article4           *bool   `json:"article4,omitempty"`
	ConservationArea   *bool   `json:"conservation_area,omitempty"`
	ListedGrade        *string `json:"listed_grade,omitempty"`
	ComplianceVerified bool    `json:"compliance_verified"`

	RequiresMandatoryLicensing bool        `json:"requires_mandatory_licensing"`
	ComplianceComplexity       *Complexity `json:"compliance_complexity,omitempty"`

	DealScore        int                         `gorm:"index" json:"deal_score"`
	ScoreBreakdown   datatypes.JSON              `json:"score_breakdown,omitempty"`
	Classification   *Classification             `gorm:"index" json:"classification,omitempty"`
	IsPotentialHMO   *bool                       `json:"is_potential_hmo,omitempty"`
	ExclusionReasons datatypes.JSONSlice[string] `json:"exclusion_reasons,omitempty"`

	RawPayload datatypes.JSONMap `gorm:"type:jsonb" json:"raw_payload,omitempty"`

	IsStale     bool       `gorm:"not null;default:false;index" json:"is_stale"`
	StaleAt     *time.Time `json:"stale_at,omitempty"`
	FirstSeenAt time.Time  `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time  `gorm:"not null;index" json:"last_seen_at"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Property) TableName() string {
	return "properties"
}

// NewProperty creates a fresh row from a phase-1 listing.
func NewProperty(id snowflake.ID, l Listing, now time.Time) *Property {
	p := &Property{
		ID:          id,
		Postcode:    normalizePostcode(l.Postcode),
		ExternalID:  strings.TrimSpace(l.ExternalID),
		Source:      l.Source,
		FirstSeenAt: now,
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Absorb(l, now)
	return p
}

// Absorb merges a listing observation into the row: known fields win over
// unknown, the row is re-marked as seen, and a stale row is revived. It never
// clears a populated field.
func (p *Property) Absorb(l Listing, now time.Time) {
	p.absorbFields(l)
	p.LastSeenAt = now
	p.UpdatedAt = now
	if p.IsStale {
		p.IsStale = false
		p.StaleAt = nil
	}
}

// AbsorbEnrichment merges adapter output without treating it as a fresh
// upstream observation: LastSeenAt and the stale flags are untouched, so a row
// that stops appearing at its source still ages into staleness even while it
// sits in the enrichment backlog.
func (p *Property) AbsorbEnrichment(l Listing, now time.Time) {
	p.absorbFields(l)
	p.UpdatedAt = now
}

func (p *Property) absorbFields(l Listing) {
	if l.Source != "" {
		p.Source = l.Source
	}
	if l.Address != "" {
		p.Address = l.Address
	}
	if l.City != "" {
		p.City = l.City
	}
	if l.UPRN != nil {
		p.UPRN = l.UPRN
	}
	if l.Bedrooms > 0 {
		p.Bedrooms = l.Bedrooms
	}
	if l.Bathrooms > 0 {
		p.Bathrooms = l.Bathrooms
	}
	if l.GrossInternalAreaSqm != nil {
		p.GrossInternalAreaSqm = l.GrossInternalAreaSqm
	}
	if l.ListingType != "" {
		p.ListingType = l.ListingType
	}
	if l.PricePCM != nil {
		p.PricePCM = l.PricePCM
	}
	if l.PurchasePrice != nil {
		p.PurchasePrice = l.PurchasePrice
	}
	if l.HMOCandidate != nil {
		p.HMOCandidate = l.HMOCandidate
	}

	if l.Owner.Name != nil {
		p.OwnerName = l.Owner.Name
	}
	if l.Owner.CompanyNumber != nil {
		p.OwnerCompanyNumber = l.Owner.CompanyNumber
	}
	if l.Owner.TitleNumber != nil {
		p.TitleNumber = l.Owner.TitleNumber
	}
	if len(l.Owner.Directors) > 0 {
		p.OwnerDirectors = datatypes.NewJSONSlice(l.Owner.Directors)
	}
	if l.Owner.Email != nil {
		p.OwnerEmail = l.Owner.Email
	}
	if l.Owner.Phone != nil {
		p.OwnerPhone = l.Owner.Phone
	}
	if l.Owner.CorrespondenceAddress != nil {
		p.OwnerAddress = l.Owner.CorrespondenceAddress
	}

	if l.EPC.Rating != nil {
		p.EPCRating = l.EPC.Rating
	}
	if l.EPC.ImprovementPotential != nil {
		p.EPCImprovement = l.EPC.ImprovementPotential
	}
	if l.EPC.CertificateRef != nil {
		p.EPCCertificateRef = l.EPC.CertificateRef
	}
	if l.EPC.ExpiresAt != nil {
		p.EPCExpiresAt = l.EPC.ExpiresAt
	}

	if l.Licensing.LicenceID != nil {
		p.LicenceID = l.Licensing.LicenceID
	}
	if l.Licensing.Holder != nil {
		p.LicenceHolder = l.Licensing.Holder
	}
	if l.Licensing.ExpiresAt != nil {
		p.LicenceExpiresAt = l.Licensing.ExpiresAt
	}
	if l.Licensing.LicensedHMO != nil {
		p.LicensedHMO = l.Licensing.LicensedHMO
	}

	if l.Planning.Article4 != nil {
		p.Article4 = l.Planning.Article4
	}
	if l.Planning.ConservationArea != nil {
		p.ConservationArea = l.Planning.ConservationArea
	}
	if l.Planning.ListedGrade != nil {
		p.ListedGrade = l.Planning.ListedGrade
	}
	if l.Planning.Verified {
		p.ComplianceVerified = true
	}

	if l.Compliance.RequiresMandatoryLicensing != nil {
		p.RequiresMandatoryLicensing = *l.Compliance.RequiresMandatoryLicensing
	}
	if l.Compliance.Complexity != nil {
		p.ComplianceComplexity = l.Compliance.Complexity
	}

	if len(l.Raw) > 0 {
		if p.RawPayload == nil {
			p.RawPayload = datatypes.JSONMap{}
		}
		for k, v := range l.Raw {
			p.RawPayload[k] = v
		}
	}
}

// Draft converts the persisted row back into a listing draft for the
// enrichment chain to accumulate onto.
func (p *Property) Draft() Listing {
	l := Listing{
		ExternalID:           p.ExternalID,
		Source:               p.Source,
		Postcode:             p.Postcode,
		Address:              p.Address,
		City:                 p.City,
		UPRN:                 p.UPRN,
		Bedrooms:             p.Bedrooms,
		Bathrooms:            p.Bathrooms,
		GrossInternalAreaSqm: p.GrossInternalAreaSqm,
		ListingType:          p.ListingType,
		PricePCM:             p.PricePCM,
		PurchasePrice:        p.PurchasePrice,
		HMOCandidate:         p.HMOCandidate,
		Owner: OwnerDetails{
			Name:                  p.OwnerName,
			CompanyNumber:         p.OwnerCompanyNumber,
			TitleNumber:           p.TitleNumber,
			Directors:             p.OwnerDirectors,
			Email:                 p.OwnerEmail,
			Phone:                 p.OwnerPhone,
			CorrespondenceAddress: p.OwnerAddress,
		},
		EPC: EPCDetails{
			Rating:               p.EPCRating,
			ImprovementPotential: p.EPCImprovement,
			CertificateRef:       p.EPCCertificateRef,
			ExpiresAt:            p.EPCExpiresAt,
		},
		Licensing: LicensingDetails{
			LicenceID:   p.LicenceID,
			Holder:      p.LicenceHolder,
			ExpiresAt:   p.LicenceExpiresAt,
			LicensedHMO: p.LicensedHMO,
		},
		Planning: PlanningDetails{
			Article4:         p.Article4,
			ConservationArea: p.ConservationArea,
			ListedGrade:      p.ListedGrade,
			Verified:         p.ComplianceVerified,
		},
		Compliance: ComplianceDetails{
			Complexity: p.ComplianceComplexity,
		},
	}
	if p.RequiresMandatoryLicensing {
		required := true
		l.Compliance.RequiresMandatoryLicensing = &required
	}
	return l
}

// HasOwnerIdentity reports whether any title-owner identity field is known.
func (p *Property) HasOwnerIdentity() bool {
	return p.OwnerName != nil || p.OwnerCompanyNumber != nil || p.TitleNumber != nil
}

// HasContactChannel reports whether a direct contact channel is known.
func (p *Property) HasContactChannel() bool {
	return p.OwnerEmail != nil || p.OwnerPhone != nil || p.OwnerAddress != nil
}

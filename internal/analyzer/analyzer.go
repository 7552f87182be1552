// Package analyzer holds the pure HMO suitability scoring engine. It performs
// no I/O: every output is a deterministic function of the fields currently
// known on a property and the scoring configuration snapshot, so a score can
// always be reproduced from the persisted record.
package analyzer

import (
	"math"

	"github.com/hmoscout/hmoscout/internal/config"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
)

// Exclusion reason codes. A non-empty reason list forces classification to
// not_suitable; the score is still computed for diagnostics.
const (
	ExclusionArticle4              = "article4_area"
	ExclusionEPCNotImprovable      = "epc_improvement_not_feasible"
	ExclusionListedBuilding        = "listed_building"
	ExclusionBelowSpaceStandards   = "below_space_standards"
	ExclusionInsufficientOccupancy = "insufficient_occupancy"
)

// Breakdown is the fixed-shape score decomposition. Total is always the exact
// sum of the seven contributions, clamped to [0, 100].
type Breakdown struct {
	FloorArea     int `json:"floor_area"`
	EPC           int `json:"epc"`
	Licensing     int `json:"licensing"`
	LettableRooms int `json:"lettable_rooms"`
	Compliance    int `json:"compliance"`
	Yield         int `json:"yield"`
	ContactData   int `json:"contact_data"`
	Total         int `json:"total"`
}

// Result carries the classification plus every derived quantity, so callers
// can persist or explain the outcome without re-deriving it.
type Result struct {
	Breakdown        Breakdown
	Score            int
	Classification   propertydomain.Classification
	IsPotentialHMO   bool
	ExclusionReasons []string

	EstimatedAreaSqm    float64
	AreaBand            propertydomain.AreaBand
	LettableRooms       int
	RentPerRoomPCM      float64
	EstimatedAnnualRent float64
	YieldPercent        float64
	YieldBand           propertydomain.YieldBand

	RequiresMandatoryLicensing bool
}

type Analyzer struct {
	scoring *config.ScoringConfigHolder
}

func New(scoring *config.ScoringConfigHolder) *Analyzer {
	return &Analyzer{scoring: scoring}
}

// Analyze scores a property against the current configuration snapshot.
func (a *Analyzer) Analyze(p *propertydomain.Property) Result {
	return Analyze(p, a.scoring.Get())
}

// Analyze is the pure core: same property and config in, same result out.
func Analyze(p *propertydomain.Property, cfg config.ScoringConfig) Result {
	std := cfg.SpaceStandards

	res := Result{}
	res.EstimatedAreaSqm = estimateArea(p, std)
	res.AreaBand = areaBand(res.EstimatedAreaSqm)
	res.LettableRooms = lettableRooms(p.Bedrooms, res.EstimatedAreaSqm, std)
	res.RentPerRoomPCM = cfg.Rents.PerRoom(p.City)
	// Rent is projected from the advertised bedroom count; the boosted room
	// count feeds occupancy and scoring only.
	res.EstimatedAnnualRent = res.RentPerRoomPCM * float64(p.Bedrooms) * 12
	res.YieldPercent = yieldPercent(res.EstimatedAnnualRent, p.PurchasePrice)
	res.YieldBand = yieldBand(res.YieldPercent, cfg.Classification)
	res.RequiresMandatoryLicensing = p.Bedrooms >= std.MandatoryOccupants ||
		res.LettableRooms >= std.MandatoryOccupants

	res.ExclusionReasons = exclusions(p, res, std)

	res.Breakdown = breakdown(p, res, cfg.Breakpoints)
	res.Score = res.Breakdown.Total

	res.Classification = classify(p, res, cfg.Classification)
	res.IsPotentialHMO = res.Classification != propertydomain.ClassificationNotSuitable
	return res
}

func estimateArea(p *propertydomain.Property, std config.SpaceStandards) float64 {
	if p.GrossInternalAreaSqm != nil && *p.GrossInternalAreaSqm > 0 {
		return *p.GrossInternalAreaSqm
	}
	return float64(p.Bedrooms)*std.BedroomSqm +
		float64(p.Bathrooms)*std.BathroomSqm +
		std.CommonAreaSqm
}

func areaBand(area float64) propertydomain.AreaBand {
	switch {
	case area < 90:
		return propertydomain.AreaBandUnder90
	case area <= 120:
		return propertydomain.AreaBand90To120
	default:
		return propertydomain.AreaBand120Plus
	}
}

func lettableRooms(bedrooms int, area float64, std config.SpaceStandards) int {
	rooms := bedrooms
	if area >= std.BoostAreaSqm && std.SqmPerLettableRoom > 0 {
		boosted := int(math.Floor(area / std.SqmPerLettableRoom))
		if boosted > std.MaxLettableRooms {
			boosted = std.MaxLettableRooms
		}
		if boosted > rooms {
			rooms = boosted
		}
	}
	return rooms
}

func yieldPercent(annualRent float64, purchasePrice *float64) float64 {
	if purchasePrice == nil || *purchasePrice <= 0 {
		return 0
	}
	return annualRent / *purchasePrice * 100
}

func yieldBand(pct float64, cls config.Classification) propertydomain.YieldBand {
	switch {
	case pct >= cls.YieldHighPercent:
		return propertydomain.YieldBandHigh
	case pct >= cls.YieldMediumPercent:
		return propertydomain.YieldBandMedium
	default:
		return propertydomain.YieldBandLow
	}
}

func exclusions(p *propertydomain.Property, res Result, std config.SpaceStandards) []string {
	var reasons []string

	if p.Article4 != nil && *p.Article4 {
		reasons = append(reasons, ExclusionArticle4)
	}
	if p.EPCRating != nil && (*p.EPCRating == "F" || *p.EPCRating == "G") &&
		p.EPCImprovement != nil && *p.EPCImprovement == propertydomain.ImprovementNotFeasible {
		reasons = append(reasons, ExclusionEPCNotImprovable)
	}
	if p.ListedGrade != nil && *p.ListedGrade != "" {
		reasons = append(reasons, ExclusionListedBuilding)
	}
	if res.EstimatedAreaSqm < std.MinAreaSqm && res.EstimatedAreaSqm < std.AbsoluteFloorSqm {
		reasons = append(reasons, ExclusionBelowSpaceStandards)
	}
	if res.LettableRooms < std.MinOccupants {
		reasons = append(reasons, ExclusionInsufficientOccupancy)
	}

	return reasons
}

func breakdown(p *propertydomain.Property, res Result, bp config.ScoreBreakpoints) Breakdown {
	b := Breakdown{}

	for _, row := range bp.FloorArea {
		if res.EstimatedAreaSqm >= row.MinSqm {
			b.FloorArea = row.Points
			break
		}
	}

	b.EPC = bp.EPCUnknown
	if p.EPCRating != nil {
		if pts, ok := bp.EPC[*p.EPCRating]; ok {
			b.EPC = pts
		}
	}

	if res.RequiresMandatoryLicensing {
		b.Licensing = bp.LicensingHit
	} else {
		b.Licensing = bp.LicensingMiss
	}

	for _, row := range bp.LettableRooms {
		if res.LettableRooms >= row.MinRooms {
			b.LettableRooms = row.Points
			break
		}
	}

	compliance := bp.ComplianceBase
	if p.ConservationArea != nil && *p.ConservationArea {
		compliance -= bp.ConservationPenalty
	}
	if p.Article4 != nil && *p.Article4 {
		// Normally already excluded; still reflected here so diagnostic
		// scores for excluded properties stay honest.
		compliance -= bp.Article4Penalty
	}
	if p.EPCImprovement != nil {
		switch *p.EPCImprovement {
		case propertydomain.ImprovementHigh:
			compliance -= bp.EPCImproveHighPenalty
		case propertydomain.ImprovementMedium:
			compliance -= bp.EPCImproveMediumPenalty
		}
	}
	if compliance < 0 {
		compliance = 0
	}
	b.Compliance = compliance

	for _, row := range bp.Yield {
		if res.YieldPercent >= row.MinPercent {
			b.Yield = row.Points
			break
		}
	}

	contact := 0
	if p.HasOwnerIdentity() {
		contact += bp.OwnerIdentityPoints
	}
	if (p.LicensedHMO != nil && *p.LicensedHMO) || p.LicenceID != nil {
		contact += bp.LicensedSignalPoints
	}
	if p.HasContactChannel() {
		contact += bp.ContactChannelPoints
	}
	b.ContactData = contact

	total := b.FloorArea + b.EPC + b.Licensing + b.LettableRooms + b.Compliance + b.Yield + b.ContactData
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	b.Total = total
	return b
}

func classify(p *propertydomain.Property, res Result, cls config.Classification) propertydomain.Classification {
	if len(res.ExclusionReasons) > 0 {
		return propertydomain.ClassificationNotSuitable
	}

	// Owner identity alone is not enough for ready_to_go: the downstream
	// workflow needs a party it can actually reach, so a direct contact
	// channel or a named licence holder is required as well.
	contactable := p.HasContactChannel() || p.LicenceHolder != nil
	if res.Score >= cls.ReadyToGoMinScore &&
		epcAtLeastD(p.EPCRating) &&
		!(p.ConservationArea != nil && *p.ConservationArea) &&
		p.HasOwnerIdentity() && contactable {
		return propertydomain.ClassificationReadyToGo
	}

	if res.Score >= cls.ValueAddMinScore {
		return propertydomain.ClassificationValueAdd
	}

	return propertydomain.ClassificationNotSuitable
}

// epcAtLeastD gates ready_to_go on an efficient certificate: A through D.
func epcAtLeastD(rating *string) bool {
	if rating == nil {
		return false
	}
	switch *rating {
	case "A", "B", "C", "D":
		return true
	default:
		return false
	}
}

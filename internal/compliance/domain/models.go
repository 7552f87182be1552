package domain

import (
	"context"
	"errors"
	"time"

	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
)

type SchemeType string

const (
	SchemeMandatory  SchemeType = "mandatory"
	SchemeAdditional SchemeType = "additional"
	SchemeSelective  SchemeType = "selective"
)

// Scheme is one licensing scheme a council operates for an area.
type Scheme struct {
	Type               SchemeType
	OccupantThreshold  *int
	HouseholdThreshold *int
	ValidFrom          time.Time
	ValidTo            *time.Time
}

// Determination is the normalized result of a licensing/planning lookup.
// Verified distinguishes "registry confirmed no schemes" from "lookup failed
// or was skipped"; both carry empty schemes and article4=false otherwise.
type Determination struct {
	Schemes  []Scheme
	Article4 bool
	Advice   string
	Verified bool
}

func (d Determination) Has(t SchemeType) bool {
	for _, s := range d.Schemes {
		if s.Type == t {
			return true
		}
	}
	return false
}

// Assessment is the derived compliance view for one property.
type Assessment struct {
	Complexity                 propertydomain.Complexity
	RequiresMandatoryLicensing bool
}

// Assess derives the complexity tier from a determination and the property's
// bedroom count. National law requires mandatory licensing for 5+ occupants
// from 2+ households regardless of whether the registry has a scheme on file,
// so bedrooms >= mandatoryOccupants forces the mandatory flag even when the
// response reports no mandatory scheme.
func Assess(d Determination, bedrooms, mandatoryOccupants int) Assessment {
	hasMandatory := d.Has(SchemeMandatory)
	if mandatoryOccupants > 0 && bedrooms >= mandatoryOccupants {
		hasMandatory = true
	}
	hasAdditional := d.Has(SchemeAdditional)
	hasSelective := d.Has(SchemeSelective)

	schemeCount := len(d.Schemes)
	if hasMandatory && !d.Has(SchemeMandatory) {
		schemeCount++
	}

	var complexity propertydomain.Complexity
	switch {
	case (d.Article4 && schemeCount >= 2) || (hasMandatory && (hasAdditional || hasSelective)):
		complexity = propertydomain.ComplexityHigh
	case hasMandatory || d.Article4 || hasAdditional || hasSelective:
		complexity = propertydomain.ComplexityMedium
	default:
		complexity = propertydomain.ComplexityLow
	}

	return Assessment{
		Complexity:                 complexity,
		RequiresMandatoryLicensing: hasMandatory,
	}
}

// Request identifies the property to resolve. UPRN is authoritative when
// present; address is the fallback.
type Request struct {
	Postcode string
	UPRN     *int64
	Address  string
}

// Client resolves licensing-scheme applicability and Article-4 status.
type Client interface {
	Determine(ctx context.Context, req Request) (Determination, error)
}

var ErrMissingCredentials = errors.New("licensing_credentials_missing")

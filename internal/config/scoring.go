package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ScoringConfig centralizes every heuristic constant used by the analyzer so
// tests assert against named values instead of magic numbers, and operators
// can tune rent assumptions without a redeploy.
type ScoringConfig struct {
	Rents          RentTable        `mapstructure:"rents"`
	SpaceStandards SpaceStandards   `mapstructure:"spaceStandards"`
	Breakpoints    ScoreBreakpoints `mapstructure:"breakpoints"`
	Classification Classification   `mapstructure:"classification"`
}

// RentTable maps a city to an assumed achievable rent per lettable room.
type RentTable struct {
	Regions        []RegionalRent `mapstructure:"regions"`
	DefaultPerRoom float64        `mapstructure:"defaultPerRoom"`
}

type RegionalRent struct {
	City       string  `mapstructure:"city"`
	PerRoomPCM float64 `mapstructure:"perRoomPcm"`
}

// PerRoom resolves a monthly rent-per-room for a city: exact match first, then
// case-insensitive substring, then the table default.
func (t RentTable) PerRoom(city string) float64 {
	for _, r := range t.Regions {
		if r.City == city {
			return r.PerRoomPCM
		}
	}
	needle := strings.ToLower(strings.TrimSpace(city))
	if needle != "" {
		for _, r := range t.Regions {
			if strings.Contains(strings.ToLower(r.City), needle) || strings.Contains(needle, strings.ToLower(r.City)) {
				return r.PerRoomPCM
			}
		}
	}
	return t.DefaultPerRoom
}

// SpaceStandards holds floor-area minimums and the area-estimation model.
type SpaceStandards struct {
	MinAreaSqm         float64 `mapstructure:"minAreaSqm"`       // preferred minimum GIA
	AbsoluteFloorSqm   float64 `mapstructure:"absoluteFloorSqm"` // hard exclusion floor
	BedroomSqm         float64 `mapstructure:"bedroomSqm"`       // per-bedroom allowance when GIA unknown
	BathroomSqm        float64 `mapstructure:"bathroomSqm"`      // per-bathroom allowance when GIA unknown
	CommonAreaSqm      float64 `mapstructure:"commonAreaSqm"`    // fixed common-area allowance
	BoostAreaSqm       float64 `mapstructure:"boostAreaSqm"`     // area above which lettable rooms may exceed bedrooms
	SqmPerLettableRoom float64 `mapstructure:"sqmPerLettableRoom"`
	MaxLettableRooms   int     `mapstructure:"maxLettableRooms"`
	MinOccupants       int     `mapstructure:"minOccupants"`
	MandatoryOccupants int     `mapstructure:"mandatoryOccupants"` // national mandatory-licensing threshold
}

// ScoreBreakpoints holds the discretized sub-score tables. Each table is
// evaluated top-down, first threshold met wins.
type ScoreBreakpoints struct {
	FloorArea     []AreaPoints   `mapstructure:"floorArea"`
	EPC           map[string]int `mapstructure:"epc"`
	EPCUnknown    int            `mapstructure:"epcUnknown"`
	LicensingHit  int            `mapstructure:"licensingHit"`  // mandatory licensing applies
	LicensingMiss int            `mapstructure:"licensingMiss"` // below mandatory threshold
	LettableRooms []RoomPoints   `mapstructure:"lettableRooms"`
	Yield         []YieldPoints  `mapstructure:"yield"`

	ComplianceBase          int `mapstructure:"complianceBase"`
	ConservationPenalty     int `mapstructure:"conservationPenalty"`
	Article4Penalty         int `mapstructure:"article4Penalty"`
	EPCImproveHighPenalty   int `mapstructure:"epcImproveHighPenalty"`
	EPCImproveMediumPenalty int `mapstructure:"epcImproveMediumPenalty"`

	OwnerIdentityPoints  int `mapstructure:"ownerIdentityPoints"`
	LicensedSignalPoints int `mapstructure:"licensedSignalPoints"`
	ContactChannelPoints int `mapstructure:"contactChannelPoints"`
}

type AreaPoints struct {
	MinSqm float64 `mapstructure:"minSqm"`
	Points int     `mapstructure:"points"`
}

type RoomPoints struct {
	MinRooms int `mapstructure:"minRooms"`
	Points   int `mapstructure:"points"`
}

type YieldPoints struct {
	MinPercent float64 `mapstructure:"minPercent"`
	Points     int     `mapstructure:"points"`
}

// Classification holds the score gates for the suitability tiers.
type Classification struct {
	ReadyToGoMinScore  int     `mapstructure:"readyToGoMinScore"`
	ValueAddMinScore   int     `mapstructure:"valueAddMinScore"`
	YieldHighPercent   float64 `mapstructure:"yieldHighPercent"`
	YieldMediumPercent float64 `mapstructure:"yieldMediumPercent"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Rents: RentTable{
			Regions: []RegionalRent{
				{City: "London", PerRoomPCM: 750},
				{City: "Manchester", PerRoomPCM: 550},
				{City: "Birmingham", PerRoomPCM: 500},
				{City: "Bristol", PerRoomPCM: 600},
				{City: "Leeds", PerRoomPCM: 480},
				{City: "Liverpool", PerRoomPCM: 450},
				{City: "Sheffield", PerRoomPCM: 430},
				{City: "Nottingham", PerRoomPCM: 460},
				{City: "Newcastle", PerRoomPCM: 440},
			},
			DefaultPerRoom: 450,
		},
		SpaceStandards: SpaceStandards{
			MinAreaSqm:         90,
			AbsoluteFloorSqm:   70,
			BedroomSqm:         12,
			BathroomSqm:        5,
			CommonAreaSqm:      36,
			BoostAreaSqm:       120,
			SqmPerLettableRoom: 15,
			MaxLettableRooms:   8,
			MinOccupants:       3,
			MandatoryOccupants: 5,
		},
		Breakpoints: ScoreBreakpoints{
			FloorArea: []AreaPoints{
				{MinSqm: 120, Points: 15},
				{MinSqm: 90, Points: 12},
				{MinSqm: 70, Points: 8},
				{MinSqm: 0, Points: 4},
			},
			EPC: map[string]int{
				"A": 15, "B": 15, "C": 14, "D": 12, "E": 10, "F": 6, "G": 3,
			},
			EPCUnknown:    8,
			LicensingHit:  10,
			LicensingMiss: 5,
			LettableRooms: []RoomPoints{
				{MinRooms: 6, Points: 15},
				{MinRooms: 5, Points: 12},
				{MinRooms: 4, Points: 9},
				{MinRooms: 3, Points: 6},
				{MinRooms: 0, Points: 3},
			},
			Yield: []YieldPoints{
				{MinPercent: 10, Points: 15},
				{MinPercent: 8, Points: 13},
				{MinPercent: 6, Points: 10},
				{MinPercent: 5, Points: 7},
				{MinPercent: 4, Points: 4},
				{MinPercent: 0, Points: 2},
			},
			ComplianceBase:          10,
			ConservationPenalty:     3,
			Article4Penalty:         7,
			EPCImproveHighPenalty:   2,
			EPCImproveMediumPenalty: 1,
			OwnerIdentityPoints:     10,
			LicensedSignalPoints:    5,
			ContactChannelPoints:    5,
		},
		Classification: Classification{
			ReadyToGoMinScore:  70,
			ValueAddMinScore:   40,
			YieldHighPercent:   8,
			YieldMediumPercent: 5,
		},
	}
}

type ScoringConfigHolder struct {
	current atomic.Value // holds ScoringConfig
}

// NewScoringConfigHolder loads scoring.yml when present and watches it for
// changes; coded defaults apply otherwise. Readers always see a complete,
// validated snapshot.
func NewScoringConfigHolder() (*ScoringConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("scoring")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/hmoscout/config")
	v.AddConfigPath("/etc/hmoscout")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HMOSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultScoringConfig()
	holder := &ScoringConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(cfg)
		return holder, nil
	}

	if err := v.UnmarshalKey("scoring", &cfg); err != nil {
		return nil, err
	}
	if err := validateScoringConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultScoringConfig()
		if err := v.UnmarshalKey("scoring", &updated); err != nil {
			log.Printf("[scoring-config] reload failed: %v", err)
			return
		}
		if err := validateScoringConfig(updated); err != nil {
			log.Printf("[scoring-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[scoring-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ScoringConfigHolder) Get() ScoringConfig {
	return h.current.Load().(ScoringConfig)
}

func validateScoringConfig(cfg ScoringConfig) error {
	if len(cfg.Breakpoints.FloorArea) == 0 {
		return errors.New("scoring.breakpoints.floorArea cannot be empty")
	}
	if len(cfg.Breakpoints.LettableRooms) == 0 {
		return errors.New("scoring.breakpoints.lettableRooms cannot be empty")
	}
	if len(cfg.Breakpoints.Yield) == 0 {
		return errors.New("scoring.breakpoints.yield cannot be empty")
	}
	if cfg.Rents.DefaultPerRoom <= 0 {
		return errors.New("scoring.rents.defaultPerRoom must be positive")
	}
	if cfg.SpaceStandards.AbsoluteFloorSqm > cfg.SpaceStandards.MinAreaSqm {
		return errors.New("scoring.spaceStandards: absolute floor exceeds preferred minimum")
	}
	return nil
}

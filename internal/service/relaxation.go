package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"propsearch/internal/config"
	"propsearch/internal/model"
)

// RelaxStep is a state of the filter relaxation machine
type RelaxStep string

const (
	StepStrict            RelaxStep = "strict"
	StepRelaxAmenities    RelaxStep = "relax_amenities"
	StepRelaxNeighborhood RelaxStep = "relax_neighborhood"
	StepRelaxNumeric      RelaxStep = "relax_numeric"
	StepRelaxCity         RelaxStep = "relax_city"
	StepExhausted         RelaxStep = "exhausted"
)

// roundingSlack absorbs float error so 500000*1.1 widens to 550000, not 550001
const roundingSlack = 1e-6

// RelaxationOrder lists the steps tried after a strict query, from the
// least to the most consequential. property_type is never relaxed.
var RelaxationOrder = []RelaxStep{
	StepRelaxAmenities,
	StepRelaxNeighborhood,
	StepRelaxNumeric,
	StepRelaxCity,
}

// Relaxer loosens filters one step at a time
type Relaxer struct {
	cfg config.RelaxationConfig
}

// NewRelaxer creates a Relaxer with the given thresholds and margins
func NewRelaxer(cfg config.RelaxationConfig) *Relaxer {
	return &Relaxer{cfg: cfg}
}

// Threshold is the candidate count below which a result set is too sparse:
// min(topK, max(MinCandidates, topK*TopKRatio)).
func (r *Relaxer) Threshold(topK int) int {
	t := int(float64(topK) * r.cfg.TopKRatio)
	if t < r.cfg.MinCandidates {
		t = r.cfg.MinCandidates
	}
	if t > topK {
		t = topK
	}
	return t
}

// Apply returns f loosened by step, and a record of what changed. A nil
// record means the step has nothing to loosen in f; f itself is never modified.
func (r *Relaxer) Apply(step RelaxStep, f *model.QueryFilter) (*model.QueryFilter, *model.Relaxation) {
	next := f.Clone()
	var clauses, details []string

	switch step {
	case StepRelaxAmenities:
		if len(next.RequiredAmenities) > 0 {
			clauses = append(clauses, model.CriterionRequiredAmenities)
			details = append(details, fmt.Sprintf("dropped required amenities [%s]", strings.Join(next.RequiredAmenities, ", ")))
			next.RequiredAmenities = nil
		}
	case StepRelaxNeighborhood:
		if next.Neighborhood != nil {
			clauses = append(clauses, model.CriterionNeighborhood)
			details = append(details, fmt.Sprintf("dropped neighborhood %s", *next.Neighborhood))
			next.Neighborhood = nil
		}
	case StepRelaxNumeric:
		widenInt := func(name string, p *int64, lower bool, absolute int64) {
			if p == nil {
				return
			}
			old := *p
			var v int64
			switch {
			case r.cfg.MarginMode == config.MarginAbsolute && lower:
				v = old - absolute
			case r.cfg.MarginMode == config.MarginAbsolute:
				v = old + absolute
			case lower:
				v = int64(math.Floor(float64(old)*(1-r.cfg.MarginPercent) + roundingSlack))
			default:
				v = int64(math.Ceil(float64(old)*(1+r.cfg.MarginPercent) - roundingSlack))
			}
			if v < 0 {
				v = 0
			}
			if v != old {
				*p = v
				clauses = append(clauses, name)
				details = append(details, fmt.Sprintf("%s %d -> %d", name, old, v))
			}
		}
		widenRooms := func(name string, p *float64) {
			if p == nil {
				return
			}
			old := *p
			v := math.Max(0, old-r.cfg.RoomMargin)
			if v != old {
				*p = v
				clauses = append(clauses, name)
				details = append(details, fmt.Sprintf("%s %s -> %s", name, formatRooms(old), formatRooms(v)))
			}
		}
		widenInt(model.CriterionMinPrice, next.MinPrice, true, r.cfg.PriceMargin)
		widenInt(model.CriterionMaxPrice, next.MaxPrice, false, r.cfg.PriceMargin)
		widenRooms(model.CriterionMinBedrooms, next.MinBedrooms)
		widenRooms(model.CriterionMinBathrooms, next.MinBathrooms)
		widenInt(model.CriterionMinSquareFeet, next.MinSquareFeet, true, r.cfg.SquareFeetMargin)
	case StepRelaxCity:
		if next.City != nil {
			clauses = append(clauses, model.CriterionCity)
			details = append(details, fmt.Sprintf("dropped city %s", *next.City))
			next.City = nil
		}
		if next.State != nil {
			clauses = append(clauses, model.CriterionState)
			details = append(details, fmt.Sprintf("dropped state %s", *next.State))
			next.State = nil
		}
	}

	if len(clauses) == 0 {
		return f, nil
	}
	return next, &model.Relaxation{
		Step:    string(step),
		Clauses: clauses,
		Detail:  strings.Join(details, "; "),
	}
}

func formatRooms(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

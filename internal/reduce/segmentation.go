package reduce

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Strategy selects how reduced cylinders are discretized
type Strategy string

const (
	// StrategyLambda places about ten segments per space constant
	StrategyLambda Strategy = "lambda"
	// StrategyManual splits a requested total in proportion to
	// electrotonic length
	StrategyManual Strategy = "manual"
)

// Segmentation configures the segment count of reduced cylinders
type Segmentation struct {
	Strategy Strategy `yaml:"strategy" json:"strategy" validate:"omitempty,oneof=lambda manual"`
	// TotalSegments is the manual target, including one segment reserved
	// for the soma.
	TotalSegments int `yaml:"total_segments" json:"total_segments" validate:"gte=0"`
	// MinFraction, when in (0, 1], is the smallest share of the original
	// segment count the lambda rule may produce before falling back to
	// manual allocation.
	MinFraction float64 `yaml:"min_fraction" json:"min_fraction" validate:"gte=0,lte=1"`
}

// LambdaRule returns the odd segment count round(length/λ·10/2)·2 + 1
func LambdaRule(length, spaceConst float64) int {
	return int(math.Round(length/spaceConst*10/2))*2 + 1
}

// AllocateManual splits total-1 segments (one is kept for the soma) among
// cylinders in proportion to their electrotonic lengths, at least one each.
func AllocateManual(electrotonic []float64, total int) []int {
	out := make([]int, len(electrotonic))
	sum := floats.Sum(electrotonic)
	dendritic := float64(total - 1)
	for i, l := range electrotonic {
		n := 1
		if sum > 0 {
			n = int(math.Round(l / sum * dendritic))
		}
		if n < 1 {
			n = 1
		}
		out[i] = n
	}
	return out
}

// Plan decides the segment count of every cylinder. original is the number
// of segments in the reduced subtrees, used by the MinFraction fallback.
func Plan(cables []CableParams, cfg Segmentation, original int, logger *log.Logger) ([]int, error) {
	electrotonic := make([]float64, len(cables))
	for i, c := range cables {
		electrotonic[i] = c.ElectrotonicLength
	}

	switch cfg.Strategy {
	case StrategyManual:
		if cfg.TotalSegments < 1 {
			return nil, fmt.Errorf("manual segmentation needs total_segments >= 1, got %d", cfg.TotalSegments)
		}
		return AllocateManual(electrotonic, cfg.TotalSegments), nil

	case StrategyLambda, "":
		nsegs := make([]int, len(cables))
		total := 0
		for i, c := range cables {
			nsegs[i] = LambdaRule(c.Length, c.SpaceConst)
			total += nsegs[i]
		}
		if cfg.MinFraction > 0 && cfg.MinFraction <= 1 {
			minimum := int(math.Round(cfg.MinFraction * float64(original)))
			if total < minimum {
				if logger != nil {
					logger.Printf("lambda rule gave %d segments, below %d (%.0f%% of %d original); allocating manually",
						total, minimum, cfg.MinFraction*100, original)
				}
				return AllocateManual(electrotonic, minimum), nil
			}
		}
		return nsegs, nil

	default:
		return nil, fmt.Errorf("unknown segmentation strategy %q", cfg.Strategy)
	}
}

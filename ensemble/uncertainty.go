package ensemble

import (
	"image"

	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/Tutortoise/rice-leaf-service/views"
)

const (
	MinConfidence          = 0.50
	MinMargin              = 0.10
	MaxDisagreement        = 0.25
	MaxDarkBackgroundRatio = 0.35

	// DarkChannelMax is the brightest channel value still counted as near-black.
	DarkChannelMax = 20

	shortlistSize = 2
)

// Reasons reported when a signal crosses its threshold.
const (
	ReasonLowConfidence  = "low_confidence"
	ReasonLowMargin      = "low_margin"
	ReasonDisagreement   = "view_disagreement"
	ReasonDarkBackground = "dark_background"
)

type Uncertainty struct {
	Confidence          float64
	Margin              float64
	Disagreement        float64
	DarkBackgroundRatio float64
	IsUncertain         bool
	Reasons             []string
	// Shortlist holds the indices of the top classes by aggregate probability.
	Shortlist []int
}

// Estimate derives the trust signals from the per-view vectors, their aggregate and
// the dark-background ratio of the source image.
func Estimate(perView []models.ProbabilityVector, aggregate models.ProbabilityVector, darkRatio float64) (Uncertainty, error) {
	if len(perView) == 0 {
		return Uncertainty{}, models.Invariant("cannot estimate uncertainty", models.ErrEmptyViews)
	}
	if len(aggregate) == 0 {
		return Uncertainty{}, models.Invariant("aggregate has no classes", models.ErrClassCountMismatch)
	}

	order := rank(aggregate)
	u := Uncertainty{
		Confidence:          aggregate[order[0]],
		Disagreement:        Disagreement(perView),
		DarkBackgroundRatio: darkRatio,
		Shortlist:           order[:min(shortlistSize, len(order))],
	}
	if len(order) > 1 {
		u.Margin = u.Confidence - aggregate[order[1]]
	}

	if u.Confidence < MinConfidence {
		u.Reasons = append(u.Reasons, ReasonLowConfidence)
	}
	if u.Margin < MinMargin {
		u.Reasons = append(u.Reasons, ReasonLowMargin)
	}
	if u.Disagreement > MaxDisagreement {
		u.Reasons = append(u.Reasons, ReasonDisagreement)
	}
	if u.DarkBackgroundRatio > MaxDarkBackgroundRatio {
		u.Reasons = append(u.Reasons, ReasonDarkBackground)
	}
	u.IsUncertain = len(u.Reasons) > 0

	return u, nil
}

// Disagreement is 1 - majority/views, where majority is the largest number of views
// sharing the same top-1 class.
func Disagreement(perView []models.ProbabilityVector) float64 {
	if len(perView) == 0 {
		return 0
	}

	votes := make(map[int]int)
	majority := 0
	for _, v := range perView {
		idx := v.ArgMax()
		votes[idx]++
		majority = max(majority, votes[idx])
	}
	return 1 - float64(majority)/float64(len(perView))
}

// DarkBackgroundRatio is the fraction of pixels in the centre square of img whose
// RGB channels are all at most DarkChannelMax.
func DarkBackgroundRatio(img image.Image) float64 {
	sq := views.CenterSquare(views.ToRGB(img))
	total := sq.Bounds().Dx() * sq.Bounds().Dy()
	if total == 0 {
		return 0
	}

	dark := 0
	for i := 0; i < len(sq.Pix); i += 4 {
		if sq.Pix[i] <= DarkChannelMax && sq.Pix[i+1] <= DarkChannelMax && sq.Pix[i+2] <= DarkChannelMax {
			dark++
		}
	}
	return float64(dark) / float64(total)
}

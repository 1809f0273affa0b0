package api

import (
	"fmt"
	"slices"

	"github.com/Tutortoise/rice-leaf-service/ensemble"
	"github.com/Tutortoise/rice-leaf-service/models"
)

const (
	MsgConfident = "The leaf was recognised with high confidence."

	MsgUncertain = "We are not confident about this photo. Please review the possible classes or retake the picture with the leaf filling the frame in good light."

	MsgDarkBackground = "Much of the photo is very dark. Please retake it in daylight or against a lighter background so the leaf is clearly visible."
)

func predictionMessage(p *models.Prediction) string {
	switch {
	case !p.IsUncertain:
		return MsgConfident
	case slices.Contains(p.UncertainReasons, ensemble.ReasonDarkBackground):
		return MsgDarkBackground
	case len(p.PossibleClasses) > 1:
		return fmt.Sprintf("%s It looks most like %s or %s.", MsgUncertain, p.PossibleClasses[0], p.PossibleClasses[1])
	default:
		return MsgUncertain
	}
}

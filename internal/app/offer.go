package app

import (
	"fmt"
	"strings"

	"github.com/dkeye/Beam/internal/core"
	"github.com/pion/sdp/v3"
)

// validateOffer rejects empty or structurally malformed client offers
// before any session state is created.
func validateOffer(offerSDP string) error {
	if strings.TrimSpace(offerSDP) == "" {
		return core.ErrInvalidOffer
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(offerSDP)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidOffer, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: offer carries no media sections", core.ErrInvalidOffer)
	}
	return nil
}

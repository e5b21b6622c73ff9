package translation

import (
	"context"

	"github.com/lemonhall/radioscribe/internal/model"
)

// Client translates transcript segments into a target language. prior
// carries already-translated segments from earlier chunks so phrasing
// stays coherent across chunk boundaries.
type Client interface {
	TranslateBatch(
		ctx context.Context,
		segments []model.TranscriptSegment,
		prior []model.TranslatedSegment,
		sourceLanguage string,
		targetLanguage string,
	) ([]model.TranslatedSegment, error)
}

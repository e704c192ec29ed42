package selector

import (
	"context"
	"log/slog"
	"slices"

	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/service/signature"
)

type Resolver interface {
	ResolveAll(ctx context.Context, links []entity.LinkRecord, maxMp3Links int) []entity.SignedLink
}

type DeduplicationSelector struct {
	resolver Resolver
	reverse  bool
	log      *slog.Logger
}

func NewDeduplicationSelector(resolver Resolver, reverse bool, log *slog.Logger) *DeduplicationSelector {
	return &DeduplicationSelector{
		resolver: resolver,
		reverse:  reverse,
		log:      log.With(slog.String("item", "DeduplicationSelector")),
	}
}

// Select keeps links whose content was not seen earlier on the page, up to maxMp3Links of them
// (no limit when maxMp3Links <= 0). With reversal on, the oldest kept link comes first.
func (s *DeduplicationSelector) Select(ctx context.Context, links []entity.LinkRecord, maxMp3Links int) []entity.LinkRecord {
	signed := s.resolver.ResolveAll(ctx, links, maxMp3Links)

	kept := make([]entity.SignedLink, 0, len(signed))
	for _, candidate := range signed {
		if maxMp3Links > 0 && len(kept) >= maxMp3Links {
			break
		}

		if s.isDuplicate(candidate, kept) {
			continue
		}

		kept = append(kept, candidate)
	}

	selected := make([]entity.LinkRecord, 0, len(kept))
	for _, sl := range kept {
		selected = append(selected, sl.Link)
	}

	if s.reverse {
		slices.Reverse(selected)
	}

	s.log.Info("Selected links", slog.Int("found", len(links)), slog.Int("probed", len(signed)), slog.Int("selected", len(selected)))

	return selected
}

func (s *DeduplicationSelector) isDuplicate(candidate entity.SignedLink, kept []entity.SignedLink) bool {
	for _, k := range kept {
		if signature.Duplicate(candidate.Signature, k.Signature) {
			s.log.Debug("Skip duplicate content", slog.String("url", candidate.Link.URL), slog.String("same_as", k.Link.URL))

			return true
		}
	}

	return false
}

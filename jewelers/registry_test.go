package jewelers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-ring-crawler/models"
)

func TestRegistryShape(t *testing.T) {
	all := All()
	require.Len(t, all, 30)

	seen := make(map[string]bool)
	for _, target := range all {
		assert.False(t, seen[target.Slug], "duplicate slug %s", target.Slug)
		seen[target.Slug] = true

		assert.True(t, strings.HasPrefix(target.ListingURL, target.BaseURL), target.Slug)
		assert.Equal(t, 30, target.MaxRecords, target.Slug)
		assert.True(t, target.CrawlDetailPages, target.Slug)
		assert.Positive(t, target.Delay, target.Slug)

		switch target.Pagination {
		case models.PaginationURL:
			assert.Equal(t, 3, target.MaxPages, target.Slug)
		case models.PaginationLoadMore:
			assert.NotEmpty(t, target.LoadMoreSelector, target.Slug)
			assert.Equal(t, 5, target.MaxPages, target.Slug)
		default:
			assert.Equal(t, 5, target.MaxPages, target.Slug)
		}
	}

	assert.Len(t, ByTier(models.TierHigh), 10)
	assert.Len(t, ByTier(models.TierMid), 10)
	assert.Len(t, ByTier(models.TierLow), 10)
	assert.Len(t, Slugs(), 30)
}

func TestAllReturnsCopy(t *testing.T) {
	all := All()
	all[0].MaxRecords = 1
	again, err := BySlug(all[0].Slug)
	require.NoError(t, err)
	assert.Equal(t, 30, again.MaxRecords)
}

func TestBySlug(t *testing.T) {
	target, err := BySlug(" Cartier ")
	require.NoError(t, err)
	assert.Equal(t, "Cartier", target.Name)
	assert.Equal(t, "https://www.cartier.com", target.BaseURL)
	assert.Equal(t, models.PaginationInfinite, target.Pagination)

	_, err = BySlug("tiffany")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestParseTier(t *testing.T) {
	tiers, err := ParseTier("MID")
	require.NoError(t, err)
	assert.Equal(t, []models.Tier{models.TierMid}, tiers)

	tiers, err = ParseTier("all")
	require.NoError(t, err)
	assert.Equal(t, []models.Tier{models.TierHigh, models.TierMid, models.TierLow}, tiers)

	_, err = ParseTier("premium")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

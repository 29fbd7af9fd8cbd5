// Package catalog looks up hints for the request workflow. Hints never change
// after creation, so lookups are cached in Redis by (hint, challenge).
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

const DefaultTTL = 10 * time.Minute

// cachedHint mirrors models.Hint with every field serialized, including the
// content that the API representation hides.
type cachedHint struct {
	ID          uint                `json:"id"`
	ChallengeID uint                `json:"challenge_id"`
	HintNumber  int                 `json:"hint_number"`
	Content     string              `json:"content"`
	CostType    models.HintCostType `json:"cost_type"`
	CostAmount  int64               `json:"cost_amount"`
}

// Catalog is the read-only hint lookup.
type Catalog struct {
	reader store.Reader
	cache  *utils.Cache
	ttl    time.Duration
}

// New builds a Catalog. cache may be nil.
func New(reader store.Reader, cache *utils.Cache, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{reader: reader, cache: cache, ttl: ttl}
}

func cacheKey(hintID, challengeID uint) string {
	return fmt.Sprintf("cache:hint:%d:%d", hintID, challengeID)
}

// Lookup returns hint hintID if it belongs to challengeID, else apperr.ErrNotFound.
// Misses are not cached, so a hint created later is found on the next call.
func (c *Catalog) Lookup(ctx context.Context, hintID, challengeID uint) (*models.Hint, error) {
	key := cacheKey(hintID, challengeID)
	var ch cachedHint
	if c.cache.GetJSON(ctx, key, &ch) {
		return &models.Hint{
			ID:          ch.ID,
			ChallengeID: ch.ChallengeID,
			HintNumber:  ch.HintNumber,
			Content:     ch.Content,
			CostType:    ch.CostType,
			CostAmount:  ch.CostAmount,
		}, nil
	}

	h, err := c.reader.FindHint(ctx, hintID, challengeID)
	if err != nil {
		return nil, err
	}
	c.cache.SetJSON(ctx, key, cachedHint{
		ID:          h.ID,
		ChallengeID: h.ChallengeID,
		HintNumber:  h.HintNumber,
		Content:     h.Content,
		CostType:    h.CostType,
		CostAmount:  h.CostAmount,
	}, c.ttl)
	return h, nil
}

package orchestrator

import (
	"context"

	"go.uber.org/zap"
)

// Base economy event awarded for every qualifying prompt.
const promptEventType = "prompt"

// tagKeySuffix joins the base idempotency key and the classification tag,
// giving the bonus award an identity independent of the base award. A
// replay of the same request or a reuse of the same tag elsewhere each
// derive a stable, distinct key.
const tagKeySuffix = "-tag-"

// tagBonusEvents maps a caller-supplied classification tag to the bonus
// event type it earns. Unknown tags earn nothing.
var tagBonusEvents = map[string]string{
	"feature": "feature_tag_bonus",
	"bugfix":  "bugfix_tag_bonus",
	"polish":  "polish_tag_bonus",
}

// awardRewards credits the base prompt event and, when the tag qualifies,
// the tag bonus. It returns the total amount reported and the latest
// balance. Every failure is swallowed: the pipeline reports zero reward
// rather than failing the user-visible request.
func (o *Orchestrator) awardRewards(ctx context.Context, credential, projectID, idempotencyKey, tag string) (total, balance int64) {
	award, err := o.ledger.Award(ctx, credential, projectID, promptEventType, idempotencyKey)
	if err != nil {
		o.logger.Warn("base reward award failed",
			zap.String("project", projectID),
			zap.Error(err))
		return 0, 0
	}
	total = award.Amount
	balance = award.NewBalance
	if award.Idempotent {
		o.logger.Debug("base reward replayed",
			zap.String("project", projectID),
			zap.String("key", idempotencyKey))
	}

	bonusEvent, ok := tagBonusEvents[tag]
	if !ok {
		return total, balance
	}

	bonus, err := o.ledger.Award(ctx, credential, projectID, bonusEvent, idempotencyKey+tagKeySuffix+tag)
	if err != nil {
		o.logger.Warn("tag bonus award failed",
			zap.String("project", projectID),
			zap.String("tag", tag),
			zap.Error(err))
		return total, balance
	}
	total += bonus.Amount
	balance = bonus.NewBalance
	return total, balance
}

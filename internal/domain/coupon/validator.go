package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/pricing"
)

// Validator validates a coupon code against a set of line items and returns
// the promotion it grants.
type Validator interface {
	Validate(ctx context.Context, code string, items []pricing.LineItem) (*Rule, pricing.Promotion, error)
	Redeem(ctx context.Context, code string) error
}

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and resolving them via Resolve.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon rule for the given code, checks temporal
// validity and usage limits, and resolves it against the items.
// Validation does not consume a use; see Redeem.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []pricing.LineItem) (*Rule, pricing.Promotion, error) {
	rule, err := v.lookup(ctx, code)
	if err != nil {
		return nil, pricing.Promotion{}, err
	}

	p, err := Resolve(rule, items)
	if err != nil {
		return nil, pricing.Promotion{}, err
	}
	return rule, p, nil
}

// Redeem re-checks the code and increments its usage counter. It is called
// once per placed order.
func (v *RepoValidator) Redeem(ctx context.Context, code string) error {
	if _, err := v.lookup(ctx, code); err != nil {
		return err
	}
	if err := v.repo.IncrementUses(ctx, code); err != nil {
		return errors.Wrap(err, "increment coupon uses")
	}
	return nil
}

func (v *RepoValidator) lookup(ctx context.Context, code string) (*Rule, error) {
	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()

	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}

	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}
	return rule, nil
}

package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/pricing"
)

type mockCouponRepo struct {
	rule          *Rule
	err           error
	incrementErr  error
	incrementCode string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Rule, error) {
	return m.rule, m.err
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, code string) error {
	m.incrementCode = code
	return m.incrementErr
}

func (m *mockCouponRepo) Upsert(_ context.Context, _ Rule) error {
	return nil
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	items := []pricing.LineItem{line("p1", "100", 1)}

	tests := []struct {
		name      string
		repo      *mockCouponRepo
		items     []pricing.LineItem
		wantValue decimal.Decimal
		wantErr   error
	}{
		{
			name: "valid code returns promotion",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "SAVE10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)},
			},
			items:     items,
			wantValue: decimal.NewFromInt(10),
		},
		{
			name:    "unknown code returns ErrInvalidCoupon",
			repo:    &mockCouponRepo{err: ErrInvalidCoupon},
			items:   items,
			wantErr: ErrInvalidCoupon,
		},
		{
			name: "items below MinItems returns ErrInvalidCoupon",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "MIN3", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5), MinItems: 3},
			},
			items:   items,
			wantErr: ErrInvalidCoupon,
		},
		{
			name: "expired coupon (valid_until in past)",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "OLD", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), ValidUntil: &pastTime},
			},
			items:   items,
			wantErr: ErrCouponExpired,
		},
		{
			name: "coupon not yet valid (valid_from in future)",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "FUTURE", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), ValidFrom: &futureTime},
			},
			items:   items,
			wantErr: ErrCouponExpired,
		},
		{
			name: "coupon within valid window succeeds",
			repo: &mockCouponRepo{
				rule: &Rule{
					Code: "WINDOW", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
					ValidFrom: &pastTime, ValidUntil: &futureTime,
				},
			},
			items:     items,
			wantValue: decimal.NewFromInt(10),
		},
		{
			name: "usage limit reached",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "LIMITED", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), MaxUses: 100, Uses: 100},
			},
			items:   items,
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name: "unlimited uses (max_uses=0) always succeeds",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "UNLIMITED", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5), Uses: 9999},
			},
			items:     items,
			wantValue: decimal.NewFromInt(5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			rule, got, err := v.Validate(context.Background(), "CODE", tt.items)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rule)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, rule)
			assert.True(t, tt.wantValue.Equal(got.Value),
				"expected value %s, got %s", tt.wantValue, got.Value)
			assert.Empty(t, tt.repo.incrementCode, "validate must not consume a use")
		})
	}
}

func TestRepoValidator_Validate_LookupError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("connection reset")})

	_, _, err := v.Validate(context.Background(), "ANY", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
	assert.False(t, errors.Is(err, ErrInvalidCoupon))
}

func TestRepoValidator_Redeem(t *testing.T) {
	repo := &mockCouponRepo{
		rule: &Rule{Code: "INC", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5)},
	}

	err := NewRepoValidator(repo).Redeem(context.Background(), "INC")
	require.NoError(t, err)
	assert.Equal(t, "INC", repo.incrementCode)
}

func TestRepoValidator_RedeemUsageLimit(t *testing.T) {
	repo := &mockCouponRepo{
		rule: &Rule{Code: "DONE", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5), MaxUses: 1, Uses: 1},
	}

	err := NewRepoValidator(repo).Redeem(context.Background(), "DONE")
	require.ErrorIs(t, err, ErrCouponUsageLimitReached)
	assert.Empty(t, repo.incrementCode)
}

func TestRepoValidator_RedeemIncrementError(t *testing.T) {
	repo := &mockCouponRepo{
		rule:         &Rule{Code: "FAIL", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5)},
		incrementErr: errors.New("db error"),
	}

	err := NewRepoValidator(repo).Redeem(context.Background(), "FAIL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment coupon uses")
}

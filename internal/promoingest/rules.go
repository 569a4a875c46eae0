package promoingest

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

type ruleColumns struct {
	kind     coupon.DiscountType
	value    decimal.Decimal
	minItems int
}

type entry struct {
	code string
	rule *ruleColumns
}

// knownRules are campaign codes whose rule is fixed regardless of shard columns.
var knownRules = map[string]coupon.Rule{
	"HAPPYHRS":   {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(18), Description: "Happy hours: 18% off"},
	"BUYGETON":   {DiscountType: coupon.DiscountFreeLowest, Value: decimal.Zero, MinItems: 2, Description: "Cheapest item free with 2 or more"},
	"FLASHSALE":  {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(25), Description: "Flash sale: 25% off"},
	"NEWUSER50K": {DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(50000), Description: "New customer: 50.000 off"},
}

var defaultRule = coupon.Rule{
	DiscountType: coupon.DiscountPercentage,
	Value:        decimal.NewFromInt(10),
	Description:  "Promo code: 10% off",
}

// parseLine splits a shard line into its code and optional rule columns.
// ok is false for blank lines. A non-nil error reports rule columns that were
// present but unusable; the code itself is still returned.
func parseLine(line string) (e entry, ok bool, err error) {
	code, rest, hasCols := strings.Cut(strings.TrimSpace(line), ",")
	e.code = strings.ToUpper(strings.TrimSpace(code))
	if e.code == "" {
		return entry{}, false, nil
	}
	if !hasCols {
		return e, true, nil
	}

	rule, err := parseColumns(rest)
	if err != nil {
		return e, true, errors.Wrapf(err, "code %s", e.code)
	}
	e.rule = rule
	return e, true, nil
}

func parseColumns(s string) (*ruleColumns, error) {
	cols := strings.Split(s, ",")
	if len(cols) != 3 {
		return nil, errors.Errorf("want kind,value,minItems, got %d columns", len(cols))
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}

	var r ruleColumns
	switch kind := coupon.DiscountType(strings.ToLower(cols[0])); kind {
	case coupon.DiscountPercentage, coupon.DiscountFixed, coupon.DiscountFreeLowest:
		r.kind = kind
	default:
		return nil, errors.Errorf("unknown kind %q", cols[0])
	}

	v, err := decimal.NewFromString(cols[1])
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}
	if v.IsNegative() {
		return nil, errors.Errorf("negative value %s", v)
	}
	if r.kind == coupon.DiscountPercentage && v.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.Errorf("percentage %s above 100", v)
	}
	r.value = v

	if cols[2] != "" {
		n, err := strconv.Atoi(cols[2])
		if err != nil {
			return nil, errors.Wrap(err, "minItems")
		}
		if n < 0 {
			return nil, errors.Errorf("negative minItems %d", n)
		}
		r.minItems = n
	}
	return &r, nil
}

// ruleFor picks the rule for an accepted code: explicit columns first, then
// the known campaign table, then the default.
func ruleFor(code string, cols *ruleColumns) coupon.Rule {
	if cols != nil {
		return coupon.Rule{
			Code:         code,
			DiscountType: cols.kind,
			Value:        cols.value,
			MinItems:     cols.minItems,
			Description:  describe(cols),
		}
	}
	rule, ok := knownRules[code]
	if !ok {
		rule = defaultRule
	}
	rule.Code = code
	return rule
}

func describe(c *ruleColumns) string {
	switch c.kind {
	case coupon.DiscountPercentage:
		return "Promo code: " + c.value.String() + "% off"
	case coupon.DiscountFixed:
		return "Promo code: " + c.value.String() + " off"
	default:
		return "Promo code: cheapest item free"
	}
}

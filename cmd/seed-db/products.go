package main

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// decodeProducts parses the catalog seed file, an array of products with
// decimal prices and a catalog discount percent.
func decodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	p := product.Product{DiscountPercent: decimal.Zero}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "price":
			p.Price, err = decodeNum(d)
		case "discountPercent":
			p.DiscountPercent, err = decodeNum(d)
		case "image":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "thumbnail":
					p.Image.Thumbnail, err = d.Str()
				case "mobile":
					p.Image.Mobile, err = d.Str()
				case "tablet":
					p.Image.Tablet, err = d.Str()
				case "desktop":
					p.Image.Desktop, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return product.Product{}, err
	}
	if p.ID == "" {
		return product.Product{}, errors.New("missing id")
	}
	if err := pricing.ValidateLineItem(p.LineItem(1)); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

func decodeNum(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

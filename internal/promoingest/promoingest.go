// Package promoingest loads promotion codes from sharded gzip exports.
//
// Each shard holds one code per line, optionally followed by rule columns:
//
//	CODE[,kind,value,minItems]
//
// A code is accepted when at least Quorum shards contain it. Acceptance runs in
// two passes over the shards: the first builds one bloom filter per shard, the
// second re-reads every shard and keeps the codes the filters place in enough
// shards. Per-shard bitmasks make the final count exact.
package promoingest

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const progressEvery = 10_000_000

// Config controls shard scanning.
type Config struct {
	Shards []string
	// Quorum is the number of shards a code must appear in.
	Quorum int
	// BloomCapacity is the expected number of codes per shard.
	BloomCapacity uint
	BloomFPR      float64
	MinCodeLen    int
	MaxCodeLen    int
}

func (c *Config) setDefaults() {
	if c.Quorum == 0 {
		c.Quorum = 2
	}
	if c.BloomCapacity == 0 {
		c.BloomCapacity = 10_000_000
	}
	if c.BloomFPR == 0 {
		c.BloomFPR = 0.001
	}
	if c.MinCodeLen == 0 {
		c.MinCodeLen = 8
	}
	if c.MaxCodeLen == 0 {
		c.MaxCodeLen = 10
	}
}

func (c Config) validate() error {
	switch {
	case len(c.Shards) == 0:
		return errors.New("no shards")
	case len(c.Shards) > bits.UintSize:
		return errors.Errorf("at most %d shards supported, got %d", bits.UintSize, len(c.Shards))
	case c.Quorum < 1 || c.Quorum > len(c.Shards):
		return errors.Errorf("quorum %d out of range [1, %d]", c.Quorum, len(c.Shards))
	case c.MinCodeLen > c.MaxCodeLen:
		return errors.Errorf("min code length %d exceeds max %d", c.MinCodeLen, c.MaxCodeLen)
	}
	return nil
}

// Stats summarizes an ingestion run.
type Stats struct {
	Scanned  uint64
	Accepted int
	Written  int
}

// Ingester accepts codes from shards and stores them as coupon rules.
type Ingester struct {
	cfg   Config
	rules coupon.Repository
}

// New creates an Ingester writing to rules.
func New(cfg Config, rules coupon.Repository) (*Ingester, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	for _, path := range cfg.Shards {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "check shard %s", path)
		}
	}
	return &Ingester{cfg: cfg, rules: rules}, nil
}

// Run scans all shards and upserts every accepted code.
func (in *Ingester) Run(ctx context.Context) (Stats, error) {
	lg := zctx.From(ctx)

	lg.Info("Building bloom filters", zap.Int("shards", len(in.cfg.Shards)))
	filters, scanned, err := in.buildFilters(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build bloom filters")
	}
	stats := Stats{Scanned: scanned}

	lg.Info("Finding accepted codes", zap.Int("quorum", in.cfg.Quorum))
	accepted, err := in.accept(ctx, filters)
	if err != nil {
		return stats, errors.Wrap(err, "find accepted codes")
	}
	stats.Accepted = len(accepted)
	lg.Info("Accepted codes", zap.Int("count", len(accepted)))

	stats.Written, err = in.write(ctx, accepted)
	if err != nil {
		return stats, errors.Wrap(err, "write coupons")
	}
	return stats, nil
}

func (in *Ingester) buildFilters(ctx context.Context) ([]*bloom.BloomFilter, uint64, error) {
	filters := make([]*bloom.BloomFilter, len(in.cfg.Shards))
	counts := make([]uint64, len(in.cfg.Shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range in.cfg.Shards {
		g.Go(func() error {
			lg := zctx.From(ctx).With(zap.Int("shard", i+1))
			filter := bloom.NewWithEstimates(in.cfg.BloomCapacity, in.cfg.BloomFPR)

			err := in.scan(ctx, path, func(e entry) {
				filter.AddString(e.code)
				counts[i]++
				if counts[i]%progressEvery == 0 {
					lg.Info("Filter progress", zap.Uint64("codes", counts[i]))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "shard %d", i+1)
			}

			lg.Debug("Filter complete", zap.Uint64("codes", counts[i]))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var total uint64
	for _, c := range counts {
		total += c
	}
	return filters, total, nil
}

type candidate struct {
	mask uint
	rule *ruleColumns
}

func (in *Ingester) accept(ctx context.Context, filters []*bloom.BloomFilter) ([]coupon.Rule, error) {
	found := make([]map[string]candidate, len(in.cfg.Shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range in.cfg.Shards {
		g.Go(func() error {
			cands := make(map[string]candidate)
			bit := uint(1) << uint(i)

			err := in.scan(ctx, path, func(e entry) {
				seen := 1
				for j, f := range filters {
					if j != i && f.TestString(e.code) {
						seen++
					}
				}
				if seen < in.cfg.Quorum {
					return
				}
				c := cands[e.code]
				c.mask |= bit
				if c.rule == nil {
					c.rule = e.rule
				}
				cands[e.code] = c
			})
			if err != nil {
				return errors.Wrapf(err, "shard %d", i+1)
			}

			zctx.From(ctx).Debug("Candidates found",
				zap.Int("shard", i+1),
				zap.Int("candidates", len(cands)),
			)
			found[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]candidate)
	for _, cands := range found {
		for code, c := range cands {
			m := merged[code]
			m.mask |= c.mask
			if m.rule == nil {
				m.rule = c.rule
			}
			merged[code] = m
		}
	}

	var out []coupon.Rule
	for code, c := range merged {
		if bits.OnesCount(c.mask) >= in.cfg.Quorum {
			out = append(out, ruleFor(code, c.rule))
		}
	}
	slices.SortFunc(out, func(a, b coupon.Rule) int {
		switch {
		case a.Code < b.Code:
			return -1
		case a.Code > b.Code:
			return 1
		}
		return 0
	})
	return out, nil
}

func (in *Ingester) write(ctx context.Context, rules []coupon.Rule) (int, error) {
	lg := zctx.From(ctx)
	for i, rule := range rules {
		if err := in.rules.Upsert(ctx, rule); err != nil {
			return i, errors.Wrapf(err, "upsert coupon %s", rule.Code)
		}
		if (i+1)%100 == 0 || i+1 == len(rules) {
			lg.Info("Write progress", zap.Int("written", i+1), zap.Int("total", len(rules)))
		}
	}
	return len(rules), nil
}

// scan streams a gzip shard and calls fn for every well-formed code.
func (in *Ingester) scan(ctx context.Context, path string, fn func(entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	lg := zctx.From(ctx)
	scanner := bufio.NewScanner(gz)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok, err := parseLine(scanner.Text())
		if err != nil {
			lg.Debug("Rule columns ignored",
				zap.String("path", path),
				zap.Int("line", line),
				zap.Error(err),
			)
		}
		if !ok || len(e.code) < in.cfg.MinCodeLen || len(e.code) > in.cfg.MaxCodeLen {
			continue
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

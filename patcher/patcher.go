package patcher

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/QuarkChain/go-evmrepair/repair"
)

const defaultCacheCap = 1024

// Result is the outcome of patching one piece of code. It is shared between
// callers hitting the cache and must not be modified.
type Result struct {
	Code        []byte
	Graph       *repair.ControlFlowGraph
	Guarded     int
	Skipped     int
	Unvalidated int
	RevertPC    uint64
}

// Patcher disassembles code, guards the given findings and reassembles it.
// Results are cached by code and findings, so a Patcher is safe to share.
type Patcher struct {
	opts  repair.RepairOpts
	log   log.Logger
	cache *lru.Cache[common.Hash, *Result]
}

// New creates a patcher. A nil opts uses repair.DefaultRepairOpts.
func New(opts *repair.RepairOpts) *Patcher {
	if opts == nil {
		opts = repair.DefaultRepairOpts()
	}
	p := &Patcher{
		opts:  *opts,
		log:   opts.Logger,
		cache: lru.NewCache[common.Hash, *Result](defaultCacheCap),
	}
	if p.log == nil {
		p.log = log.Root()
	}
	return p
}

// cacheKey hashes the code together with the findings in order.
func cacheKey(code []byte, findings []Finding) common.Hash {
	buf := make([]byte, 0, len(findings)*16)
	for _, f := range findings {
		buf = binary.BigEndian.AppendUint64(buf, f.PC)
		buf = append(buf, byte(len(f.Kind)))
		buf = append(buf, f.Kind...)
		if f.IsValidated() {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return crypto.Keccak256Hash(code, buf)
}

// Patch returns code with a guard in front of every validated finding.
func (p *Patcher) Patch(code []byte, findings []Finding) (*Result, error) {
	key := cacheKey(code, findings)
	if res, ok := p.cache.Get(key); ok {
		cacheHitCounter.Inc(1)
		p.log.Trace("Patched code cache hit", "key", key)
		return res, nil
	}
	start := time.Now()
	res, err := p.patch(code, findings)
	if err != nil {
		failedCounter.Inc(1)
		return nil, err
	}
	patchTimer.UpdateSince(start)
	patchedCounter.Inc(1)
	guardCounter.Inc(int64(res.Guarded))
	skippedCounter.Inc(int64(res.Skipped))
	p.cache.Add(key, res)

	p.log.Debug("Patched code", "hash", crypto.Keccak256Hash(code), "size", len(code), "patched", len(res.Code),
		"guards", res.Guarded, "skipped", res.Skipped, "elapsed", common.PrettyDuration(time.Since(start)))
	return res, nil
}

func (p *Patcher) patch(code []byte, findings []Finding) (*Result, error) {
	opts := p.opts
	g, d, err := Disassemble(code, &opts)
	if err != nil {
		return nil, err
	}
	resolved, err := d.Resolve(findings)
	if err != nil {
		return nil, err
	}
	report, err := repair.Repair(g, resolved)
	if err != nil {
		return nil, err
	}
	return &Result{
		Code:        Assemble(g),
		Graph:       g,
		Guarded:     report.Guarded,
		Skipped:     report.Skipped,
		Unvalidated: report.Unvalidated,
		RevertPC:    report.RevertBlock.Start(),
	}, nil
}

// Cached reports whether the result for code and findings is cached.
func (p *Patcher) Cached(code []byte, findings []Finding) bool {
	return p.cache.Contains(cacheKey(code, findings))
}

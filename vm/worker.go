package vm

import (
	"math"
	"math/rand"

	"github.com/mickamy/kvstore/memory"
	"github.com/mickamy/kvstore/rdb"
	"github.com/mickamy/kvstore/value"
)

// JobKind distinguishes the two-phase threaded swap-out: PREPARE_SWAP
// sizes the serialized form, DO_SWAP writes it.
type JobKind int

const (
	PrepareSwap JobKind = iota
	DoSwap
)

// Job is one unit of pager work handed to a worker goroutine. DBIndex is
// opaque to this package; callers round-trip it through Result so a
// multi-database owner can route a completion back to the right keyspace.
type Job struct {
	Kind    JobKind
	Key     string
	Value   *value.Value
	DBIndex int
}

// Result is a completed Job, delivered back to the owning goroutine over
// Pool's Completions channel — Go's channel stands in for the self-pipe
// trick used to make worker completions visible to a poll()-based main
// loop; here the equivalent readable event is simply a channel receive.
type Result struct {
	Job       Job
	PageCount int64
	Desc      *value.SwapDescriptor
	Err       error
}

// Pool runs vm-max-threads worker goroutines that only ever touch a
// Value's payload and the swap file, never the keyspace.
type Pool struct {
	pager       *Pager
	jobs        chan Job
	Completions chan Result
	done        chan struct{}
}

// NewPool starts n worker goroutines around pager.
func NewPool(pager *Pager, n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		pager:       pager,
		jobs:        make(chan Job, 256),
		Completions: make(chan Result, 256),
		done:        make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			p.run(job)
		}
	}
}

func (p *Pool) run(job Job) {
	switch job.Kind {
	case PrepareSwap:
		// Computes the page count by serializing into an in-memory sink,
		// the same sizing trick Redis does against /dev/null.
		var buf countingBuffer
		err := rdb.EncodeValue(&buf, job.Value, p.pager.opts)
		pages := int64(0)
		if err == nil {
			pages = (int64(len(buf.b)) + p.pager.pageSize - 1) / p.pager.pageSize
			if pages == 0 {
				pages = 1
			}
		}
		p.Completions <- Result{Job: job, PageCount: pages, Err: err}
	case DoSwap:
		desc, err := p.pager.SwapOut(job.Value, 0)
		p.Completions <- Result{Job: job, Desc: desc, Err: err}
	}
}

// Submit enqueues a job for a worker to pick up.
func (p *Pool) Submit(j Job) { p.jobs <- j }

// Stop halts all workers. Pending jobs are abandoned; the caller is
// expected to drain the pager to empty before calling Stop.
func (p *Pool) Stop() { close(p.done) }

// SwapOutCandidate scores a sampled key by idle-seconds x log(1 +
// estimated-bytes) and returns whichever of the samples scores highest.
// Only MEMORY-state keys are eligible; callers filter that before
// sampling.
func SwapOutCandidate(keys []string, values []*value.Value, lastAccess []int64, nowUnix int64) (int, bool) {
	if len(keys) == 0 {
		return -1, false
	}
	best := -1
	bestScore := -1.0
	for i := range keys {
		idle := float64(nowUnix - lastAccess[i])
		if idle < 0 {
			idle = 0
		}
		size := float64(memory.Estimate(keys[i], values[i]))
		score := idle * math.Log(1+size)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best, best >= 0
}

// SampleUpTo returns up to n random indices from a population of size
// total, without biasing toward map iteration order.
func SampleUpTo(total, n int) []int {
	if total == 0 || n <= 0 {
		return nil
	}
	if n > total {
		n = total
	}
	idx := rand.Perm(total)
	return idx[:n]
}

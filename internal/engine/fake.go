package engine

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Fake is a deterministic in-memory Engine. It backs the test suites and the
// `engine: fake` runtime mode, which runs the full stack without model files
// or cgo. All knobs are optional; the zero value works.
type Fake struct {
	// InitErr makes Init fail until cleared.
	InitErr error
	// LoadErr makes every LoadModel fail.
	LoadErr error
	// TokenizeErr makes Tokenize fail.
	TokenizeErr error
	// DecodeErr makes Decode fail.
	DecodeErr error
	// EmbedErr makes Embeddings fail.
	EmbedErr error
	// ParamCount reported by every model. Default 1e6.
	ParamCount uint64
	// ReplyTokens emitted per generation before EOG. Default 16.
	ReplyTokens int
	// StepDelay is slept before each sample, to widen cancellation windows
	// in tests. Default 0.
	StepDelay time.Duration
	// RequireFile makes LoadModel fail for paths not registered via AddFile,
	// mimicking a missing artifact.
	RequireFile bool

	mu    sync.Mutex
	files map[string]struct{}

	// Counters for leak assertions.
	LoadCalls     atomic.Int64
	FreeCalls     atomic.Int64
	ContextsMade  atomic.Int64
	ContextsFreed atomic.Int64
}

var fakeVocab = []string{"the", "quick", "model", "said", "hello", "ocean", "haiku", "wave"}

// NewFake returns a Fake with defaults applied.
func NewFake() *Fake { return &Fake{} }

// AddFile registers a path as an existing model artifact for RequireFile mode.
func (f *Fake) AddFile(path string) {
	f.mu.Lock()
	if f.files == nil {
		f.files = make(map[string]struct{})
	}
	f.files[path] = struct{}{}
	f.mu.Unlock()
}

func (f *Fake) Init() error { return f.InitErr }

func (f *Fake) Close() {}

func (f *Fake) LoadModel(path string, params ModelParams) (Model, error) {
	f.LoadCalls.Add(1)
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	if f.RequireFile {
		f.mu.Lock()
		_, ok := f.files[path]
		f.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("open %s: no such file", path)
		}
	}
	n := f.ParamCount
	if n == 0 {
		n = 1_000_000
	}
	return &fakeModel{eng: f, path: path, params: params, numParams: n}, nil
}

type fakeModel struct {
	eng       *Fake
	path      string
	params    ModelParams
	numParams uint64
	freed     atomic.Bool
}

func (m *fakeModel) NewContext(params ContextParams) (Context, error) {
	if m.freed.Load() {
		return nil, fmt.Errorf("context on freed model %s", m.path)
	}
	m.eng.ContextsMade.Add(1)
	return &fakeContext{model: m}, nil
}

func (m *fakeModel) NewSampler(params SamplerParams) (Sampler, error) {
	if m.freed.Load() {
		return nil, fmt.Errorf("sampler on freed model %s", m.path)
	}
	return &fakeSampler{model: m, seed: params.Seed}, nil
}

func (m *fakeModel) Tokenize(text string) ([]int, error) {
	if err := m.eng.TokenizeErr; err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	out := make([]int, 0, len(words))
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		out = append(out, int(h.Sum32()%32000))
	}
	return out, nil
}

func (m *fakeModel) NumParams() uint64 { return m.numParams }

func (m *fakeModel) NumEmbd() int { return 8 }

func (m *fakeModel) Free() {
	if m.freed.CompareAndSwap(false, true) {
		m.eng.FreeCalls.Add(1)
	}
}

type fakeContext struct {
	model *fakeModel
	mu    sync.Mutex
	// step counts samples since the last prompt batch; -1 means finished.
	step    int
	prompt  []int
	last    int
	started bool
	freed   bool
}

func (c *fakeContext) Decode(tokens []int) error {
	if err := c.model.eng.DecodeErr; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return fmt.Errorf("decode on freed context")
	}
	// Continuation feeds back exactly the token Sample just produced.
	// Anything else, including a fresh one-token prompt, resets the
	// sequence.
	if len(tokens) == 1 && c.started && c.step > 0 && tokens[0] == c.last {
		return nil
	}
	c.prompt = append(c.prompt[:0], tokens...)
	c.step = 0
	c.last = -1
	c.started = true
	return nil
}

func (c *fakeContext) Embeddings() ([]float32, error) {
	if err := c.model.eng.EmbedErr; err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, fmt.Errorf("embeddings before decode")
	}
	dim := c.model.NumEmbd()
	out := make([]float32, dim)
	var sum int
	for _, t := range c.prompt {
		sum += t
	}
	for i := range out {
		out[i] = float32((sum+i)%97) / 97.0
	}
	return out, nil
}

func (c *fakeContext) Free() {
	c.mu.Lock()
	already := c.freed
	c.freed = true
	c.mu.Unlock()
	if !already {
		c.model.eng.ContextsFreed.Add(1)
	}
}

type fakeSampler struct {
	model *fakeModel
	seed  uint32
}

func (s *fakeSampler) Sample(ctx Context) (Token, error) {
	c, ok := ctx.(*fakeContext)
	if !ok {
		return Token{}, fmt.Errorf("sampler bound to foreign context")
	}
	if d := s.model.eng.StepDelay; d > 0 {
		time.Sleep(d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return Token{}, fmt.Errorf("sample before decode")
	}
	limit := s.model.eng.ReplyTokens
	if limit <= 0 {
		limit = 16
	}
	if c.step < 0 || c.step >= limit {
		c.step = -1
		return Token{ID: -1, EOG: true}, nil
	}
	var seedBase int
	for _, t := range c.prompt {
		seedBase += t
	}
	idx := (seedBase + int(s.seed) + c.step) % len(fakeVocab)
	piece := fakeVocab[idx]
	if c.step > 0 {
		piece = " " + piece
	}
	tok := Token{
		ID:    idx + 2, // ids 0 and 1 stand in for special tokens
		Piece: piece,
		Logit: -0.05 * float32(c.step+1),
	}
	c.step++
	c.last = tok.ID
	return tok, nil
}

func (s *fakeSampler) Accept(id int) {}

func (s *fakeSampler) Free() {}

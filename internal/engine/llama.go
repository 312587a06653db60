//go:build llama

package engine

// In-process llama.cpp backend via go-llama.cpp, enabled with `-tags=llama`.
//
// The binding drives generation through a push callback on a single internal
// context per model handle, so this file bridges push to pull: Predict runs
// on a goroutine that feeds a buffered channel, and Sample receives from it.
// Operations on contexts of the same model serialize on the model handle.
//
// cgo link directives: rpath $ORIGIN so the loader finds libllama.so next to
// the built binary, and -L../../bin for link time.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

type llamaEngine struct{}

// NewLlama returns the llama.cpp-backed engine.
func NewLlama() Engine { return &llamaEngine{} }

func (e *llamaEngine) Init() error { return nil }

func (e *llamaEngine) Close() {}

func (e *llamaEngine) LoadModel(path string, params ModelParams) (Model, error) {
	if path == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(maxi(params.ContextSize, 1)),
		llama.SetNBatch(maxi(params.BatchSize, 1)),
		llama.SetGPULayers(params.GPULayers),
		llama.SetMMap(params.UseMmap),
		llama.SetMlock(params.UseMlock),
	}
	if params.Embeddings {
		mo = append(mo, llama.EnableEmbeddings)
	}
	if params.F16Memory {
		mo = append(mo, llama.EnableF16Memory)
	}
	if params.Seed >= 0 {
		mo = append(mo, llama.SetModelSeed(params.Seed))
	}
	l, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaModel{
		l:         l,
		path:      path,
		params:    params,
		numParams: estimateParams(path),
	}, nil
}

// estimateParams derives a parameter count from the file size, assuming two
// bytes per parameter. The binding does not expose the real count.
func estimateParams(path string) uint64 {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() <= 0 {
		return 1
	}
	n := uint64(fi.Size()) / 2
	if n == 0 {
		n = 1
	}
	return n
}

type llamaModel struct {
	l         *llama.LLama
	path      string
	params    ModelParams
	numParams uint64

	// runMu serializes Predict/Embeddings: the binding owns one internal
	// context and one token callback per handle.
	runMu sync.Mutex

	// textMu guards the token-batch -> source-text table. Predict consumes
	// text, so Tokenize remembers the text for each batch it produced.
	textMu  sync.Mutex
	texts   map[uint64]string
	textLog []uint64

	freeOnce sync.Once
}

const textTableCap = 32

func tokenKey(tokens []int) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for _, t := range tokens {
		v := uint64(int64(t))
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		h.Write(b[:])
	}
	return h.Sum64()
}

func (m *llamaModel) rememberText(tokens []int, text string) {
	key := tokenKey(tokens)
	m.textMu.Lock()
	if m.texts == nil {
		m.texts = make(map[uint64]string, textTableCap)
	}
	if _, ok := m.texts[key]; !ok {
		m.textLog = append(m.textLog, key)
		if len(m.textLog) > textTableCap {
			delete(m.texts, m.textLog[0])
			m.textLog = m.textLog[1:]
		}
	}
	m.texts[key] = text
	m.textMu.Unlock()
}

func (m *llamaModel) textFor(tokens []int) (string, bool) {
	m.textMu.Lock()
	defer m.textMu.Unlock()
	s, ok := m.texts[tokenKey(tokens)]
	return s, ok
}

func (m *llamaModel) NewContext(params ContextParams) (Context, error) {
	return &llamaContext{m: m}, nil
}

func (m *llamaModel) NewSampler(params SamplerParams) (Sampler, error) {
	return &llamaSampler{m: m, params: params}, nil
}

func (m *llamaModel) Tokenize(text string) ([]int, error) {
	m.runMu.Lock()
	_, raw, err := m.l.TokenizeString(text)
	m.runMu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]int, len(raw))
	for i, t := range raw {
		out[i] = int(t)
	}
	m.rememberText(out, text)
	return out, nil
}

func (m *llamaModel) NumParams() uint64 { return m.numParams }

func (m *llamaModel) Free() {
	m.freeOnce.Do(func() {
		m.runMu.Lock()
		m.l.Free()
		m.runMu.Unlock()
	})
}

type llamaContext struct {
	m  *llamaModel
	mu sync.Mutex

	text   string
	tokens []int

	stream   chan Token
	stop     chan struct{}
	done     chan struct{}
	running  bool
	finished bool
	runErr   error
}

func (c *llamaContext) Decode(tokens []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tokens) == 1 && c.running && !c.finished {
		// Continuation of the in-flight sequence; Predict already consumed it.
		return nil
	}
	c.cancelLocked()
	text, ok := c.m.textFor(tokens)
	if !ok {
		return fmt.Errorf("no source text for %d-token batch", len(tokens))
	}
	c.text = text
	c.tokens = append(c.tokens[:0], tokens...)
	c.finished = false
	c.runErr = nil
	return nil
}

// cancelLocked stops any in-flight Predict and waits for its goroutine.
func (c *llamaContext) cancelLocked() {
	if !c.running {
		return
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	done := c.done
	c.mu.Unlock()
	<-done
	c.mu.Lock()
	c.running = false
	c.finished = false
	c.runErr = nil
}

func (c *llamaContext) startLocked(sp SamplerParams) {
	buf := c.m.params.ContextSize
	if buf < 16 {
		buf = 16
	}
	c.stream = make(chan Token, buf)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	c.finished = false
	c.runErr = nil
	go c.predict(c.text, sp, c.stream, c.stop, c.done)
}

func (c *llamaContext) predict(text string, sp SamplerParams, out chan Token, stop, done chan struct{}) {
	defer close(done)
	c.m.runMu.Lock()
	defer c.m.runMu.Unlock()
	next := 0
	c.m.l.SetTokenCallback(func(piece string) bool {
		t := Token{ID: next, Piece: piece}
		next++
		select {
		case out <- t:
			return true
		case <-stop:
			return false
		}
	})
	po := []llama.PredictOption{
		llama.SetTokens(maxi(c.m.params.ContextSize, 1)),
		llama.SetThreads(maxi(c.m.params.Threads, 1)),
		llama.SetTopP(nzf(sp.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(nzi(sp.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(nzf(sp.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetSeed(int(sp.Seed)),
	}
	if len(sp.Stop) > 0 {
		po = append(po, llama.SetStopWords(sp.Stop...))
	}
	_, err := c.m.l.Predict(text, po...)
	select {
	case <-stop:
		// Canceled runs report no error; the consumer is gone.
	default:
		c.runErr = err
	}
	close(out)
}

func (c *llamaContext) Embeddings() ([]float32, error) {
	c.mu.Lock()
	tokens := append([]int(nil), c.tokens...)
	c.mu.Unlock()
	if len(tokens) == 0 {
		return nil, errors.New("embeddings before decode")
	}
	c.m.runMu.Lock()
	defer c.m.runMu.Unlock()
	return c.m.l.TokenEmbeddings(tokens)
}

func (c *llamaContext) Free() {
	c.mu.Lock()
	c.cancelLocked()
	c.mu.Unlock()
}

type llamaSampler struct {
	m      *llamaModel
	params SamplerParams
}

func (s *llamaSampler) Sample(ctx Context) (Token, error) {
	c, ok := ctx.(*llamaContext)
	if !ok {
		return Token{}, errors.New("sampler bound to foreign context")
	}
	c.mu.Lock()
	if !c.running && !c.finished {
		if c.text == "" {
			c.mu.Unlock()
			return Token{}, errors.New("sample before decode")
		}
		c.startLocked(s.params)
	}
	ch := c.stream
	c.mu.Unlock()

	t, okRecv := <-ch
	if !okRecv {
		c.mu.Lock()
		c.finished = true
		c.running = false
		err := c.runErr
		c.mu.Unlock()
		if err != nil {
			return Token{}, err
		}
		return Token{ID: -1, EOG: true}, nil
	}
	return t, nil
}

func (s *llamaSampler) Accept(id int) {}

func (s *llamaSampler) Free() {}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func nzi(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func nzf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

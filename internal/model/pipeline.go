package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAnswerLen matches the question-answering pipeline default for
	// the longest answer span, in tokens.
	DefaultMaxAnswerLen = 15

	// WeightsFile is the quantized ONNX export of the model.
	WeightsFile = "onnx/model_quantized.onnx"

	defaultMaxSequence = 512
	docStride          = 128
)

var (
	// ErrEmptyContext is returned when there is no text to extract from.
	ErrEmptyContext = errors.New("context is empty")
	// ErrEmptyQuestion is returned for a question with no tokens.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrQuestionTooLong is returned when the question leaves no room for
	// context within the model's sequence length.
	ErrQuestionTooLong = errors.New("question is too long")
)

// Config is the subset of config.json the pipeline reads.
type Config struct {
	ModelType             string   `json:"model_type"`
	Architectures         []string `json:"architectures"`
	MaxPositionEmbeddings int      `json:"max_position_embeddings"`
}

// Answer is an extractive answer. Start and End are byte offsets of Text in
// the context, or -1 when the tokenizer offsets could not be mapped back.
type Answer struct {
	Text  string
	Score float64
	Start int
	End   int
}

// Pipeline answers questions by scoring every span of the supplied context
// with the network's start and end logits.
type Pipeline struct {
	config   Config
	encoder  Encoder
	session  Session
	cls, sep int
	maxSeq   int
	logger   *zap.Logger

	// The context is the same biography on every request.
	lastPassage string
	passageEnc  Encoding
}

// NewPipeline assembles a pipeline from a tokenizer and an open session.
func NewPipeline(cfg Config, enc Encoder, session Session, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cls, ok := enc.TokenID(clsToken)
	if !ok {
		return nil, fmt.Errorf("tokenizer has no %s token", clsToken)
	}
	sep, ok := enc.TokenID(sepToken)
	if !ok {
		return nil, fmt.Errorf("tokenizer has no %s token", sepToken)
	}
	maxSeq := cfg.MaxPositionEmbeddings
	if maxSeq <= 0 {
		maxSeq = defaultMaxSequence
	}
	return &Pipeline{
		config:  cfg,
		encoder: enc,
		session: session,
		cls:     cls,
		sep:     sep,
		maxSeq:  maxSeq,
		logger:  logger,
	}, nil
}

// Config returns the model configuration the pipeline was built from.
func (p *Pipeline) Config() Config {
	return p.config
}

// Close releases the inference session.
func (p *Pipeline) Close() error {
	return p.session.Close()
}

// Answer returns the highest scoring span of passage for question. At most
// maxAnswerLen tokens are returned; zero selects DefaultMaxAnswerLen. A
// passage longer than the model's sequence length is read in overlapping
// windows.
func (p *Pipeline) Answer(ctx context.Context, question, passage string, maxAnswerLen int) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	if strings.TrimSpace(passage) == "" {
		return Answer{}, ErrEmptyContext
	}
	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if maxAnswerLen <= 0 || maxAnswerLen > DefaultMaxAnswerLen {
		maxAnswerLen = DefaultMaxAnswerLen
	}

	q, err := p.encoder.Encode(question)
	if err != nil {
		return Answer{}, err
	}
	if len(q.IDs) == 0 {
		return Answer{}, ErrEmptyQuestion
	}
	c, err := p.encodePassage(passage)
	if err != nil {
		return Answer{}, err
	}
	if len(c.IDs) == 0 {
		return Answer{}, ErrEmptyContext
	}

	room := p.maxSeq - len(q.IDs) - 3
	if room < 1 {
		return Answer{}, ErrQuestionTooLong
	}

	first, last, best := -1, -1, -1.0
	ctxStart := len(q.IDs) + 2
	for _, w := range windows(len(c.IDs), room, min(docStride, room/2)) {
		ids := make([]int64, 0, ctxStart+w.end-w.start+1)
		ids = append(ids, int64(p.cls))
		for _, id := range q.IDs {
			ids = append(ids, int64(id))
		}
		ids = append(ids, int64(p.sep))
		for _, id := range c.IDs[w.start:w.end] {
			ids = append(ids, int64(id))
		}
		ids = append(ids, int64(p.sep))

		mask := make([]int64, len(ids))
		for i := range mask {
			mask[i] = 1
		}

		startLogits, endLogits, err := p.session.Run(ctx, ids, mask)
		if err != nil {
			return Answer{}, err
		}
		if len(startLogits) != len(ids) || len(endLogits) != len(ids) {
			return Answer{}, fmt.Errorf("model returned %d/%d logits for %d tokens", len(startLogits), len(endLogits), len(ids))
		}

		s, e, score := bestSpan(startLogits, endLogits, ctxStart, ctxStart+w.end-w.start, maxAnswerLen)
		if score > best {
			first, last, best = w.start+s-ctxStart, w.start+e-ctxStart, score
		}
	}

	text, start, end := spanText(passage, c, first, last)
	ans := Answer{Text: text, Score: best, Start: start, End: end}
	p.logger.Debug("answered",
		zap.String("question", question),
		zap.Int("start", ans.Start),
		zap.Int("end", ans.End),
		zap.Float64("score", ans.Score))
	return ans, nil
}

func (p *Pipeline) encodePassage(passage string) (Encoding, error) {
	if passage == p.lastPassage && p.passageEnc.IDs != nil {
		return p.passageEnc, nil
	}
	enc, err := p.encoder.Encode(passage)
	if err != nil {
		return Encoding{}, err
	}
	p.lastPassage, p.passageEnc = passage, enc
	return enc, nil
}

type window struct{ start, end int }

// windows covers n tokens with spans of at most size tokens that overlap by
// stride tokens.
func windows(n, size, stride int) []window {
	if n <= size {
		return []window{{0, n}}
	}
	step := size - stride
	if step <= 0 {
		step = size
	}
	var out []window
	for start := 0; ; start += step {
		end := min(start+size, n)
		out = append(out, window{start, end})
		if end == n {
			return out
		}
	}
}

// bestSpan picks the [first, last] token pair within [lo, hi) that maximises
// p(start) * p(end), with last-first < maxLen.
func bestSpan(startLogits, endLogits []float32, lo, hi, maxLen int) (int, int, float64) {
	ps, pe := softmax(startLogits), softmax(endLogits)
	first, last, best := lo, lo, -1.0
	for i := lo; i < hi; i++ {
		for j := i; j < hi && j-i < maxLen; j++ {
			if score := ps[i] * pe[j]; score > best {
				first, last, best = i, j, score
			}
		}
	}
	return first, last, best
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	peak := float64(logits[0])
	for _, v := range logits[1:] {
		peak = math.Max(peak, float64(v))
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// LoaderOptions configures where a Loader keeps model files and how it opens
// them. Zero fields take the defaults noted on each.
type LoaderOptions struct {
	// CacheDir holds downloaded files; default <user cache dir>/portfolio.
	CacheDir string
	// Weights is the ONNX file within the model; default WeightsFile.
	Weights string
	// NewEncoder opens tokenizer.json; default LoadTokenizer.
	NewEncoder EncoderFunc
	// NewSession opens the weights; default ONNXSession("").
	NewSession SessionFunc
}

// Loader fetches the model files and builds a Pipeline.
type Loader struct {
	hub     *Hub
	modelID string
	opts    LoaderOptions
	logger  *zap.Logger
}

// NewLoader creates a loader for modelID served by hub.
func NewLoader(hub *Hub, modelID string, opts LoaderOptions, logger *zap.Logger) *Loader {
	if modelID == "" {
		modelID = ModelID
	}
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir()
	}
	if opts.Weights == "" {
		opts.Weights = WeightsFile
	}
	if opts.NewEncoder == nil {
		opts.NewEncoder = LoadTokenizer
	}
	if opts.NewSession == nil {
		opts.NewSession = ONNXSession("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{hub: hub, modelID: modelID, opts: opts, logger: logger}
}

// DefaultCacheDir is the directory model files are kept in when none is
// configured.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "portfolio")
	}
	return filepath.Join(os.TempDir(), "portfolio")
}

// ModelID returns the identifier this loader fetches.
func (l *Loader) ModelID() string {
	return l.modelID
}

// Load makes sure config.json, tokenizer.json and the weights are on disk,
// downloading the missing ones, and opens the pipeline over them.
func (l *Loader) Load(ctx context.Context, progress ProgressFunc) (*Pipeline, error) {
	dir := filepath.Join(l.opts.CacheDir, filepath.FromSlash(l.modelID))
	for _, file := range []string{"config.json", "tokenizer.json", l.opts.Weights} {
		if err := l.ensure(ctx, dir, file, progress); err != nil {
			return nil, err
		}
	}

	cfgData, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(cfgData, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}

	enc, err := l.opts.NewEncoder(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, err
	}
	session, err := l.opts.NewSession(filepath.Join(dir, filepath.FromSlash(l.opts.Weights)))
	if err != nil {
		return nil, err
	}
	p, err := NewPipeline(cfg, enc, session, l.logger.Named("pipeline"))
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	l.logger.Info("pipeline ready",
		zap.String("model", l.modelID),
		zap.String("model_type", cfg.ModelType),
		zap.Int("max_sequence", p.maxSeq))
	return p, nil
}

func (l *Loader) ensure(ctx context.Context, dir, file string, progress ProgressFunc) error {
	dst := filepath.Join(dir, filepath.FromSlash(file))
	if info, err := os.Stat(dst); err == nil && info.Size() > 0 {
		l.logger.Debug("model file cached", zap.String("path", dst))
		return nil
	}
	return l.hub.Download(ctx, l.modelID, file, dst, progress)
}

package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testConfigJSON = `{"model_type":"distilbert","architectures":["DistilBertForQuestionAnswering"],"max_position_embeddings":512}`

const testPassage = "Kenneth Sanchez is an engineer. He lives in Bellevue, Washington."

// wordEncoder splits on spaces and punctuation and hands out ids on first
// sight, with the BERT special tokens fixed.
type wordEncoder struct {
	vocab map[string]int
}

func newWordEncoder() *wordEncoder {
	return &wordEncoder{vocab: map[string]int{clsToken: 101, sepToken: 102}}
}

func (w *wordEncoder) id(tok string) int {
	if id, ok := w.vocab[tok]; ok {
		return id
	}
	id := 1000 + len(w.vocab)
	w.vocab[tok] = id
	return id
}

func (w *wordEncoder) Encode(text string) (Encoding, error) {
	var enc Encoding
	add := func(start, end int) {
		enc.Tokens = append(enc.Tokens, text[start:end])
		enc.IDs = append(enc.IDs, w.id(text[start:end]))
		enc.Offsets = append(enc.Offsets, [2]int{start, end})
	}
	start := -1
	for i, r := range text {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		if start >= 0 && !word {
			add(start, i)
			start = -1
		}
		switch {
		case word && start < 0:
			start = i
		case !word && !unicode.IsSpace(r):
			add(i, i+len(string(r)))
		}
	}
	if start >= 0 {
		add(start, len(text))
	}
	return enc, nil
}

func (w *wordEncoder) TokenID(tok string) (int, bool) {
	id, ok := w.vocab[tok]
	return id, ok
}

// peakSession puts a high start logit on startID and a high end logit on
// endID wherever they appear, and records each input length.
type peakSession struct {
	startID, endID int64
	lengths        []int
	closed         bool
	err            error
}

func (s *peakSession) Run(ctx context.Context, ids, mask []int64) ([]float32, []float32, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.lengths = append(s.lengths, len(ids))
	start := make([]float32, len(ids))
	end := make([]float32, len(ids))
	for i, id := range ids {
		if id == s.startID {
			start[i] = 10
		}
		if id == s.endID {
			end[i] = 10
		}
	}
	return start, end, nil
}

func (s *peakSession) Close() error {
	s.closed = true
	return nil
}

func newTestPipeline(t *testing.T, cfg Config, start, end string) (*Pipeline, *peakSession) {
	t.Helper()
	enc := newWordEncoder()
	sess := &peakSession{startID: int64(enc.id(start)), endID: int64(enc.id(end))}
	p, err := NewPipeline(cfg, enc, sess, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p, sess
}

func TestPipelineAnswerReturnsPeakSpan(t *testing.T) {
	p, sess := newTestPipeline(t, Config{}, "Bellevue", "Washington")

	ans, err := p.Answer(context.Background(), "Where does Kenneth live?", testPassage, 0)
	require.NoError(t, err)
	assert.Equal(t, "Bellevue, Washington", ans.Text)
	assert.Equal(t, testPassage[ans.Start:ans.End], ans.Text)
	assert.Greater(t, ans.Score, 0.0)
	assert.Equal(t, []int{2 + 5 + 1 + 13}, sess.lengths, "[CLS] question [SEP] context [SEP]")
}

func TestPipelineAnswerIgnoresQuestionTokens(t *testing.T) {
	p, _ := newTestPipeline(t, Config{}, "Bellevue", "Bellevue")

	// Bellevue peaks in both the question and the context; only the context
	// occurrence may be returned.
	ans, err := p.Answer(context.Background(), "Is Bellevue home?", testPassage, 0)
	require.NoError(t, err)
	assert.Equal(t, "Bellevue", ans.Text)
	assert.Equal(t, strings.Index(testPassage, "Bellevue"), ans.Start)
}

func TestPipelineAnswerRespectsMaxLen(t *testing.T) {
	p, _ := newTestPipeline(t, Config{}, "Kenneth", "Washington")

	ans, err := p.Answer(context.Background(), "Who?", testPassage, 2)
	require.NoError(t, err)
	enc, err := newWordEncoder().Encode(ans.Text)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(enc.IDs), 2)
}

func TestPipelineAnswerSlidesOverLongContext(t *testing.T) {
	var words []string
	for i := 0; i < 20; i++ {
		words = append(words, fmt.Sprintf("w%d", i))
	}
	passage := strings.Join(words, " ")
	p, sess := newTestPipeline(t, Config{MaxPositionEmbeddings: 12}, "w17", "w18")

	ans, err := p.Answer(context.Background(), "which", passage, 0)
	require.NoError(t, err)
	assert.Equal(t, "w17 w18", ans.Text)
	assert.Len(t, sess.lengths, 4, "windows of 8 tokens overlapping by 4")
	for _, n := range sess.lengths {
		assert.LessOrEqual(t, n, 12)
	}
}

func TestPipelineAnswerErrors(t *testing.T) {
	p, sess := newTestPipeline(t, Config{MaxPositionEmbeddings: 6}, "a", "b")

	_, err := p.Answer(context.Background(), "anything", "   ", 0)
	assert.ErrorIs(t, err, ErrEmptyContext)

	_, err = p.Answer(context.Background(), "", testPassage, 0)
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = p.Answer(context.Background(), "one two three", testPassage, 0)
	assert.ErrorIs(t, err, ErrQuestionTooLong)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Answer(ctx, "Who?", testPassage, 0)
	assert.ErrorIs(t, err, context.Canceled)

	sess.err = errors.New("bad graph")
	_, err = p.Answer(context.Background(), "Who?", testPassage, 0)
	assert.EqualError(t, err, "bad graph")
}

func TestNewPipelineNeedsSpecialTokens(t *testing.T) {
	enc := &wordEncoder{vocab: map[string]int{clsToken: 1}}
	_, err := NewPipeline(Config{}, enc, &peakSession{}, nil)
	assert.ErrorContains(t, err, sepToken)
}

func TestBestSpan(t *testing.T) {
	start := []float32{5, 0, 0, 3, 0, 0}
	end := []float32{5, 0, 0, 0, 0, 4}

	first, last, score := bestSpan(start, end, 1, 6, 15)
	assert.Equal(t, 3, first, "position 0 lies outside the context")
	assert.Equal(t, 5, last)
	assert.Greater(t, score, 0.0)

	first, last, _ = bestSpan(start, end, 1, 6, 2)
	assert.LessOrEqual(t, last-first, 1)
}

func TestWindows(t *testing.T) {
	assert.Equal(t, []window{{0, 5}}, windows(5, 8, 4))
	assert.Equal(t, []window{{0, 8}, {4, 12}, {8, 14}}, windows(14, 8, 4))
	assert.Equal(t, []window{{0, 3}, {3, 6}, {6, 7}}, windows(7, 3, 3))
}

func TestSpanTextFallsBackToTokens(t *testing.T) {
	enc := Encoding{
		Tokens:  []string{"Bell", "##evue", "WA"},
		Offsets: [][2]int{{0, 0}, {0, 0}, {0, 0}},
	}
	text, start, end := spanText("unrelated", enc, 0, 2)
	assert.Equal(t, "Bellevue WA", text)
	assert.Equal(t, -1, start)
	assert.Equal(t, -1, end)
}

func TestLoadTokenizerMissingFile(t *testing.T) {
	_, err := LoadTokenizer(filepath.Join(t.TempDir(), "tokenizer.json"))
	assert.Error(t, err)
}

func newTestHub(t *testing.T, files map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()

		prefix := "/" + ModelID + "/resolve/main/"
		body, ok := files[strings.TrimPrefix(r.URL.Path, prefix)]
		if !strings.HasPrefix(r.URL.Path, prefix) || !ok {
			http.Error(w, "Entry not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &requested
}

func testLoaderOptions(t *testing.T, sess *peakSession, opened *[]string) LoaderOptions {
	t.Helper()
	return LoaderOptions{
		CacheDir: t.TempDir(),
		NewEncoder: func(path string) (Encoder, error) {
			*opened = append(*opened, filepath.Base(path))
			return newWordEncoder(), nil
		},
		NewSession: func(path string) (Session, error) {
			*opened = append(*opened, filepath.ToSlash(path))
			return sess, nil
		},
	}
}

var testFiles = map[string]string{
	"config.json":    testConfigJSON,
	"tokenizer.json": `{"model":{"type":"WordPiece"}}`,
	WeightsFile:      "onnx-bytes",
}

func TestLoaderDownloadsWeightsWithProgress(t *testing.T) {
	server, requested := newTestHub(t, testFiles)

	var opened []string
	opts := testLoaderOptions(t, &peakSession{}, &opened)
	loader := NewLoader(NewHub(server.URL, server.Client(), zaptest.NewLogger(t)), "", opts, zaptest.NewLogger(t))
	assert.Equal(t, ModelID, loader.ModelID())

	var events []ProgressEvent
	p, err := loader.Load(context.Background(), func(ev ProgressEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	assert.Equal(t, "distilbert", p.Config().ModelType)

	prefix := "/" + ModelID + "/resolve/main/"
	assert.Equal(t, []string{prefix + "config.json", prefix + "tokenizer.json", prefix + WeightsFile}, *requested)

	weights := filepath.Join(opts.CacheDir, filepath.FromSlash(ModelID), filepath.FromSlash(WeightsFile))
	data, err := os.ReadFile(weights)
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(data))
	require.Len(t, opened, 2)
	assert.Equal(t, "tokenizer.json", opened[0])
	assert.Equal(t, filepath.ToSlash(weights), opened[1])

	var last ProgressEvent
	downloading := 0
	for _, ev := range events {
		if ev.Status == StatusDownloading {
			downloading++
			assert.GreaterOrEqual(t, ev.Percent(), 0)
			assert.LessOrEqual(t, ev.Percent(), 100)
		}
		last = ev
	}
	assert.Greater(t, downloading, 0)
	assert.Equal(t, StatusDone, last.Status)
	assert.Equal(t, WeightsFile, last.File)
	assert.Equal(t, 100, last.Percent())
}

func TestLoaderReusesCachedFiles(t *testing.T) {
	server, requested := newTestHub(t, testFiles)
	hub := NewHub(server.URL, server.Client(), nil)

	var opened []string
	opts := testLoaderOptions(t, &peakSession{}, &opened)
	_, err := NewLoader(hub, ModelID, opts, nil).Load(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, *requested, 3)

	_, err = NewLoader(hub, ModelID, opts, nil).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, *requested, 3, "second load reads the cache")
}

func TestLoaderReportsAssetError(t *testing.T) {
	server, _ := newTestHub(t, map[string]string{
		"config.json":    testConfigJSON,
		"tokenizer.json": "{}",
	})

	var opened []string
	opts := testLoaderOptions(t, &peakSession{}, &opened)
	_, err := NewLoader(NewHub(server.URL, server.Client(), nil), ModelID, opts, nil).Load(context.Background(), nil)
	require.Error(t, err)

	var assetErr *AssetError
	require.True(t, errors.As(err, &assetErr))
	assert.Equal(t, http.StatusNotFound, assetErr.StatusCode)
	assert.Equal(t, WeightsFile, assetErr.File)
	assert.Empty(t, opened, "nothing is opened before every file is present")

	_, statErr := os.Stat(filepath.Join(opts.CacheDir, filepath.FromSlash(ModelID), filepath.FromSlash(WeightsFile)))
	assert.True(t, os.IsNotExist(statErr), "failed download leaves no file behind")
}

func TestLoaderReportsRuntimeError(t *testing.T) {
	server, _ := newTestHub(t, testFiles)

	var opened []string
	opts := testLoaderOptions(t, &peakSession{}, &opened)
	opts.NewSession = func(string) (Session, error) { return nil, ErrRuntimeUnavailable }

	_, err := NewLoader(NewHub(server.URL, server.Client(), nil), ModelID, opts, nil).Load(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
}

func TestLoaderClosesSessionOnBadTokenizer(t *testing.T) {
	server, _ := newTestHub(t, testFiles)

	sess := &peakSession{}
	var opened []string
	opts := testLoaderOptions(t, sess, &opened)
	opts.NewEncoder = func(string) (Encoder, error) {
		return &wordEncoder{vocab: map[string]int{}}, nil
	}

	_, err := NewLoader(NewHub(server.URL, server.Client(), nil), ModelID, opts, nil).Load(context.Background(), nil)
	assert.Error(t, err)
	assert.True(t, sess.closed)
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, -1, ProgressEvent{Loaded: 10}.Percent())
	assert.Equal(t, 50, ProgressEvent{Loaded: 5, Total: 10}.Percent())
	assert.Equal(t, 33, ProgressEvent{Loaded: 1, Total: 3}.Percent())
}

func TestHubFileURL(t *testing.T) {
	hub := NewHub("https://example.test/", nil, nil)
	assert.Equal(t,
		"https://example.test/Xenova/distilbert-base-cased-distilled-squad/resolve/main/config.json",
		hub.FileURL(ModelID, "config.json"))
	assert.Equal(t,
		"https://example.test/Xenova/distilbert-base-cased-distilled-squad/resolve/main/onnx/model%20v2.onnx",
		hub.FileURL(ModelID, "onnx/model v2.onnx"))
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func TestFetchWithoutContentLength(t *testing.T) {
	var gotURL string
	hub := NewHub("https://hub.test", doerFunc(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(strings.NewReader(testConfigJSON)),
			ContentLength: -1,
		}, nil
	}), nil)

	var percents []int
	data, err := hub.Fetch(context.Background(), ModelID, "config.json", func(ev ProgressEvent) {
		if ev.Status == StatusDownloading {
			percents = append(percents, ev.Percent())
		}
	})
	require.NoError(t, err)
	assert.Equal(t, testConfigJSON, string(data))
	assert.Equal(t, "https://hub.test/"+ModelID+"/resolve/main/config.json", gotURL)
	require.NotEmpty(t, percents)
	for _, p := range percents {
		assert.Equal(t, -1, p, "unknown total yields no percentage")
	}
}

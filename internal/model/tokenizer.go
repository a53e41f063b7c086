package model

import (
	"fmt"
	"unicode/utf8"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// Encoding is one tokenized text. Offsets holds the [start, end) byte span of
// the source text each token came from.
type Encoding struct {
	IDs     []int
	Tokens  []string
	Offsets [][2]int
}

// Encoder turns text into model token ids.
type Encoder interface {
	Encode(text string) (Encoding, error)
	TokenID(token string) (int, bool)
}

// EncoderFunc opens an Encoder from a tokenizer.json on disk.
type EncoderFunc func(path string) (Encoder, error)

// wordPiece is the Hugging Face tokenizer described by tokenizer.json.
type wordPiece struct {
	tk *tokenizer.Tokenizer
}

// LoadTokenizer reads a Hugging Face tokenizer.json.
func LoadTokenizer(path string) (Encoder, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &wordPiece{tk: tk}, nil
}

// Encode tokenizes text without the [CLS]/[SEP] decoration; the pipeline
// adds those itself when it assembles question and context.
func (w *wordPiece) Encode(text string) (Encoding, error) {
	en, err := w.tk.EncodeSingle(text, false)
	if err != nil {
		return Encoding{}, fmt.Errorf("encode: %w", err)
	}
	enc := Encoding{
		IDs:     append([]int(nil), en.Ids...),
		Tokens:  append([]string(nil), en.Tokens...),
		Offsets: make([][2]int, len(en.Offsets)),
	}
	for i, o := range en.Offsets {
		if len(o) == 2 {
			enc.Offsets[i] = [2]int{o[0], o[1]}
		}
	}
	return enc, nil
}

func (w *wordPiece) TokenID(token string) (int, bool) {
	return w.tk.TokenToId(token)
}

// spanText returns text[start:end] when the offsets form a valid slice of
// text, and the joined WordPiece tokens otherwise.
func spanText(text string, enc Encoding, first, last int) (string, int, int) {
	start, end := enc.Offsets[first][0], enc.Offsets[last][1]
	if start >= 0 && start < end && end <= len(text) &&
		utf8.RuneStart(text[start]) && (end == len(text) || utf8.RuneStart(text[end])) {
		return text[start:end], start, end
	}

	var out []byte
	for i := first; i <= last && i < len(enc.Tokens); i++ {
		tok := enc.Tokens[i]
		if len(tok) > 2 && tok[:2] == "##" {
			out = append(out, tok[2:]...)
			continue
		}
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, tok...)
	}
	return string(out), -1, -1
}

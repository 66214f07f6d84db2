package markov

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// maxFragmentSize bounds a single whitespace-free run of text when reading
// from a stream.
const maxFragmentSize = 16 << 20

// punctuation is the fixed set of characters that PolicyPunctuation splits
// off the edges of a fragment.
const punctuation = `!.,;:-"'()[]/`

// DefaultTokenizer is a default implementation of the Tokenizer interface.
// It splits text on Unicode whitespace and, depending on its Policy, peels
// punctuation off the edges of each fragment. Sentence-ending punctuation is
// identified as End-Of-Chain (EOC) tokens.
// Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	policy            Policy
	separator         string
	eocRegex          *regexp.Regexp
	separatorExcRegex *regexp.Regexp
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithSeparator Sets the character used for joining tokens during generation.
// Default: " "
func WithSeparator(sep string) Option {
	return func(t *DefaultTokenizer) {
		t.separator = sep
	}
}

// WithEOCRegex sets the regex string to use when deciding whether a token is an EOC token or not.
// Default: `^[.!?]$`
func WithEOCRegex(eocRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.eocRegex = regexp.MustCompile(eocRegex)
	}
}

// WithSeparatorExcRegex sets the regex string to use when deciding whether to add a separator before a token.
// By default every token is preceded by the separator.
func WithSeparatorExcRegex(splitExcRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.separatorExcRegex = regexp.MustCompile(splitExcRegex)
	}
}

// NewDefaultTokenizer creates a new tokenizer using PolicyPunctuation, which can be
// customized by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		policy:    PolicyPunctuation,
		separator: " ",
		// This regex checks if a token is one of the sentence-ending punctuation marks.
		eocRegex: regexp.MustCompile(`^[.!?]$`),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewTokenizer creates a tokenizer for the given policy. It returns an error
// wrapping ErrInvalidPolicy if the policy is not supported.
func NewTokenizer(policy Policy, opts ...Option) (*DefaultTokenizer, error) {
	p, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	t := NewDefaultTokenizer(opts...)
	t.policy = p
	return t, nil
}

// Policy returns the tokenization policy in use.
func (t *DefaultTokenizer) Policy() Policy {
	return t.policy
}

// Separator Returns the configured separator string.
func (t *DefaultTokenizer) Separator(_, next string) string {
	if t.separatorExcRegex != nil && t.separatorExcRegex.MatchString(next) {
		return ""
	}
	return t.separator
}

// EOC reports whether text is a sentence-ending token.
func (t *DefaultTokenizer) EOC(text string) bool {
	return t.eocRegex.MatchString(text)
}

// Tokenize splits text into tokens in a single left-to-right pass. The result
// depends only on text and the tokenizer's configuration.
func (t *DefaultTokenizer) Tokenize(text string) []Token {
	var words []string
	for _, fragment := range strings.Fields(text) {
		words = t.appendFragment(words, fragment)
	}
	tokens := make([]Token, len(words))
	for i, word := range words {
		tokens[i] = Token{Text: word, EOC: t.EOC(word)}
	}
	return tokens
}

// appendFragment appends the tokens of one whitespace-free fragment to dst.
func (t *DefaultTokenizer) appendFragment(dst []string, fragment string) []string {
	if fragment == "" {
		return dst
	}
	if t.policy != PolicyPunctuation || len(fragment) == 1 {
		return append(dst, fragment)
	}

	if isPunctuation(fragment[0]) {
		dst = append(dst, fragment[:1])
		fragment = fragment[1:]
	}
	var trailing string
	if len(fragment) > 1 && isPunctuation(fragment[len(fragment)-1]) {
		trailing = fragment[len(fragment)-1:]
		fragment = fragment[:len(fragment)-1]
	}
	dst = append(dst, fragment)
	if trailing != "" {
		dst = append(dst, trailing)
	}
	return dst
}

func isPunctuation(c byte) bool {
	return strings.IndexByte(punctuation, c) >= 0
}

// NewStream Returns the stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFragmentSize)
	scanner.Split(bufio.ScanWords)
	return &DefaultStreamTokenizer{
		scanner:   scanner,
		buffer:    []string{},
		tokenizer: t,
	}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer interface.
// It reads whitespace-separated fragments with a bufio.Scanner and splits them
// exactly as DefaultTokenizer.Tokenize does.
type DefaultStreamTokenizer struct {
	scanner   *bufio.Scanner
	buffer    []string
	tokenizer *DefaultTokenizer
}

// Next returns the next token from the stream. It returns a Token and a nil error on
// success. When the stream is exhausted, it returns a nil Token and io.EOF.
// Any other error indicates a problem reading from the underlying stream.
func (s *DefaultStreamTokenizer) Next() (*Token, error) {
	for len(s.buffer) == 0 { // Loop until we have tokens
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.buffer = s.tokenizer.appendFragment(s.buffer[:0], s.scanner.Text())
	}

	word := s.buffer[0]
	s.buffer = s.buffer[1:] // Consume the token

	return &Token{Text: word, EOC: s.tokenizer.EOC(word)}, nil
}

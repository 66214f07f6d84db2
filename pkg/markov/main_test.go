package markov

import (
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// sceneCorpus is the reference corpus used across the package tests.
const sceneCorpus = "the cat sat on the mat. the dog sat on the rug."

// scriptedRand replays a fixed list of values, cycling when exhausted.
type scriptedRand struct {
	values []float64
	next   int
}

func (s *scriptedRand) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// setupTestModel builds a model from corpus with the default tokenizer.
func setupTestModel(t *testing.T, corpus string) *Model {
	t.Helper()
	model, err := BuildModel(corpus, PolicyPunctuation)
	if err != nil {
		t.Fatalf("BuildModel() error = %v", err)
	}
	return model
}

// setupTestGenerator is a convenience helper that builds the scene model and a Generator for it.
func setupTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(setupTestModel(t, sceneCorpus), NewDefaultTokenizer())
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func tokenTexts(tokens []Token) []string {
	texts := make([]string, len(tokens))
	for i, token := range tokens {
		texts[i] = token.Text
	}
	return texts
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}

/*
Package markov provides a small, in-memory toolkit for building first-order
Markov ("bigram") models of word succession and generating text from them.

A model is built once from a corpus: the text is tokenized, every pair of
adjacent tokens is counted, and the counts are turned into a table of
weighted successors for each token. The resulting Model is read-only and
safe for concurrent use. Text is produced by a Generator, which samples
successors with an injectable random source so that output can be made
reproducible.

	model, err := markov.BuildModel(text, markov.PolicyPunctuation)
	if err != nil {
		return err
	}
	gen, _ := markov.NewGenerator(model, markov.NewDefaultTokenizer())
	out, err := gen.Generate(ctx, "the", markov.WithMaxLength(8), markov.WithEarlyTermination(false))
*/
package markov

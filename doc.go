// Package filler scores filler-word predictions from a sequence tagger.
//
// Every position of a transcribed utterance carries a class: 0 means "no filler",
// 1..N name a filler word ("um", "uh", ...). A model emits one probability vector per
// position; the argmax of that vector is its predicted class.
//
// # Quick Start
//
//	ev, err := filler.New([]string{"eto", "ano"}, filler.Rates{"eto": 0.6, "ano": 0.4},
//	    filler.WithSpeakers(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := ev.Evaluate(pairs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Position.FScore, report.Word.FScore)
//
// # Scores
//
// Position scores treat every non-zero class as "filler present". Class scores are
// one-vs-rest for a single filler. Word scores blend the class scores by filler rate.
// A metric whose denominator is zero is Undefined rather than zero.
//
// # Thread Safety
//
// Evaluator is immutable after New and safe for concurrent use. Each Evaluate call
// tallies its batch on a bounded set of goroutines, configurable via WithWorkers.
package filler

package plagiarism

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Synthesizer produces the result of a paid check.
type Synthesizer interface {
	Synthesize(job Job) Result
}

var (
	sourceWeights = [...]float64{0.4, 0.3, 0.2, 0.1}
	moduleLabels  = [...]string{"INTERNET PLUS", "eLIBRARY.RU", "Antiplag.Uz"}
)

const (
	minOriginality   = 60.0
	originalitySpan  = 39.8
	placeholderLinks = "https://antiplag.uz/sources/%s/%d"
)

// RandomSynthesizer stands in for a real anti-plagiarism backend: uniform
// originality in [60, 99.8), the rest split over four sources at 4:3:2:1.
type RandomSynthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSynthesizer draws from src, or from the global source when src is
// nil.
func NewRandomSynthesizer(src rand.Source) *RandomSynthesizer {
	s := &RandomSynthesizer{}
	if src != nil {
		s.rng = rand.New(src)
	}
	return s
}

func (s *RandomSynthesizer) float64() float64 {
	if s.rng == nil {
		return rand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *RandomSynthesizer) Synthesize(job Job) Result {
	originality := minOriginality + s.float64()*originalitySpan
	plagiarism := 100 - originality

	sources := make([]Source, len(sourceWeights))
	for i, w := range sourceWeights {
		sources[i] = Source{
			SimilarityPercent: plagiarism * w,
			SourceLink:        fmt.Sprintf(placeholderLinks, job.MerchantTransactionID, i+1),
			ModuleType:        moduleLabels[i%len(moduleLabels)],
		}
	}
	return Result{
		OriginalityPercent: originality,
		PlagiarismPercent:  plagiarism,
		Sources:            sources,
	}
}

package generator_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/glizzus/talkback/internal/generator"
)

func TestUUIDV4Generator_Next_Concurrent(t *testing.T) {
	regex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	gen := generator.UUIDV4Generator{}

	var mu sync.Mutex
	seen := make(map[string]struct{})

	total := 10000
	concurrency := 10
	batchSize := total / concurrency

	var wg sync.WaitGroup
	wg.Add(concurrency)

	for range concurrency {
		go func() {
			defer wg.Done()
			for range batchSize {
				id, err := gen.Next()
				if err != nil {
					t.Error("expected no error, got:", err)
					return
				}
				mu.Lock()
				if _, ok := seen[id]; ok {
					mu.Unlock()
					t.Errorf("expected a unique ID, got duplicate: %s", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()

				if !regex.MatchString(id) {
					t.Errorf("expected valid UUID format, got %s", id)
					return
				}
			}
		}()
	}

	wg.Wait()
}

func TestPrefixedGenerator(t *testing.T) {
	tc := []struct {
		name  string
		gen   *generator.PrefixedGenerator
		regex *regexp.Regexp
	}{
		{
			name:  "event ids",
			gen:   generator.EventIDs(),
			regex: regexp.MustCompile(`^evt_[0-9a-f]{32}$`),
		},
		{
			name:  "session ids",
			gen:   generator.SessionIDs(),
			regex: regexp.MustCompile(`^sess_[0-9a-f]{32}$`),
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			first, err := test.gen.Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			second, err := test.gen.Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if first == second {
				t.Errorf("expected distinct ids, got %s twice", first)
			}
			if !test.regex.MatchString(first) {
				t.Errorf("unexpected id format: %s", first)
			}
		})
	}
}

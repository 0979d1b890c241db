package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journez/backend/internal/ai"
	"journez/backend/internal/parse"
	"journez/backend/internal/places"
)

type lookupFunc func(ctx context.Context, name, location string) (*places.Detail, error)

func (f lookupFunc) Lookup(ctx context.Context, name, location string) (*places.Detail, error) {
	return f(ctx, name, location)
}

func noMatch(context.Context, string, string) (*places.Detail, error) { return nil, nil }

type fakeGenerator struct {
	answer string
	err    error
	calls  atomic.Int32
	prompt ai.Prompt
}

func (f *fakeGenerator) Enabled() bool { return true }
func (f *fakeGenerator) Name() string  { return "fake" }
func (f *fakeGenerator) Generate(_ context.Context, prompt ai.Prompt) (string, error) {
	f.calls.Add(1)
	f.prompt = prompt
	return f.answer, f.err
}

func fastResolver(lookup Lookuper) *Resolver {
	return NewResolver(lookup, ResolverConfig{
		MaxInFlight:    4,
		Timeout:        time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func strPtr(s string) *string { return &s }

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		categories []parse.Category
		count      int
		wantErr    bool
	}{
		{"defaults count", Request{Location: "Prague", Categories: []string{"Eat"}}, []parse.Category{parse.CategoryEat}, DefaultCount, false},
		{"drops unknown and duplicates", Request{Location: " Prague ", Categories: []string{"shop", "nightlife", "SHOP", "do"}, Count: 3}, []parse.Category{parse.CategoryShop, parse.CategoryDo}, 3, false},
		{"empty location", Request{Location: " ", Categories: []string{"eat"}}, nil, 0, true},
		{"no known categories", Request{Location: "Prague", Categories: []string{"nightlife"}}, nil, 0, true},
		{"count too large", Request{Location: "Prague", Categories: []string{"eat"}, Count: MaxCount + 1}, nil, 0, true},
		{"negative count", Request{Location: "Prague", Categories: []string{"eat"}, Count: -1}, nil, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			query, err := tc.req.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Prague", query.Location)
			assert.Equal(t, tc.categories, query.Categories)
			assert.Equal(t, tc.count, query.Count)
		})
	}
}

func TestFromTextNoMatch(t *testing.T) {
	pipeline := NewPipeline(nil, fastResolver(lookupFunc(noMatch)), Config{})

	result, err := pipeline.FromText(context.Background(),
		Request{Location: "Prague", Categories: []string{"do"}},
		"## Things To Do\n1. **Old Town Square:** A historic plaza.", Hooks{})
	require.NoError(t, err)
	require.NotEmpty(t, result.RequestID)
	assert.Equal(t, []string{"do"}, result.Categories)

	require.Len(t, result.Results, 1)
	group := result.Results[0]
	assert.Equal(t, parse.CategoryDo, group.Category)
	assert.Equal(t, []Recommendation{{
		Name:        "Old Town Square",
		Description: "A historic plaza.",
		Photos:      []string{},
		Hours:       []string{},
	}}, group.Recommendations)
}

func TestFromTextMatchPopulatesDetails(t *testing.T) {
	lookup := lookupFunc(func(_ context.Context, name, location string) (*places.Detail, error) {
		assert.Equal(t, "Prague", location)
		return &places.Detail{
			Name:      "Old Town Square (Staroměstské náměstí)",
			PhotoURLs: []string{"https://photos/1"},
			Hours:     []string{"Monday: Open 24 hours"},
			Summary:   "Historic square.",
			Latitude:  50.087,
			Longitude: 14.421,
			Address:   "Praha 1",
			Phone:     "",
			Website:   "https://prague.eu",
		}, nil
	})
	pipeline := NewPipeline(nil, fastResolver(lookup), Config{})

	result, err := pipeline.FromText(context.Background(),
		Request{Location: "Prague", Categories: []string{"do"}},
		"## Things To Do\n1. **Old Town Square:** A historic plaza.", Hooks{})
	require.NoError(t, err)

	rec := result.Results[0].Recommendations[0]
	assert.Equal(t, "Old Town Square (Staroměstské náměstí)", rec.Name)
	assert.Equal(t, "A historic plaza.", rec.Description)
	assert.Equal(t, "Historic square.", rec.DirectorySummary)
	assert.Equal(t, []string{"https://photos/1"}, rec.Photos)
	require.NotNil(t, rec.Latitude)
	assert.Equal(t, 50.087, *rec.Latitude)
	assert.Equal(t, 14.421, *rec.Longitude)
	assert.Equal(t, strPtr("Praha 1"), rec.Address)
	assert.Equal(t, strPtr(""), rec.Phone)
	assert.Equal(t, strPtr("https://prague.eu"), rec.Website)
}

func TestAssembleBlankDirectoryNameKeepsExtractedName(t *testing.T) {
	sections := []parse.Section{{Category: parse.CategoryEat, Items: []parse.Item{{Ordinal: 1, Name: "Lokál"}}}}
	groups := Assemble(sections, [][]*places.Detail{{{Name: "  "}}})
	assert.Equal(t, "Lokál", groups[0].Recommendations[0].Name)
	assert.Equal(t, []string{}, groups[0].Recommendations[0].Photos)
}

func TestDuplicateCategoryBlocksStaySeparate(t *testing.T) {
	pipeline := NewPipeline(nil, fastResolver(lookupFunc(noMatch)), Config{})
	raw := "**Places to Eat**\n1. Lokál: pub\n2. Savoy: café\n\n**More Food**\n1. Manifesto: market"

	result, err := pipeline.FromText(context.Background(), Request{Location: "Prague", Categories: []string{"eat"}}, raw, Hooks{})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, parse.CategoryEat, result.Results[0].Category)
	assert.Equal(t, parse.CategoryEat, result.Results[1].Category)
	assert.Len(t, result.Results[0].Recommendations, 2)
	assert.Len(t, result.Results[1].Recommendations, 1)
}

func TestFailedLookupsPreserveCardinalityAndOrder(t *testing.T) {
	var calls atomic.Int32
	lookup := lookupFunc(func(context.Context, string, string) (*places.Detail, error) {
		calls.Add(1)
		return nil, &places.APIError{Op: "textsearch", Status: "REQUEST_DENIED"}
	})
	pipeline := NewPipeline(nil, fastResolver(lookup), Config{})
	raw := "## Things To Do\n1. A: a\n2. B: b\n3. C: c\n## Where to Stay\n1. D: d"

	result, err := pipeline.FromText(context.Background(), Request{Location: "Prague", Categories: []string{"do", "stay"}}, raw, Hooks{})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	var names []string
	for _, group := range result.Results {
		for _, rec := range group.Recommendations {
			names = append(names, rec.Name)
			assert.Nil(t, rec.Latitude)
			assert.Nil(t, rec.Website)
		}
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, names)
	assert.Equal(t, int32(4), calls.Load(), "permanent errors are not retried")
}

func TestOrderIsPositionalUnderConcurrency(t *testing.T) {
	lookup := lookupFunc(func(_ context.Context, name, _ string) (*places.Detail, error) {
		// Later items finish first.
		delay := time.Duration(10-int(name[len(name)-1]-'0')) * time.Millisecond
		time.Sleep(delay)
		return &places.Detail{Name: name + " resolved"}, nil
	})
	resolver := NewResolver(lookup, ResolverConfig{MaxInFlight: 10})

	var items []parse.Item
	for i := 0; i < 10; i++ {
		items = append(items, parse.Item{Ordinal: i + 1, Name: fmt.Sprintf("place%d", i)})
	}
	sections := []parse.Section{{Category: parse.CategoryDo, Items: items}}

	details, err := resolver.Resolve(context.Background(), "Prague", sections, nil)
	require.NoError(t, err)
	groups := Assemble(sections, details)
	for i, rec := range groups[0].Recommendations {
		assert.Equal(t, fmt.Sprintf("place%d resolved", i), rec.Name)
	}
}

func TestResolverBoundsInFlight(t *testing.T) {
	var current, peak atomic.Int32
	lookup := lookupFunc(func(context.Context, string, string) (*places.Detail, error) {
		now := current.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil, nil
	})
	resolver := NewResolver(lookup, ResolverConfig{MaxInFlight: 3})

	var items []parse.Item
	for i := 0; i < 12; i++ {
		items = append(items, parse.Item{Ordinal: i + 1, Name: fmt.Sprintf("p%d", i)})
	}

	var (
		mu       sync.Mutex
		progress []int
	)
	_, err := resolver.Resolve(context.Background(), "Prague", []parse.Section{{Category: parse.CategoryDo, Items: items}}, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 12, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Len(t, progress, 12)
	assert.Equal(t, 12, progress[len(progress)-1])
}

func TestResolverRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	lookup := lookupFunc(func(context.Context, string, string) (*places.Detail, error) {
		if calls.Add(1) < 3 {
			return nil, &places.APIError{Op: "textsearch", Status: "OVER_QUERY_LIMIT"}
		}
		return &places.Detail{Name: "Lokál"}, nil
	})
	resolver := fastResolver(lookup)

	sections := []parse.Section{{Category: parse.CategoryEat, Items: []parse.Item{{Ordinal: 1, Name: "Lokál"}}}}
	details, err := resolver.Resolve(context.Background(), "Prague", sections, nil)
	require.NoError(t, err)
	require.NotNil(t, details[0][0])
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolverGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	lookup := lookupFunc(func(context.Context, string, string) (*places.Detail, error) {
		calls.Add(1)
		return nil, &places.APIError{Op: "details", HTTPStatus: 503}
	})
	resolver := fastResolver(lookup)

	sections := []parse.Section{{Category: parse.CategoryEat, Items: []parse.Item{{Ordinal: 1, Name: "Lokál"}}}}
	details, err := resolver.Resolve(context.Background(), "Prague", sections, nil)
	require.NoError(t, err)
	assert.Nil(t, details[0][0])
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolverAppliesPerCallTimeout(t *testing.T) {
	lookup := lookupFunc(func(ctx context.Context, _, _ string) (*places.Detail, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	resolver := NewResolver(lookup, ResolverConfig{Timeout: 5 * time.Millisecond, MaxRetries: 1, InitialBackoff: time.Millisecond})

	sections := []parse.Section{{Category: parse.CategoryEat, Items: []parse.Item{{Ordinal: 1, Name: "Slow"}}}}
	details, err := resolver.Resolve(context.Background(), "Prague", sections, nil)
	require.NoError(t, err)
	assert.Nil(t, details[0][0])
}

func TestResolverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lookup := lookupFunc(func(ctx context.Context, _, _ string) (*places.Detail, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	resolver := fastResolver(lookup)

	sections := []parse.Section{{Category: parse.CategoryEat, Items: []parse.Item{{Ordinal: 1, Name: "A"}, {Ordinal: 2, Name: "B"}}}}
	_, err := resolver.Resolve(ctx, "Prague", sections, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolverRateLimit(t *testing.T) {
	resolver := NewResolver(lookupFunc(noMatch), ResolverConfig{RateLimit: 200, Burst: 1})

	var items []parse.Item
	for i := 0; i < 5; i++ {
		items = append(items, parse.Item{Ordinal: i + 1, Name: fmt.Sprintf("p%d", i)})
	}
	start := time.Now()
	_, err := resolver.Resolve(context.Background(), "Prague", []parse.Section{{Category: parse.CategoryDo, Items: items}}, nil)
	require.NoError(t, err)
	// Four waits of 5ms after the initial token.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestMissingCredentialFailsBeforeAnyWork(t *testing.T) {
	generator := &fakeGenerator{answer: "## Eat\n1. A: b"}
	pipeline := NewPipeline(generator, NewResolver(nil, ResolverConfig{}), Config{})

	_, err := pipeline.Run(context.Background(), Request{Location: "Prague", Categories: []string{"eat"}}, Hooks{})
	assert.ErrorIs(t, err, places.ErrMissingCredential)
	assert.Equal(t, int32(0), generator.calls.Load())

	_, err = pipeline.FromText(context.Background(), Request{Location: "Prague", Categories: []string{"eat"}}, "## Eat\n1. A: b", Hooks{})
	assert.ErrorIs(t, err, places.ErrMissingCredential)
}

func TestRunGenerationFailure(t *testing.T) {
	var lookups atomic.Int32
	lookup := lookupFunc(func(context.Context, string, string) (*places.Detail, error) {
		lookups.Add(1)
		return nil, nil
	})
	generator := &fakeGenerator{err: errors.New("socket closed")}
	pipeline := NewPipeline(generator, fastResolver(lookup), Config{})

	result, err := pipeline.Run(context.Background(), Request{Location: "Prague", Categories: []string{"eat"}}, Hooks{})
	assert.ErrorIs(t, err, ai.ErrGeneration)
	assert.Empty(t, result.Results)
	assert.Equal(t, int32(1), generator.calls.Load())
	assert.Equal(t, int32(0), lookups.Load())
}

func TestRunWithoutGenerator(t *testing.T) {
	pipeline := NewPipeline(nil, fastResolver(lookupFunc(noMatch)), Config{})
	_, err := pipeline.Run(context.Background(), Request{Location: "Prague", Categories: []string{"eat"}}, Hooks{})
	assert.ErrorIs(t, err, ai.ErrDisabled)
}

func TestRunEndToEnd(t *testing.T) {
	generator := &fakeGenerator{answer: "Sure!\n\n**Places to eat:**\n\n1. **Lokál:** Pub.\n2. **Café Savoy**: Café.\n\n**Places to shop:**\n\n1. **Manufaktura:** Crafts."}
	pipeline := NewPipeline(generator, fastResolver(lookupFunc(noMatch)), Config{})

	var (
		started   string
		generated int
		lastDone  int
	)
	result, err := pipeline.Run(context.Background(), Request{Location: "Prague", Categories: []string{"eat", "shop"}, Count: 2}, Hooks{
		Started:   func(id string) { started = id },
		Generated: func(_ string, items int) { generated = items },
		Progress:  func(done, _ int) { lastDone = done },
	})
	require.NoError(t, err)

	assert.Equal(t, result.RequestID, started)
	assert.Equal(t, 3, generated)
	assert.Equal(t, 3, lastDone)
	assert.Equal(t, []string{
		"Where are 2 places to eat in Prague?",
		"Where are 2 places to shop in Prague?",
	}, generator.prompt.Questions)

	require.Len(t, result.Results, 2)
	assert.Equal(t, parse.CategoryShop, result.Results[1].Category)
	assert.Equal(t, "Manufaktura", result.Results[1].Recommendations[0].Name)
}

func TestSingleCategoryFallback(t *testing.T) {
	pipeline := NewPipeline(nil, fastResolver(lookupFunc(noMatch)), Config{})
	raw := "1. Old Town Square\n2. Charles Bridge"

	result, err := pipeline.FromText(context.Background(), Request{Location: "Prague", Categories: []string{"do"}}, raw, Hooks{})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Len(t, result.Results[0].Recommendations, 2)

	result, err = pipeline.FromText(context.Background(), Request{Location: "Prague", Categories: []string{"do", "eat"}}, raw, Hooks{})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

func TestFromTextIsIdempotent(t *testing.T) {
	lookup := lookupFunc(func(_ context.Context, name, _ string) (*places.Detail, error) {
		if strings.HasPrefix(name, "L") {
			return &places.Detail{Name: name, Hours: []string{"Mon"}}, nil
		}
		return nil, nil
	})
	pipeline := NewPipeline(nil, fastResolver(lookup), Config{})
	req := Request{Location: "Prague", Categories: []string{"eat"}}
	raw := "**Places to eat:**\n1. **Lokál:** Pub.\n2. **Savoy:** Café.\n**Food**\n1. Lucky: noodles"

	first, err := pipeline.FromText(context.Background(), req, raw, Hooks{})
	require.NoError(t, err)
	second, err := pipeline.FromText(context.Background(), req, raw, Hooks{})
	require.NoError(t, err)

	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, first.Results, second.Results)
}

func TestEmptyAnswerYieldsNoGroups(t *testing.T) {
	pipeline := NewPipeline(nil, fastResolver(lookupFunc(noMatch)), Config{})
	result, err := pipeline.FromText(context.Background(), Request{Location: "Prague", Categories: []string{"eat", "do"}}, "I cannot help with that.", Hooks{})
	require.NoError(t, err)
	assert.NotNil(t, result.Results)
	assert.Empty(t, result.Results)
}

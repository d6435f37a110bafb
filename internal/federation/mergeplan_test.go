package federation

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/internal/graph"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func makeContributions(n int, exp func(i int) time.Time) []Contribution {
	cs := make([]Contribution, n)
	for i := range cs {
		cs[i] = NewContribution(
			fmt.Sprintf("source%d", i),
			[]graph.Path{graph.MustParsePath(fmt.Sprintf("/s%d", i))},
			graph.PropertyMap(graph.NewProperty("idx", fmt.Sprint(i))),
			nil,
			exp(i),
		)
	}
	return cs
}

func TestMergePlan_Arities(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 6, 7, 8, 16, 100, 150} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			cs := makeContributions(n, func(i int) time.Time {
				return testNow.Add(time.Duration(n-i) * time.Minute)
			})
			plan, err := NewMergePlan(cs...)
			require.NoError(t, err)

			assert.Equal(t, n, plan.ContributionCount())
			for i, c := range cs {
				got, ok := plan.ContributionFrom(c.SourceName())
				require.True(t, ok, "source %d", i)
				assert.Same(t, c, got)
				assert.True(t, plan.IsSource(c.SourceName()))
			}
			_, ok := plan.ContributionFrom("missing")
			assert.False(t, ok)
			assert.False(t, plan.IsSource("missing"))

			var order []Contribution
			for c := range plan.All() {
				order = append(order, c)
			}
			assert.Equal(t, cs, order, "iteration follows insertion order")

			names := plan.SourceNames()
			require.Len(t, names, n)
			assert.Equal(t, "source0", names[0])
			assert.Equal(t, fmt.Sprintf("source%d", n-1), names[n-1])

			// The last contribution expires soonest.
			assert.Equal(t, testNow.Add(time.Minute), plan.ExpirationTime())
		})
	}
}

func TestMergePlan_AllStopsEarly(t *testing.T) {
	for _, n := range []int{2, 6, 9} {
		plan, err := NewMergePlan(makeContributions(n, func(int) time.Time { return time.Time{} })...)
		require.NoError(t, err)
		seen := 0
		for range plan.All() {
			seen++
			if seen == 2 {
				break
			}
		}
		assert.Equal(t, 2, seen, "n=%d", n)
	}
}

func TestNewMergePlan_Empty(t *testing.T) {
	_, err := NewMergePlan()
	assert.ErrorIs(t, err, ErrEmptyMergePlan)
}

func TestNewMergePlan_DuplicateSources(t *testing.T) {
	for _, n := range []int{2, 3, 6, 7, 20} {
		pairs := [][2]int{{0, 1}, {0, n - 1}, {n - 2, n - 1}, {n / 2, n - 1}, {0, n / 2}}
		for _, pair := range pairs {
			if pair[0] == pair[1] {
				continue
			}
			t.Run(fmt.Sprintf("n=%d/%d,%d", n, pair[0], pair[1]), func(t *testing.T) {
				cs := makeContributions(n, func(int) time.Time { return time.Time{} })
				cs[pair[1]] = NewEmptyContribution(cs[pair[0]].SourceName(), time.Time{})
				_, err := NewMergePlan(cs...)
				assert.ErrorIs(t, err, ErrDuplicateContribution)
			})
		}
	}
}

// countingContribution reports how often the plan asks for its expiration.
type countingContribution struct {
	mock.Mock
	source string
}

func (c *countingContribution) SourceName() string                    { return c.source }
func (c *countingContribution) Locations() []graph.Path               { return nil }
func (c *countingContribution) Properties() map[string]graph.Property { return nil }
func (c *countingContribution) Children() []graph.Segment             { return nil }
func (c *countingContribution) IsExpired(now time.Time) bool          { return false }
func (c *countingContribution) IsEmpty() bool                         { return false }
func (c *countingContribution) IsPlaceholder() bool                   { return false }

func (c *countingContribution) ExpirationTime() time.Time {
	args := c.Called()
	return args.Get(0).(time.Time)
}

func TestNewMergePlan_ExpirationComputedOnce(t *testing.T) {
	for _, n := range []int{1, 3, 6, 7, 12} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			cs := make([]Contribution, n)
			mocks := make([]*countingContribution, n)
			for i := range cs {
				m := &countingContribution{source: fmt.Sprintf("s%d", i)}
				m.On("ExpirationTime").Return(testNow.Add(time.Duration(i+1) * time.Second))
				mocks[i], cs[i] = m, m
			}
			plan, err := NewMergePlan(cs...)
			require.NoError(t, err)

			for i := 0; i < 5; i++ {
				assert.Equal(t, testNow.Add(time.Second), plan.ExpirationTime())
				_ = plan.IsExpired(testNow)
			}
			for _, m := range mocks {
				m.AssertNumberOfCalls(t, "ExpirationTime", 1)
			}
		})
	}
}

func TestMergePlan_ExpiryBoundaryIsInclusive(t *testing.T) {
	exp := testNow.Add(time.Minute)
	plan, err := NewMergePlan(
		NewContribution("a", nil, nil, nil, exp),
		NewContribution("b", nil, nil, nil, time.Time{}),
	)
	require.NoError(t, err)

	assert.False(t, plan.IsExpired(exp.Add(-time.Nanosecond)))
	assert.True(t, plan.IsExpired(exp), "a plan is expired at its expiration instant")
	assert.True(t, plan.IsExpired(exp.Add(time.Nanosecond)))
}

func TestMergePlan_NeverExpires(t *testing.T) {
	plan, err := NewMergePlan(
		NewPlaceholderContribution("a", []graph.Segment{graph.NewSegment("x")}, time.Time{}),
		NewContribution("b", nil, nil, nil, time.Time{}),
	)
	require.NoError(t, err)
	assert.True(t, plan.ExpirationTime().IsZero())
	assert.False(t, plan.IsExpired(testNow.AddDate(100, 0, 0)))
	assert.Contains(t, PlanSummary(plan), "never expires")
}

func TestMergePlan_Annotations(t *testing.T) {
	for _, n := range []int{1, 4, 9} {
		plan, err := NewMergePlan(makeContributions(n, func(int) time.Time { return time.Time{} })...)
		require.NoError(t, err)

		_, had := plan.SetAnnotation(graph.NewProperty("note", "first"))
		assert.False(t, had)

		prev, had := plan.SetAnnotation(graph.NewProperty("note", "second"))
		assert.True(t, had)
		assert.Equal(t, "first", prev.First())

		got, ok := plan.Annotation("note")
		require.True(t, ok)
		assert.Equal(t, "second", got.First())

		snapshot := plan.Annotations()
		snapshot["other"] = graph.NewProperty("other", "x")
		_, ok = plan.Annotation("other")
		assert.False(t, ok, "Annotations returns a copy")

		prev, had = plan.SetAnnotation(graph.Property{Name: "note"})
		assert.True(t, had)
		assert.Equal(t, "second", prev.First())
		_, ok = plan.Annotation("note")
		assert.False(t, ok, "an empty property clears the annotation")
	}
}

func TestMergePlan_ConcurrentAnnotations(t *testing.T) {
	plan, err := NewMergePlan(makeContributions(3, func(int) time.Time { return time.Time{} })...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				plan.SetAnnotation(graph.NewProperty(fmt.Sprintf("k%d", i), fmt.Sprint(j)))
				_ = plan.Annotations()
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, plan.Annotations(), 8)
}

func TestPlanCodec_RoundTrip(t *testing.T) {
	exp := testNow.Add(time.Hour)
	plan, err := NewMergePlan(
		NewContribution("a", paths("/x", "/y[2]"), graph.PropertyMap(graph.NewProperty("k", "v")), nil, exp),
		NewEmptyContribution("b", testNow.Add(time.Minute)),
		NewPlaceholderContribution("c", []graph.Segment{graph.NewSegment("z")}, time.Time{}),
	)
	require.NoError(t, err)
	plan.SetAnnotation(graph.NewProperty("origin", "test"))

	prop, err := PlanProperty(plan)
	require.NoError(t, err)
	assert.Equal(t, graph.MergePlanProperty, prop.Name)

	decoded, err := DecodePlan(prop.Values[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, decoded.SourceNames())
	assert.True(t, decoded.ExpirationTime().Equal(testNow.Add(time.Minute)))

	a, _ := decoded.ContributionFrom("a")
	assert.Equal(t, []string{"/x", "/y[2]"}, strs(a.Locations()))
	assert.True(t, a.ExpirationTime().Equal(exp))
	b, _ := decoded.ContributionFrom("b")
	assert.True(t, b.IsEmpty())
	c, _ := decoded.ContributionFrom("c")
	assert.True(t, c.IsPlaceholder())
	assert.True(t, c.ExpirationTime().IsZero())

	origin, ok := decoded.Annotation("origin")
	require.True(t, ok)
	assert.Equal(t, "test", origin.First())
}

func TestDecodePlan_Rejects(t *testing.T) {
	for name, data := range map[string]string{
		"garbage":      "{not json",
		"version":      `{"v":9,"contributions":[{"source":"a","kind":"node"}]}`,
		"kind":         `{"v":1,"contributions":[{"source":"a","kind":"weird"}]}`,
		"empty":        `{"v":1,"contributions":[]}`,
		"duplicate":    `{"v":1,"contributions":[{"source":"a","kind":"empty"},{"source":"a","kind":"node"}]}`,
		"bad location": `{"v":1,"contributions":[{"source":"a","kind":"node","locations":["/x[0]"]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePlan([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestContribution_Collections(t *testing.T) {
	for _, c := range []Contribution{
		NewEmptyContribution("a", time.Time{}),
		NewPlaceholderContribution("a", nil, time.Time{}),
		NewContribution("a", nil, nil, nil, time.Time{}),
	} {
		assert.NotNil(t, c.Locations())
		assert.NotNil(t, c.Properties())
		assert.NotNil(t, c.Children())
	}

	kids := []graph.Segment{graph.NewSegment("x")}
	c := NewPlaceholderContribution("a", kids, time.Time{})
	kids[0] = graph.NewSegment("mutated")
	assert.True(t, slices.Equal([]graph.Segment{graph.NewSegment("x")}, c.Children()))
}

func TestCheckExpiration(t *testing.T) {
	assert.NoError(t, CheckExpiration(NewEmptyContribution("a", time.Time{}), testNow), "zero means never")
	assert.NoError(t, CheckExpiration(NewEmptyContribution("a", testNow.Add(time.Nanosecond)), testNow))

	for _, exp := range []time.Time{testNow, testNow.Add(-time.Second)} {
		err := CheckExpiration(NewContribution("a", nil, nil, nil, exp), testNow)
		assert.ErrorIs(t, err, ErrExpiredContribution, exp.String())
	}
}

package release

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamer_NewAndParse(t *testing.T) {
	n := NewNamer("shop", time.UTC)
	at := time.Date(2024, 3, 5, 14, 7, 9, 500, time.UTC)

	r := n.New(at)

	assert.Equal(t, "shop_2024-03-05_140709", r.Name)
	assert.True(t, r.Timestamp.Equal(at.Truncate(time.Second)))

	parsed, ok := n.Parse(r.Name)
	require.True(t, ok)
	assert.Equal(t, r, parsed)
}

func TestNamer_Parse_Rejects(t *testing.T) {
	n := NewNamer("shop", time.UTC)

	tests := []string{
		"production",
		"shop_2024-03-05",
		"other_2024-03-05_140709",
		"shop_2024-02-30_120000",
		"shop_2024-03-05_140709.tmp",
		"shop-admin_2024-03-05_140709",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := n.Parse(name)
			assert.False(t, ok)
		})
	}
}

func TestNamer_Parse_QuotesProject(t *testing.T) {
	n := NewNamer("my.app", time.UTC)

	_, ok := n.Parse("myXapp_2024-03-05_140709")
	assert.False(t, ok)

	_, ok = n.Parse("my.app_2024-03-05_140709")
	assert.True(t, ok)
}

func TestNamer_Discover(t *testing.T) {
	n := NewNamer("shop", time.UTC)
	lines := []string{
		"shop_2024-03-05_140709",
		"production",
		"",
		"shop_2024-01-01_000000",
		"data",
		"shop_2024-02-01_000000  ",
	}

	releases := n.Discover(lines)

	require.Len(t, releases, 3)
	assert.Equal(t, "shop_2024-01-01_000000", releases[0].Name)
	assert.Equal(t, "shop_2024-02-01_000000", releases[1].Name)
	assert.Equal(t, "shop_2024-03-05_140709", releases[2].Name)
}

func TestNewTimeline(t *testing.T) {
	n := NewNamer("shop", time.UTC)
	r1 := n.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	r2 := n.New(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	r3 := n.New(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	current := n.New(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))

	t.Run("no history", func(t *testing.T) {
		tl, err := NewTimeline(nil, current)
		require.NoError(t, err)
		assert.False(t, tl.HasHistory())
		assert.True(t, tl.Previous.IsZero())
		assert.Equal(t, current, tl.Current)
	})

	t.Run("one release", func(t *testing.T) {
		tl, err := NewTimeline([]Release{r1}, current)
		require.NoError(t, err)
		assert.Equal(t, r1, tl.Last)
		assert.True(t, tl.Previous.IsZero())
	})

	t.Run("unsorted input", func(t *testing.T) {
		tl, err := NewTimeline([]Release{r3, r1, r2}, current)
		require.NoError(t, err)
		assert.Equal(t, r2, tl.Previous)
		assert.Equal(t, r3, tl.Last)
	})

	t.Run("current not newer", func(t *testing.T) {
		_, err := NewTimeline([]Release{r1, current}, current)
		assert.Error(t, err)
	})
}

func TestTimeline_Protected(t *testing.T) {
	n := NewNamer("shop", time.UTC)
	tl := Timeline{
		Last:    n.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Current: n.New(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
	}

	protected := tl.Protected()

	assert.Len(t, protected, 2)
	assert.True(t, protected[tl.Last.Name])
	assert.True(t, protected[tl.Current.Name])
}

package render

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpintaxPicksExactlyOneOption(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pick := func(n int) int { return rng.Intn(n) }

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		out := Spintax("Hola {Juan|Maria}", pick)
		assert.NotContains(t, out, "{")
		assert.NotContains(t, out, "}")
		assert.Contains(t, []string{"Hola Juan", "Hola Maria"}, out)
		seen[out] = true
	}
	assert.Len(t, seen, 2, "seeded rng should eventually produce both options")
}

func TestSpintaxIndependentPerOccurrence(t *testing.T) {
	picks := []int{0, 1}
	i := 0
	pick := func(n int) int {
		v := picks[i%len(picks)]
		i++
		return v
	}
	out := Spintax("{a|b} {a|b}", pick)
	assert.Equal(t, "a b", out)
	assert.Equal(t, 2, i)
}

func TestSpintaxLeavesPipelessTokensAlone(t *testing.T) {
	out := Spintax("Hi {group_name}, {good|great} news", func(n int) int { return 0 })
	assert.Equal(t, "Hi {group_name}, good news", out)
}

func TestSpintaxEmptyOption(t *testing.T) {
	out := Spintax("deal{!|}", func(n int) int { return 1 })
	assert.Equal(t, "deal", out)
}

func TestGroupNameSubstitution(t *testing.T) {
	out := GroupName("Hi {group_name}! News for {group_name}.", "VIP Buyers")
	assert.Equal(t, "Hi VIP Buyers! News for VIP Buyers.", out)
}

func TestMessageSpintaxThenGroupName(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pick := func(n int) int { return rng.Intn(n) }

	out := Message("{Hello|Hey} {group_name}", true, "Leads", pick)
	assert.True(t, out == "Hello Leads" || out == "Hey Leads", "got %q", out)
}

func TestMessageSpintaxDisabled(t *testing.T) {
	out := Message("{Hello|Hey} {group_name}", false, "Leads", func(n int) int { return 0 })
	assert.Equal(t, "{Hello|Hey} Leads", out)
}

func TestSpintaxManyGroups(t *testing.T) {
	msg := "{a|b} mid {c|d|e} end"
	out := Spintax(msg, func(n int) int { return n - 1 })
	assert.Equal(t, "b mid e end", out)
	assert.False(t, strings.ContainsAny(out, "{}"))
}

package game

import (
	"fmt"
	"math/rand"
)

var (
	firstNames = []string{
		"Maya", "Arun", "Iris", "Noah", "Tara", "Kian", "Lea", "Ravi", "Nora", "Evan",
		"Zara", "Omar", "Lina", "Kade", "Ava", "Dion", "Sana", "Milo", "Rhea", "Theo",
		"Ines", "Joel", "Priya", "Hugo", "Yara", "Felix", "Mira", "Tomas", "Anya", "Luca",
	}
	lastNames = []string{
		"Lee", "Vale", "Knox", "Pike", "Sol", "Moss", "Rowe", "Jain", "Park", "Reid",
		"Cross", "Quill", "Stone", "Wren", "Bose", "Cho", "Kent", "Ford", "Hart", "Yoon",
		"Ibarra", "Novak", "Okafor", "Lund", "Sato", "Brandt", "Costa", "Holm", "Mehta", "Rios",
	}
	companyNames = []string{
		"Cobalt Dynamics", "Nimbus Labs", "Rustic Systems", "Pylon Networks", "Javolt Cloud",
		"Swiftr Mobile", "Kotlin Forge", "Nodeon Runtime", "Elixir Ops", "Quarkx Compute",
		"Vectra AI", "Datumx Data", "Cybron Secure", "Fusion Grid", "Orbitz Space",
	}
	orgSuffixes = []string{"Division", "Group", "Department", "Office", "Studio", "Unit"}
	petNames    = []string{
		"Biscuit", "Pixel", "Mochi", "Nacho", "Pepper", "Waffles", "Ziggy", "Olive",
		"Tofu", "Bean", "Juniper", "Clementine", "Sprocket", "Noodle", "Pickles", "Toast",
	}
	catBreeds = []string{"tabby", "siamese", "maine coon", "sphynx", "ragdoll", "bengal"}
	dogBreeds = []string{"corgi", "beagle", "labrador", "greyhound", "poodle", "shiba"}

	initiativeCatalog = []Initiative{
		{Name: "Brand Refresh", Kind: "marketing", WeeksRemaining: 6},
		{Name: "Platform Rewrite", Kind: "rnd", WeeksRemaining: 12},
		{Name: "Leadership Bootcamp", Kind: "training", WeeksRemaining: 4},
		{Name: "Cost Audit", Kind: "finance", WeeksRemaining: 3},
	}
)

// namePool hands out unique names drawn from a fixed table. Once the table is
// exhausted it synthesizes numbered names instead of failing.
type namePool struct {
	rng   *rand.Rand
	items []string
	used  map[string]bool
	extra int
}

func newNamePool(rng *rand.Rand, items []string) *namePool {
	cp := make([]string, len(items))
	copy(cp, items)
	return &namePool{rng: rng, items: cp, used: map[string]bool{}}
}

func (p *namePool) next() string {
	if len(p.items) > 0 {
		i := p.rng.Intn(len(p.items))
		name := p.items[i]
		p.items[i] = p.items[len(p.items)-1]
		p.items = p.items[:len(p.items)-1]
		p.used[name] = true
		return name
	}
	for {
		p.extra++
		name := fmt.Sprintf("Unnamed %d", p.extra)
		if !p.used[name] {
			p.used[name] = true
			return name
		}
	}
}

// personNames combines first and last names; the combination space is large
// but still finite, so it shares the numbered fallback.
type personNames struct {
	rng   *rand.Rand
	used  map[string]bool
	extra int
}

func newPersonNames(rng *rand.Rand) *personNames {
	return &personNames{rng: rng, used: map[string]bool{}}
}

func (p *personNames) next() string {
	const attempts = 16
	for i := 0; i < attempts; i++ {
		name := firstNames[p.rng.Intn(len(firstNames))] + " " + lastNames[p.rng.Intn(len(lastNames))]
		if !p.used[name] {
			p.used[name] = true
			return name
		}
	}
	for {
		p.extra++
		name := fmt.Sprintf("%s %s %d", firstNames[p.extra%len(firstNames)], lastNames[(p.extra*7)%len(lastNames)], p.extra)
		if !p.used[name] {
			p.used[name] = true
			return name
		}
	}
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}

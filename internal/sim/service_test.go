package sim

import (
	mathrand "math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// All paths into the random source share one mutex; concurrent draws
// through nextFloat and drawWith must not race.
func TestRandomDrawsAreSerialized(t *testing.T) {
	s := &Service{
		rand: mathrand.New(mathrand.NewSource(1)),
		now:  time.Now,
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f := s.nextFloat()
				assert.GreaterOrEqual(t, f, 0.0)
				assert.Less(t, f, 1.0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.drawWith(func(rng *mathrand.Rand) {
					_ = rng.Intn(10)
				})
			}
		}()
	}
	wg.Wait()
}

func TestSeedRandomIsDeterministic(t *testing.T) {
	a := &Service{rand: mathrand.New(mathrand.NewSource(1)), now: time.Now}
	b := &Service{rand: mathrand.New(mathrand.NewSource(2)), now: time.Now}
	a.SeedRandom(42)
	b.SeedRandom(42)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.nextFloat(), b.nextFloat())
	}
}

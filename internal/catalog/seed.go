package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/sectional/pkg/repo"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// DemoFlagKey is the Setting key recording that a store has been seeded.
const DemoFlagKey = "demo"

// SeedResult reports what EnsureSeeded did.
type SeedResult int

const (
	Seeded SeedResult = iota + 1
	AlreadySeeded
)

func (r SeedResult) String() string {
	switch r {
	case Seeded:
		return "seeded"
	case AlreadySeeded:
		return "already seeded"
	}
	return "unknown"
}

// SeedSection is one section of seed content with its item names.
type SeedSection struct {
	Name  string   `yaml:"name" json:"name"`
	Items []string `yaml:"items" json:"items"`
}

// Seed is the content written into an empty store.
type Seed struct {
	Sections []SeedSection `yaml:"sections" json:"sections"`
}

// Validate rejects blank or repeated section names and blank item names.
func (s Seed) Validate() error {
	seen := make(map[string]bool, len(s.Sections))
	for _, sec := range s.Sections {
		name := strings.TrimSpace(sec.Name)
		if name == "" {
			return fmt.Errorf("%w: seed section", types.ErrInvalidName)
		}
		if seen[name] {
			return fmt.Errorf("%w: seed section %q", types.ErrDuplicateName, name)
		}
		seen[name] = true
		for _, item := range sec.Items {
			if strings.TrimSpace(item) == "" {
				return fmt.Errorf("%w: item in seed section %q", types.ErrInvalidName, name)
			}
		}
	}
	return nil
}

// demoItemCounts repeats for "Section 1" through "Section 28"; section 29
// is empty.
var demoItemCounts = []int{5, 2, 3, 0}

const demoSections = 29

// DemoSeed returns the built-in demo content: 29 sections named
// "Section 1" to "Section 29" holding "Item 1".."Item n".
func DemoSeed() Seed {
	seed := Seed{Sections: make([]SeedSection, 0, demoSections)}
	for i := 1; i <= demoSections; i++ {
		n := 0
		if i < demoSections {
			n = demoItemCounts[(i-1)%len(demoItemCounts)]
		}
		sec := SeedSection{Name: fmt.Sprintf("Section %d", i)}
		for j := 1; j <= n; j++ {
			sec.Items = append(sec.Items, fmt.Sprintf("Item %d", j))
		}
		seed.Sections = append(seed.Sections, sec)
	}
	return seed
}

// LoadSeed reads seed content from a YAML file of the form
//
//	sections:
//	  - name: Produce
//	    items: [Apples, Pears]
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	if err := seed.Validate(); err != nil {
		return Seed{}, fmt.Errorf("validating seed file %s: %w", path, err)
	}
	return seed, nil
}

// EnsureSeeded writes seed into the store unless the demo flag is already
// set. The flag is written in the same commit as the content, so a failed
// attempt leaves neither behind and can be retried. Sections that already
// exist by name are reused.
//
// EnsureSeeded waits on the session's queue and must not be called from a
// block running on it.
func EnsureSeeded(s types.Session, seed Seed) (SeedResult, error) {
	if err := seed.Validate(); err != nil {
		return 0, err
	}

	var result SeedResult
	err := repo.Apply(s, func() error {
		flag, err := repo.FindOrFetch[*types.Setting](s, types.Eq(types.FieldKey, DemoFlagKey))
		if err != nil {
			return err
		}
		if flag != nil && flag.Bool() {
			result = AlreadySeeded
			return nil
		}

		for _, sec := range seed.Sections {
			name := strings.TrimSpace(sec.Name)
			section, err := repo.FindOrCreate(s, types.Eq(types.FieldName, name), func(x *types.Section) {
				x.Name = name
			})
			if err != nil {
				return err
			}
			for _, itemName := range sec.Items {
				rec, err := s.Insert(types.ItemsEntity)
				if err != nil {
					return err
				}
				item := rec.(*types.Item)
				item.Name = strings.TrimSpace(itemName)
				item.Section = section
			}
		}

		if flag == nil {
			rec, err := s.Insert(types.SettingsEntity)
			if err != nil {
				return err
			}
			flag = rec.(*types.Setting)
			flag.Key = DemoFlagKey
		}
		flag.Value = "true"
		result = Seeded
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seeding store: %w", err)
	}
	return result, nil
}

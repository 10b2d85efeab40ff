package property

import (
	"errors"
	"fmt"

	"device_tuner/internal/models"
)

var (
	ErrUnknownSequence = errors.New("unknown sequence")
	ErrUnknownProperty = errors.New("unknown property")
	ErrNoSequence      = errors.New("no sequence selected")
)

// DesignSource supplies the properties of a sequence with their design values.
type DesignSource interface {
	Properties(sequence string) ([]models.PropertyDef, error)
}

// Catalog is a DesignSource backed by configuration.
type Catalog struct {
	order     []string
	sequences map[string][]models.PropertyDef
}

var _ DesignSource = (*Catalog)(nil)

// NewCatalog validates names and keys: sequences and keys within a sequence must be unique.
func NewCatalog(seqs []models.Sequence) (*Catalog, error) {
	c := &Catalog{sequences: make(map[string][]models.PropertyDef, len(seqs))}
	for _, s := range seqs {
		if s.Name == "" {
			return nil, errors.New("catalog: sequence without name")
		}
		if _, dup := c.sequences[s.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate sequence %q", s.Name)
		}
		seen := make(map[models.PropertyKey]bool, len(s.Properties))
		for _, p := range s.Properties {
			if p.Device == "" || p.Attribute == "" {
				return nil, fmt.Errorf("catalog: sequence %q has a property without device or attribute", s.Name)
			}
			if seen[p.Key()] {
				return nil, fmt.Errorf("catalog: sequence %q lists %s twice", s.Name, p.Key())
			}
			seen[p.Key()] = true
		}
		c.order = append(c.order, s.Name)
		c.sequences[s.Name] = append([]models.PropertyDef(nil), s.Properties...)
	}
	return c, nil
}

func (c *Catalog) Properties(sequence string) ([]models.PropertyDef, error) {
	defs, ok := c.sequences[sequence]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSequence, sequence)
	}
	return append([]models.PropertyDef(nil), defs...), nil
}

// Sequences lists sequence names in configured order.
func (c *Catalog) Sequences() []string {
	return append([]string(nil), c.order...)
}

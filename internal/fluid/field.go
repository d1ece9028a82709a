package fluid

import (
	"fmt"

	"go.uber.org/multierr"
)

// Field stores the two buffers backing one simulated quantity. The read slot
// always holds the authoritative value; the write slot is the staging target
// of the next pass and is never bound as an input.
type Field struct {
	name  string
	grid  Grid
	slots [2]Buffer
	read  int
}

// NewField allocates a Field with two zeroed buffers sized to grid.
func NewField(b Backend, name string, grid Grid) (*Field, error) {
	first, err := b.NewBuffer(grid)
	if err != nil {
		return nil, fmt.Errorf("allocating %s read buffer: %w", name, err)
	}
	second, err := b.NewBuffer(grid)
	if err != nil {
		_ = first.Release()
		return nil, fmt.Errorf("allocating %s write buffer: %w", name, err)
	}
	return &Field{name: name, grid: grid, slots: [2]Buffer{first, second}}, nil
}

// Name returns the quantity the Field holds.
func (f *Field) Name() string { return f.name }

// Grid returns the lattice the buffers were sized for.
func (f *Field) Grid() Grid { return f.grid }

// Current returns the buffer holding the latest value.
func (f *Field) Current() Buffer { return f.slots[f.read] }

// Stage returns the buffer the next pass targeting this Field writes into.
func (f *Field) Stage() Buffer { return f.slots[1-f.read] }

// Flip swaps the read and write roles. No data moves.
func (f *Field) Flip() { f.read = 1 - f.read }

// Clear zeroes the staging buffer and flips it into the read slot.
func (f *Field) Clear(b Backend) error {
	if err := b.Clear(f.Stage()); err != nil {
		return fmt.Errorf("clearing %s: %w", f.name, err)
	}
	f.Flip()
	return nil
}

// Release frees both buffers. The Field is unusable afterwards.
func (f *Field) Release() error {
	var err error
	for i, buf := range f.slots {
		if buf == nil {
			continue
		}
		err = multierr.Append(err, buf.Release())
		f.slots[i] = nil
	}
	return err
}

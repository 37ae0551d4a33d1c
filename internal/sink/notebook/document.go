package notebook

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// CellKind distinguishes submitted code from unsolicited REPL output.
type CellKind int

const (
	// CellCode holds a submission and the output attributed to it.
	CellCode CellKind = iota
	// CellOutput holds overflow output that belongs to no submission.
	CellOutput
)

func (k CellKind) String() string {
	if k == CellOutput {
		return "output"
	}
	return "code"
}

// CellStatus is the execution state shown for a code cell.
type CellStatus int

const (
	CellPending CellStatus = iota
	CellRunning
	CellSucceeded
	CellFailed
)

func (s CellStatus) String() string {
	switch s {
	case CellPending:
		return "pending"
	case CellRunning:
		return "running"
	case CellSucceeded:
		return "succeeded"
	case CellFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Cell is one entry of a notebook document.
type Cell struct {
	ID     string
	Kind   CellKind
	Source string
	Output string
	// HasErrors is set once any stderr output reached the cell.
	HasErrors bool
	Status    CellStatus
	Reason    string
	Duration  time.Duration
}

// Document is the editable cell list a Notebook renders into. Editors that
// apply edits asynchronously implement it by blocking until the edit lands.
type Document interface {
	// Len returns the number of cells.
	Len() int
	// Insert places cell at index, shifting later cells down.
	Insert(index int, cell Cell) error
	// Update applies fn to the cell with the given ID.
	Update(id string, fn func(*Cell)) error
	// Index returns the position of the cell with the given ID.
	Index(id string) (int, error)
}

// MemoryDocument is an in-memory Document, safe for concurrent use.
type MemoryDocument struct {
	mu    sync.RWMutex
	cells []Cell
}

// NewMemoryDocument returns an empty document.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{}
}

func (d *MemoryDocument) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cells)
}

func (d *MemoryDocument) Insert(index int, cell Cell) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index > len(d.cells) {
		return fmt.Errorf("insert index %d out of range [0, %d]", index, len(d.cells))
	}
	if cell.ID == "" {
		return fmt.Errorf("cell has no ID")
	}
	if d.indexLocked(cell.ID) >= 0 {
		return fmt.Errorf("duplicate cell ID %s", cell.ID)
	}
	d.cells = slices.Insert(d.cells, index, cell)
	return nil
}

func (d *MemoryDocument) Update(id string, fn func(*Cell)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("cell %s not found", id)
	}
	fn(&d.cells[i])
	d.cells[i].ID = id
	return nil
}

func (d *MemoryDocument) Index(id string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.indexLocked(id); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("cell %s not found", id)
}

// Cells returns a copy of the current cells.
func (d *MemoryDocument) Cells() []Cell {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.cells)
}

func (d *MemoryDocument) indexLocked(id string) int {
	return slices.IndexFunc(d.cells, func(c Cell) bool { return c.ID == id })
}

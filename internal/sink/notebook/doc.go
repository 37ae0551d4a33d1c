// Package notebook presents a kernel as a list of cells.
//
// Every submission becomes a code cell that receives its execution's output
// and final status. Output that belongs to no execution becomes an output
// cell inserted at the output position: just after the most recently started
// cell, or after the previous overflow cell.
//
// Edits are applied to a [Document] by a single worker in the order the
// events arrived, so a slow editor never reorders cells and never blocks the
// kernel. [Notebook.Flush] waits for the worker to catch up.
package notebook

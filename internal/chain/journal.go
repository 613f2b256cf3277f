package chain

// journal is an undo log. A checkpoint is the log length; reverting to it
// replays the newer entries in reverse.
type journal struct {
	entries []func()
}

func (j *journal) record(undo func()) {
	j.entries = append(j.entries, undo)
}

func (j *journal) checkpoint() int {
	return len(j.entries)
}

func (j *journal) revertTo(cp int) {
	for i := len(j.entries) - 1; i >= cp; i-- {
		j.entries[i]()
	}
	j.entries = j.entries[:cp]
}

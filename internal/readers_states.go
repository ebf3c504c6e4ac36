package internal

import "github.com/ebfe/scard"

type ReadersStates []scard.ReaderState

func NewReadersStates(names []string) ReadersStates {
	rs := make(ReadersStates, len(names))
	for i, name := range names {
		rs[i].Reader = name
		rs[i].CurrentState = scard.StateUnaware
	}
	return rs
}

func (rs ReadersStates) Empty() bool {
	return len(rs) == 0
}

func (rs ReadersStates) Update() {
	for i := range rs {
		rs[i].CurrentState = rs[i].EventState
	}
}

// ReaderWithCardIndex returns the first reader that has a card inserted.
func (rs ReadersStates) ReaderWithCardIndex() (int, bool) {
	for i := range rs {
		if rs[i].EventState&scard.StatePresent != 0 {
			return i, true
		}
	}

	return -1, false
}

// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package repair

import (
	"github.com/holiman/uint256"
)

// Stack is the word stack used to evaluate guard sequences. Items pushed to
// the stack are owned by it and modified in place by arithmetic.
type Stack struct {
	data []*uint256.Int
}

func newStack(items ...*uint256.Int) *Stack {
	st := &Stack{data: make([]*uint256.Int, 0, 16)}
	for _, v := range items {
		st.push(new(uint256.Int).Set(v))
	}
	return st
}

// Len returns the number of items on the stack.
func (st *Stack) Len() int {
	return len(st.data)
}

func (st *Stack) push(d *uint256.Int) {
	st.data = append(st.data, d)
}

func (st *Stack) pop() (ret *uint256.Int) {
	ret = st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return
}

func (st *Stack) peek() *uint256.Int {
	return st.data[len(st.data)-1]
}

// Back returns the n'th item in stack
func (st *Stack) Back(n int) *uint256.Int {
	return st.data[len(st.data)-n-1]
}

func (st *Stack) swap(n int) {
	st.data[len(st.data)-n-1], st.data[len(st.data)-1] = st.data[len(st.data)-1], st.data[len(st.data)-n-1]
}

func (st *Stack) dup(n int) {
	st.push(new(uint256.Int).Set(st.data[len(st.data)-n]))
}

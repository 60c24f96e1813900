// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rmamock provides a gomock-based double for rma.Pool, in the shape
// mockgen would generate, for injecting transient CAS failures and simulated
// remote latency into iht's concurrency tests (mirrors the teacher's
// validator/validatorsmock re-export of a generated mock).
package rmamock

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/luxfi/ids"
	"github.com/luxfi/iht/rma"
)

// Pool is a mock of the rma.Pool interface.
type Pool struct {
	ctrl     *gomock.Controller
	recorder *PoolMockRecorder
}

// PoolMockRecorder is the recorder for Pool.
type PoolMockRecorder struct {
	mock *Pool
}

// NewPool returns a new mock Pool.
func NewPool(ctrl *gomock.Controller) *Pool {
	m := &Pool{ctrl: ctrl}
	m.recorder = &PoolMockRecorder{m}
	return m
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *Pool) EXPECT() *PoolMockRecorder {
	return m.recorder
}

func (m *Pool) Self() ids.NodeID {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Self")
	return ret[0].(ids.NodeID)
}

func (mr *PoolMockRecorder) Self() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Self", reflect.TypeOf((*Pool)(nil).Self))
}

func (m *Pool) Read(p rma.RemotePtr[byte], size int) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Read", p, size)
	err, _ := ret[1].(error)
	return ret[0].([]byte), err
}

func (mr *PoolMockRecorder) Read(p, size any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Read", reflect.TypeOf((*Pool)(nil).Read), p, size)
}

func (m *Pool) Write(p rma.RemotePtr[byte], data []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Write", p, data)
	err, _ := ret[0].(error)
	return err
}

func (mr *PoolMockRecorder) Write(p, data any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Write", reflect.TypeOf((*Pool)(nil).Write), p, data)
}

func (m *Pool) CompareAndSwap(p rma.RemotePtr[uint64], old, new uint64) (uint64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CompareAndSwap", p, old, new)
	err, _ := ret[1].(error)
	return ret[0].(uint64), err
}

func (mr *PoolMockRecorder) CompareAndSwap(p, old, new any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CompareAndSwap", reflect.TypeOf((*Pool)(nil).CompareAndSwap), p, old, new)
}

func (m *Pool) AtomicSwap(p rma.RemotePtr[uint64], new uint64) (uint64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AtomicSwap", p, new)
	err, _ := ret[1].(error)
	return ret[0].(uint64), err
}

func (mr *PoolMockRecorder) AtomicSwap(p, new any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AtomicSwap", reflect.TypeOf((*Pool)(nil).AtomicSwap), p, new)
}

func (m *Pool) Allocate(size, count int) (rma.RemotePtr[byte], error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Allocate", size, count)
	err, _ := ret[1].(error)
	return ret[0].(rma.RemotePtr[byte]), err
}

func (mr *PoolMockRecorder) Allocate(size, count any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Allocate", reflect.TypeOf((*Pool)(nil).Allocate), size, count)
}

func (m *Pool) Deallocate(p rma.RemotePtr[byte]) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Deallocate", p)
	err, _ := ret[0].(error)
	return err
}

func (mr *PoolMockRecorder) Deallocate(p any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Deallocate", reflect.TypeOf((*Pool)(nil).Deallocate), p)
}

func (m *Pool) RegisterThread() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RegisterThread")
	err, _ := ret[0].(error)
	return err
}

func (mr *PoolMockRecorder) RegisterThread() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RegisterThread", reflect.TypeOf((*Pool)(nil).RegisterThread))
}

func (m *Pool) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	err, _ := ret[0].(error)
	return err
}

func (mr *PoolMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*Pool)(nil).Close))
}

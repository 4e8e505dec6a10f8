// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package subgraph

import (
	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/engine"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/subgraph"
)

// Engine is the context every graph is defined, compiled and run against.
type Engine = engine.Engine

// Config controls an Engine.
type Config = engine.Config

// Features lists the processor capabilities operators depend on.
type Features = cpuinfo.Features

// Pool partitions operator work across workers.
type Pool = parallel.Pool

// PoolConfig configures a worker pool.
type PoolConfig = parallel.Config

// Subgraph is a graph under construction.
type Subgraph = subgraph.Subgraph

// Value is a tensor or opaque blob declared in a Subgraph.
type Value = subgraph.Value

// ValueType distinguishes dense tensors from opaque blobs.
type ValueType = subgraph.ValueType

// ValueFlags mark values bound to caller memory.
type ValueFlags = subgraph.ValueFlags

// Node is one operator application.
type Node = subgraph.Node

// NodeKind names an operator kind.
type NodeKind = subgraph.NodeKind

// ComputeType is the arithmetic a node performs.
type ComputeType = subgraph.ComputeType

// Runtime is a compiled Subgraph.
type Runtime = subgraph.Runtime

// RuntimeOptions tune CreateRuntime.
type RuntimeOptions = subgraph.RuntimeOptions

// ExternalValue binds caller memory to an external value at setup.
type ExternalValue = subgraph.ExternalValue

// Plan is the memory plan of a Runtime's intermediate values.
type Plan = subgraph.Plan

// UsageRecord is the lifetime and placement of one intermediate value.
type UsageRecord = subgraph.UsageRecord

// Error is the structured error returned by every entry point.
type Error = status.Error

// InvalidValueID requests a fresh internal id from the value definers.
const InvalidValueID = subgraph.InvalidValueID

// Value flags.
const (
	FlagExternalInput  ValueFlags = subgraph.FlagExternalInput
	FlagExternalOutput ValueFlags = subgraph.FlagExternalOutput
)

// Value types.
const (
	ValueTypeInvalid     ValueType = subgraph.ValueTypeInvalid
	ValueTypeDenseTensor ValueType = subgraph.ValueTypeDenseTensor
	ValueTypeOpaque      ValueType = subgraph.ValueTypeOpaque
)

// Node kinds.
const (
	KindAdd                    NodeKind = subgraph.KindAdd
	KindSubtract               NodeKind = subgraph.KindSubtract
	KindMultiply               NodeKind = subgraph.KindMultiply
	KindDivide                 NodeKind = subgraph.KindDivide
	KindMinimum                NodeKind = subgraph.KindMinimum
	KindMaximum                NodeKind = subgraph.KindMaximum
	KindClamp                  NodeKind = subgraph.KindClamp
	KindConvert                NodeKind = subgraph.KindConvert
	KindGlobalAveragePooling2D NodeKind = subgraph.KindGlobalAveragePooling2D
	KindStaticTranspose        NodeKind = subgraph.KindStaticTranspose
)

// Error kinds.
var (
	ErrUninitialized       = status.ErrUninitialized
	ErrInvalidParameter    = status.ErrInvalidParameter
	ErrInvalidValueID      = status.ErrInvalidValueID
	ErrUnsupportedDatatype = status.ErrUnsupportedDatatype
	ErrTypeMismatch        = status.ErrTypeMismatch
	ErrOutOfMemory         = status.ErrOutOfMemory
	ErrUnsupportedHardware = status.ErrUnsupportedHardware
	ErrInvalidState        = status.ErrInvalidState
)

// DefaultConfig reads GRAPHRT_* environment variables and detects the processor.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	return engine.New(cfg)
}

// DetectFeatures queries the running processor.
func DetectFeatures() Features {
	return cpuinfo.Detect()
}

// NewPool creates a goroutine worker pool, for callers that want a pool
// separate from the engine's.
func NewPool(cfg PoolConfig) Pool {
	return parallel.NewPool(cfg)
}

// New creates an empty Subgraph whose ids [0, externalValueIDs) are reserved
// for external values.
func New(eng *Engine, externalValueIDs uint32) (*Subgraph, error) {
	return subgraph.New(eng, externalValueIDs)
}

// CreateRuntime compiles sg.
func CreateRuntime(sg *Subgraph, opts RuntimeOptions) (*Runtime, error) {
	return subgraph.CreateRuntime(sg, opts)
}

// Kinds returns every supported node kind.
func Kinds() []NodeKind {
	return subgraph.Kinds()
}

// KindOf returns the Err* kind of err, or nil.
func KindOf(err error) error {
	return status.KindOf(err)
}

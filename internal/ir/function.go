package ir

import (
	"fmt"
	"strings"

	"github.com/driftvm/drift/internal/rt"
)

// Block is a basic block of the instruction graph.
type Block struct {
	id           int32
	root, cur    *Instruction
	loopDepth    int32
	isOSREntry   bool
	isCatchEntry bool
	catchTry     int32
}

// ID returns the block id.
func (b *Block) ID() int32 { return b.id }

// Root returns the first instruction, or nil for an empty block.
func (b *Block) Root() *Instruction { return b.root }

// LoopDepth returns the loop nesting depth of the block.
func (b *Block) LoopDepth() int32 { return b.loopDepth }

// SetLoopDepth records the loop nesting depth.
func (b *Block) SetLoopDepth(d int32) { b.loopDepth = d }

// IsOSREntry reports whether the block is an on-stack-replacement
// entry.
func (b *Block) IsOSREntry() bool { return b.isOSREntry }

// MarkOSREntry marks the block as an on-stack-replacement entry.
func (b *Block) MarkOSREntry() { b.isOSREntry = true }

// MarkCatchEntry marks the block as the handler entry of try region
// tryIndex. The backend publishes its code offset in the handler table.
func (b *Block) MarkCatchEntry(tryIndex int32) {
	b.isCatchEntry = true
	b.catchTry = tryIndex
}

// CatchEntry returns the try region index when the block is a handler
// entry.
func (b *Block) CatchEntry() (int32, bool) {
	return b.catchTry, b.isCatchEntry
}

// Function holds the instruction graph of one compilation unit plus the
// value and constant tables shared by its instructions.
type Function struct {
	Name string

	instrPool rt.Pool[Instruction]
	blocks    []*Block

	consts     []Constant
	valueReps  []Representation
	valueConst map[Value]int32

	nextDeoptID DeoptID
}

// NewFunction returns an empty function graph.
func NewFunction(name string) *Function {
	return &Function{
		Name:       name,
		instrPool:  rt.NewPool[Instruction](),
		valueConst: map[Value]int32{},
	}
}

// NewBlock appends a fresh empty block.
func (f *Function) NewBlock() *Block {
	b := &Block{id: int32(len(f.blocks))}
	f.blocks = append(f.blocks, b)
	return b
}

// Blocks returns the blocks in layout order.
func (f *Function) Blocks() []*Block { return f.blocks }

// EntryBlock returns the first block.
func (f *Function) EntryBlock() *Block {
	if len(f.blocks) == 0 {
		panic("BUG: function has no blocks")
	}
	return f.blocks[0]
}

// AllocateInstr returns a fresh instruction not yet linked anywhere.
func (f *Function) AllocateInstr() *Instruction {
	i := f.instrPool.Allocate()
	*i = Instruction{
		id:      int32(f.instrPool.Allocated() - 1),
		v1:      ValueInvalid,
		v2:      ValueInvalid,
		v3:      ValueInvalid,
		rets:    [2]Value{ValueInvalid, ValueInvalid},
		deoptID: DeoptIDNone,
		pos:     SourcePosNone,
	}
	return i
}

// Append links i at the end of block b.
func (f *Function) Append(b *Block, i *Instruction) *Instruction {
	if b.root == nil {
		b.root, b.cur = i, i
		return i
	}
	i.prev = b.cur
	b.cur.next = i
	b.cur = i
	return i
}

// NewValue defines a fresh value of the given representation.
func (f *Function) NewValue(rep Representation) Value {
	v := Value(len(f.valueReps))
	f.valueReps = append(f.valueReps, rep)
	return v
}

// RepOf returns the representation of v.
func (f *Function) RepOf(v Value) Representation {
	return f.valueReps[v]
}

// addConstant defines a value bound to c and appends the defining
// constant instruction to b.
func (f *Function) addConstant(b *Block, c Constant, rep Representation) Value {
	idx := int32(len(f.consts))
	f.consts = append(f.consts, c)
	v := f.NewValue(rep)
	f.valueConst[v] = idx
	f.Append(b, f.AllocateInstr().asConstant(v, int64(idx)))
	return v
}

// SmiConstant defines a tagged smi constant in b.
func (f *Function) SmiConstant(b *Block, v int64) Value {
	if !rt.FitsInSmi(v) {
		panic(fmt.Sprintf("BUG: smi constant %d out of range", v))
	}
	return f.addConstant(b, Constant{Kind: ConstSmi, I64: v}, RepTagged)
}

// DoubleConstant defines an unboxed double constant in b.
func (f *Function) DoubleConstant(b *Block, v float64) Value {
	return f.addConstant(b, Constant{Kind: ConstDouble, F64: v}, RepUnboxedDouble)
}

// NullConstant defines the null singleton in b.
func (f *Function) NullConstant(b *Block) Value {
	return f.addConstant(b, Constant{Kind: ConstNull}, RepTagged)
}

// BoolConstant defines a boolean singleton in b.
func (f *Function) BoolConstant(b *Block, v bool) Value {
	k := ConstFalse
	if v {
		k = ConstTrue
	}
	return f.addConstant(b, Constant{Kind: k}, RepTagged)
}

// ObjectConstant defines a pinned heap object constant in b.
func (f *Function) ObjectConstant(b *Block, obj uintptr) Value {
	return f.addConstant(b, Constant{Kind: ConstObject, Obj: obj}, RepTagged)
}

// ConstantFor returns the constant bound to v, if any.
func (f *Function) ConstantFor(v Value) (Constant, bool) {
	if idx, ok := f.valueConst[v]; ok {
		return f.consts[idx], true
	}
	return Constant{}, false
}

// ConstantIndexFor returns the constant table index bound to v, if
// any. Backends use it to bind inlinable constants directly into
// operand locations.
func (f *Function) ConstantIndexFor(v Value) (int32, bool) {
	idx, ok := f.valueConst[v]
	return idx, ok
}

// ConstantAt returns the constant at table index idx.
func (f *Function) ConstantAt(idx int64) Constant { return f.consts[idx] }

// NextDeoptID hands out a fresh deopt site id. Ids advance by two so
// that each call site also owns the "after" id.
func (f *Function) NextDeoptID() DeoptID {
	id := f.nextDeoptID
	f.nextDeoptID += 2
	return id
}

// Format renders the graph for debugging.
func (f *Function) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s:\n", f.Name)
	for _, b := range f.blocks {
		fmt.Fprintf(&sb, "B%d:\n", b.id)
		for i := b.root; i != nil; i = i.next {
			sb.WriteString("\t")
			sb.WriteString(i.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

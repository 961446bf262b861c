package compiler

// ValueKind is the analyzer's coarse type lattice for traversal
// expressions, mirroring TraversalVal's Kind discriminant one level up.
type ValueKind string

const (
	VKNode    ValueKind = "Node"
	VKEdge    ValueKind = "Edge"
	VKVector  ValueKind = "Vector"
	VKPath    ValueKind = "Path"
	VKCount   ValueKind = "Count"
	VKBool    ValueKind = "Bool"
	VKValue   ValueKind = "Value"
	VKUnknown ValueKind = "Unknown"
)

// stepSig describes one step's type-checking contract: which input kinds it
// may follow (empty means it is a source step, valid only chain-initial),
// and what kind it produces.
type stepSig struct {
	validInputs []ValueKind // nil/empty => source step
	output      ValueKind
	mutating    bool
}

// stepTable enumerates the public step catalog for type
// checking. Step names not present here are not type-checked against a
// signature.
var stepTable = map[string]stepSig{
	"n_from_id":            {output: VKNode},
	"n_from_ids":           {output: VKNode},
	"n_from_type":          {output: VKNode},
	"n_from_index":         {output: VKNode},
	"e_from_id":            {output: VKEdge},
	"e_from_type":          {output: VKEdge},
	"add_n":                {output: VKNode, mutating: true},
	"add_e":                {output: VKEdge, mutating: true},
	"insert_v":             {output: VKVector, mutating: true},
	"search_v":             {output: VKVector},
	"brute_force_search_v": {validInputs: []ValueKind{VKVector}, output: VKVector},
	"search_bm25":          {output: VKNode},

	"out":   {validInputs: []ValueKind{VKNode}, output: VKNode},
	"in":    {validInputs: []ValueKind{VKNode}, output: VKNode},
	"out_e": {validInputs: []ValueKind{VKNode}, output: VKEdge},
	"in_e":  {validInputs: []ValueKind{VKNode}, output: VKEdge},

	"from_n": {validInputs: []ValueKind{VKEdge}, output: VKNode},
	"to_n":   {validInputs: []ValueKind{VKEdge}, output: VKNode},
	"from_v": {validInputs: []ValueKind{VKEdge}, output: VKVector},
	"to_v":   {validInputs: []ValueKind{VKEdge}, output: VKVector},

	"filter_ref":     {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown},
	"filter_mut":     {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown, mutating: true},
	"dedup":          {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown},
	"range":          {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown},
	"order_by_asc":   {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown},
	"order_by_desc":  {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown},
	"map":            {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown},
	"props":          {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKValue},
	"soft_delete":    {validInputs: []ValueKind{VKVector}, output: VKVector, mutating: true},
	"hybrid_search":  {output: VKValue},
	"shortest_path":  {validInputs: []ValueKind{VKNode}, output: VKPath},
	"exist":          {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKBool},
	"update":         {validInputs: []ValueKind{VKNode}, output: VKNode, mutating: true},
	"drop":           {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown, mutating: true},
	"count":          {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKCount},
	"collect_to":     {validInputs: []ValueKind{VKNode, VKEdge, VKVector, VKPath}, output: VKUnknown},
	"collect_to_obj": {validInputs: []ValueKind{VKNode, VKEdge, VKVector}, output: VKUnknown},
	"collect_to_val": {validInputs: []ValueKind{VKValue}, output: VKValue},

	"__array": {output: VKUnknown},
}

// IsMutating reports whether name is one of the steps that requires a write
// traversal.
func IsMutating(name string) bool {
	sig, ok := stepTable[name]
	return ok && sig.mutating
}

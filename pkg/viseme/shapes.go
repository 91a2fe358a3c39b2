package viseme

// Morph target names on the avatar model, one per mouth shape.
const (
	ShapeMbp     = "Mbp"
	ShapeCdest   = "Cdest"
	ShapeAi      = "Ai"
	ShapeO       = "O"
	ShapeUw      = "Uw"
	ShapeFv      = "Fv"
	ShapeL       = "L"
	ShapeNeutral = "Neutral"
)

// Timeline symbols. These are the Rhubarb mouth shapes A–H plus X for rest.
const (
	SymbolClosed   = "A" // M, B, P
	SymbolClenched = "B" // K, S, T, EE
	SymbolOpen     = "C" // EH, AE
	SymbolWide     = "D" // AA
	SymbolRounded  = "E" // AO, ER
	SymbolPuckered = "F" // UW, OW, W
	SymbolDental   = "G" // F, V
	SymbolTongue   = "H" // L
	SymbolRest     = "X"
)

var symbolShapes = map[string]string{
	SymbolClosed:   ShapeMbp,
	SymbolClenched: ShapeCdest,
	SymbolOpen:     ShapeAi,
	SymbolWide:     ShapeAi,
	SymbolRounded:  ShapeO,
	SymbolPuckered: ShapeUw,
	SymbolDental:   ShapeFv,
	SymbolTongue:   ShapeL,
	SymbolRest:     ShapeNeutral,
}

// shapeOrder lists every shape in symbolShapes once.
var shapeOrder = []string{
	ShapeMbp, ShapeCdest, ShapeAi, ShapeO, ShapeUw, ShapeFv, ShapeL, ShapeNeutral,
}

// ShapeFor resolves a timeline symbol to a morph target name. ok is false for
// symbols outside the table; callers treat that as "no shape" and let the
// mouth relax.
func ShapeFor(symbol string) (shape string, ok bool) {
	shape, ok = symbolShapes[symbol]
	return shape, ok
}

// Shapes returns every morph target name the symbol table can produce.
func Shapes() []string {
	out := make([]string, len(shapeOrder))
	copy(out, shapeOrder)
	return out
}

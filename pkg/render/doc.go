// Package render draws a resolved dependency set as a node-link diagram.
//
// [ToDOT] produces Graphviz DOT source with one node per resolved
// name@version plus a "manifest" root. [Render] lays the DOT out in
// process with go-graphviz and emits SVG, PNG or JPG.
//
//	dot := render.ToDOT(result, render.Options{Root: "my-app"})
//	svg, err := render.Render(ctx, dot, render.FormatSVG)
//
// Output is deterministic: nodes and edges are sorted, and requests that
// lost a version conflict are folded into the edge to the winning version.
package render

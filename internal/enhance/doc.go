// Package enhance provides the closed set of frame enhancement models.
//
// Each model implements Enhancer and is selected by the Model enum. The
// Registry owns construction from configuration, validates a model/scale
// pair at submission time, and reports which models have their binary
// installed.
package enhance
